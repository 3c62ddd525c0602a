package cel

// ConditionExamples are raw CEL conditions a filter set may carry next to
// its descriptor list.
var ConditionExamples = map[string]string{
	"simple_equals":        `payload.status == "active"`,
	"simple_not_equals":    `payload.status != "inactive"`,
	"numeric_greater_than": `payload.amount > 100.0`,
	"string_contains":      `payload.email.contains("@example.com")`,
	"in_list":              `payload.status in ["active", "pending", "processing"]`,
	"top_level_source":     `source == "api-gateway"`,
	"has_field":            `has(payload.email) && payload.email != ""`,
	"metric_ratio":         `"errors" in metrics && "requests" in metrics && metrics["errors"] / metrics["requests"] < 0.05`,
	"property_present":     `"region" in properties`,
}

// FilterListExamples are filter lists in their JSON wire form.
var FilterListExamples = map[string]string{
	"production_only":  `[{"type":"string","name":"env","value":"prod","invert":false}]`,
	"exclude_staging":  `[{"type":"string","name":"env","value":"staging","invert":true}]`,
	"port_match":       `[{"type":"number","name":"port","value":443,"invert":false}]`,
	"healthy":          `[{"type":"boolean","name":"healthy","value":true}]`,
	"hot_cpu":          `[{"type":"metric","name":"cpu","value":80,"comparisonType":"more"}]`,
	"fast_and_healthy": `[{"type":"boolean","name":"healthy","value":true},{"type":"metric","name":"latency_ms","value":250,"comparisonType":"less"}]`,
}
