package models

import "time"

// PayloadMetricsKey is the payload entry holding numeric metrics.
const PayloadMetricsKey = "metrics"

type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`  // properties, plus an optional "metrics" object
	Metadata  Metadata               `json:"metadata"` // pipeline metadata
}

type Metadata struct {
	TraceID        string          `json:"trace_id,omitempty"`
	FiltersApplied *FiltersApplied `json:"filters_applied,omitempty"`
	DeadLetter     *DeadLetter     `json:"dead_letter,omitempty"`
}

// DeadLetter is set on envelopes published to the DLQ topic.
type DeadLetter struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}

type FiltersApplied struct {
	PassedAt     time.Time `json:"passed_at"`
	FilterSetIDs []string  `json:"filter_set_ids"`
}
