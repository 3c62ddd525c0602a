package management

import (
	"sieve/pkg/cel"
	"sieve/pkg/models"
)

type CreateFilterSetRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Filters     models.FilterList `json:"filters" swaggertype:"array,object"`
	Condition   string            `json:"condition"`
	Priority    int               `json:"priority"`
	Enabled     *bool             `json:"enabled"`
}

type UpdateFilterSetRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Filters     *models.FilterList `json:"filters" swaggertype:"array,object"`
	Condition   *string            `json:"condition"`
	Priority    *int               `json:"priority"`
	Enabled     *bool              `json:"enabled"`
}

// onlyEnabledChanged reports whether the request flips nothing but enabled.
func (r UpdateFilterSetRequest) onlyEnabledChanged() bool {
	return r.Enabled != nil && r.Name == nil && r.Description == nil &&
		r.Filters == nil && r.Condition == nil && r.Priority == nil
}

type EvaluateRequest struct {
	Properties map[string]interface{} `json:"properties"`
	Metrics    map[string]float64     `json:"metrics"`
}

func (r EvaluateRequest) subject() cel.Subject {
	return cel.Subject{Properties: r.Properties, Metrics: r.Metrics}
}

type EvaluateResponse struct {
	FilterSetID string `json:"filter_set_id"`
	Matched     bool   `json:"matched"`
	Expression  string `json:"expression"`
}

type ValidateFiltersRequest struct {
	Filters   models.FilterList `json:"filters" swaggertype:"array,object"`
	Condition string            `json:"condition"`
}

type ValidateFiltersResponse struct {
	Valid        bool     `json:"valid"`
	Expression   string   `json:"expression"`
	Descriptions []string `json:"descriptions"`
}
