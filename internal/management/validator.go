package management

import (
	"fmt"
	"strings"

	"sieve/pkg/cel"
	"sieve/pkg/models"
)

const maxNameLength = 255

// validateFilterSet checks the name, every filter, and that the list and
// condition compile together. It returns the compiled CEL source.
func validateFilterSet(evaluator *cel.Evaluator, name string, filters models.FilterList, condition string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &models.ValidationError{Field: "name", Message: "name is required"}
	}
	if len(name) > maxNameLength {
		return "", &models.ValidationError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)}
	}
	return validateFilters(evaluator, filters, condition)
}

func validateFilters(evaluator *cel.Evaluator, filters models.FilterList, condition string) (string, error) {
	if err := models.ValidateFilterList(filters); err != nil {
		return "", err
	}

	_, expr, err := evaluator.CompileFilterSet(filters, condition)
	if err != nil {
		return "", &models.ValidationError{Field: "condition", Message: err.Error()}
	}

	return expr, nil
}
