package models

import (
	"fmt"
	"math"
	"strings"
)

type filterValidator struct{}

func (filterValidator) VisitString(f StringFilter) error {
	return validateName(f.Name)
}

func (filterValidator) VisitNumber(f NumberFilter) error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	return validateFinite(f.Value)
}

func (filterValidator) VisitBoolean(f BooleanFilter) error {
	return validateName(f.Name)
}

func (filterValidator) VisitMetric(f MetricFilter) error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if err := validateFinite(f.Value); err != nil {
		return err
	}
	if !f.ComparisonType.Valid() {
		return &ValidationError{
			Field:   "comparisonType",
			Message: fmt.Sprintf("unknown comparison type %d", int(f.ComparisonType)),
		}
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "filter name is required"}
	}
	return nil
}

func validateFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: "value", Message: "filter value must be a finite number"}
	}
	return nil
}

func ValidateFilter(f FilterData) error {
	if f == nil {
		return &ValidationError{Field: "filter", Message: "filter cannot be nil"}
	}
	return f.Accept(filterValidator{})
}

func ValidateFilterList(list FilterList) error {
	for i, f := range list {
		if err := ValidateFilter(f); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	return nil
}
