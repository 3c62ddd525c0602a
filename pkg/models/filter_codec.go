package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type stringFilterWire struct {
	Type   PropertyType `json:"type"`
	Name   *string      `json:"name"`
	Value  *string      `json:"value"`
	Invert bool         `json:"invert"`
}

type numberFilterWire struct {
	Type   PropertyType `json:"type"`
	Name   *string      `json:"name"`
	Value  *float64     `json:"value"`
	Invert bool         `json:"invert"`
}

type booleanFilterWire struct {
	Type  PropertyType `json:"type"`
	Name  *string      `json:"name"`
	Value *bool        `json:"value"`
}

type metricFilterWire struct {
	Type           PropertyType    `json:"type"`
	Name           *string         `json:"name"`
	Value          *float64        `json:"value"`
	ComparisonType *ComparisonType `json:"comparisonType"`
}

func (t PropertyType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid property type: %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *PropertyType) UnmarshalJSON(data []byte) error {
	parsed, err := parseEnumJSON(data, ParsePropertyType)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (c ComparisonType) MarshalJSON() ([]byte, error) {
	text, err := c.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

func (c *ComparisonType) UnmarshalJSON(data []byte) error {
	parsed, err := parseEnumJSON(data, ParseComparisonType)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseEnumJSON[T any](data []byte, parse func(string) (T, error)) (T, error) {
	var zero T
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return parse(s)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return zero, fmt.Errorf("enum must be a string or an integer, got %s", string(data))
	}
	return parse(strconv.Itoa(n))
}

type filterEncoder struct {
	out any
}

func (e *filterEncoder) VisitString(f StringFilter) error {
	e.out = stringFilterWire{Type: f.Type(), Name: &f.Name, Value: &f.Value, Invert: f.Invert}
	return nil
}

func (e *filterEncoder) VisitNumber(f NumberFilter) error {
	e.out = numberFilterWire{Type: f.Type(), Name: &f.Name, Value: &f.Value, Invert: f.Invert}
	return nil
}

func (e *filterEncoder) VisitBoolean(f BooleanFilter) error {
	e.out = booleanFilterWire{Type: f.Type(), Name: &f.Name, Value: &f.Value}
	return nil
}

func (e *filterEncoder) VisitMetric(f MetricFilter) error {
	e.out = metricFilterWire{Type: f.Type(), Name: &f.Name, Value: &f.Value, ComparisonType: &f.ComparisonType}
	return nil
}

// MarshalFilter encodes a filter as a tagged JSON object.
func MarshalFilter(f FilterData) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot marshal nil filter")
	}
	enc := &filterEncoder{}
	if err := f.Accept(enc); err != nil {
		return nil, err
	}
	return json.Marshal(enc.out)
}

// UnmarshalFilter decodes a tagged JSON object. Fields not declared for the
// tag are rejected, as are missing required fields.
func UnmarshalFilter(data []byte) (FilterData, error) {
	var head struct {
		Type *PropertyType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &ValidationError{Field: "type", Message: err.Error()}
	}
	if head.Type == nil {
		return nil, &ValidationError{Field: "type", Message: "filter type is required"}
	}

	switch *head.Type {
	case PropertyTypeString:
		var w stringFilterWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if w.Name == nil || w.Value == nil {
			return nil, missingField(w.Name == nil)
		}
		return NewStringFilter(*w.Name, *w.Value, w.Invert), nil
	case PropertyTypeNumber:
		var w numberFilterWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if w.Name == nil || w.Value == nil {
			return nil, missingField(w.Name == nil)
		}
		return NewNumberFilter(*w.Name, *w.Value, w.Invert), nil
	case PropertyTypeBoolean:
		var w booleanFilterWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if w.Name == nil || w.Value == nil {
			return nil, missingField(w.Name == nil)
		}
		return NewBooleanFilter(*w.Name, *w.Value), nil
	case PropertyTypeMetric:
		var w metricFilterWire
		if err := decodeStrict(data, &w); err != nil {
			return nil, err
		}
		if w.Name == nil || w.Value == nil {
			return nil, missingField(w.Name == nil)
		}
		if w.ComparisonType == nil {
			return nil, &ValidationError{Field: "comparisonType", Message: "metric filter requires a comparison type"}
		}
		return NewMetricFilter(*w.Name, *w.Value, *w.ComparisonType), nil
	default:
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported filter type: %s", *head.Type)}
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Field: "filter", Message: err.Error()}
	}
	return nil
}

func missingField(name bool) error {
	if name {
		return &ValidationError{Field: "name", Message: "filter name is required"}
	}
	return &ValidationError{Field: "value", Message: "filter value is required"}
}

func (l FilterList) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, len(l))
	for i, f := range l {
		data, err := MarshalFilter(f)
		if err != nil {
			return nil, fmt.Errorf("filter[%d]: %w", i, err)
		}
		items[i] = data
	}
	return json.Marshal(items)
}

func (l *FilterList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("filter list must be a JSON array: %w", err)
	}
	out := make(FilterList, 0, len(items))
	for i, raw := range items {
		f, err := UnmarshalFilter(raw)
		if err != nil {
			return fmt.Errorf("filter[%d]: %w", i, err)
		}
		out = append(out, f)
	}
	*l = out
	return nil
}
