package models

import (
	"fmt"
	"strconv"
	"strings"
)

// PropertyType is the tag of a filter descriptor. Ordinals are part of the
// wire format and must not be renumbered.
type PropertyType int

const (
	PropertyTypeNumber PropertyType = iota
	PropertyTypeString
	PropertyTypeMetric
	PropertyTypeBoolean
)

var propertyTypeNames = map[PropertyType]string{
	PropertyTypeNumber:  "number",
	PropertyTypeString:  "string",
	PropertyTypeMetric:  "metric",
	PropertyTypeBoolean: "boolean",
}

func (t PropertyType) String() string {
	if name, ok := propertyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PropertyType(%d)", int(t))
}

func (t PropertyType) Valid() bool {
	_, ok := propertyTypeNames[t]
	return ok
}

// ParsePropertyType accepts the text form ("metric") or the ordinal ("2").
func ParsePropertyType(s string) (PropertyType, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for t, name := range propertyTypeNames {
		if name == s {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && PropertyType(n).Valid() {
		return PropertyType(n), nil
	}
	return 0, fmt.Errorf("unknown property type: %q", s)
}

// ComparisonType is the direction of a metric filter.
type ComparisonType int

const (
	ComparisonMore ComparisonType = iota
	ComparisonLess
)

func (c ComparisonType) String() string {
	switch c {
	case ComparisonMore:
		return "more"
	case ComparisonLess:
		return "less"
	default:
		return fmt.Sprintf("ComparisonType(%d)", int(c))
	}
}

func (c ComparisonType) Valid() bool {
	return c == ComparisonMore || c == ComparisonLess
}

// Operator returns the strict comparison operator for the direction.
func (c ComparisonType) Operator() string {
	if c == ComparisonLess {
		return "<"
	}
	return ">"
}

// Flip returns the opposite direction.
func (c ComparisonType) Flip() ComparisonType {
	if c == ComparisonMore {
		return ComparisonLess
	}
	return ComparisonMore
}

func ParseComparisonType(s string) (ComparisonType, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "more", "0":
		return ComparisonMore, nil
	case "less", "1":
		return ComparisonLess, nil
	default:
		return 0, fmt.Errorf("unknown comparison type: %q", s)
	}
}

func (c ComparisonType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid comparison type: %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *ComparisonType) UnmarshalText(text []byte) error {
	parsed, err := ParseComparisonType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FilterData is a single filter criterion. The set of implementations is
// closed: StringFilter, NumberFilter, BooleanFilter and MetricFilter.
// Consumers branch on the case by implementing FilterVisitor.
type FilterData interface {
	Type() PropertyType
	FilterName() string
	Accept(v FilterVisitor) error

	filterData()
}

// FilterVisitor has one method per FilterData case. Adding a case adds a
// method here, which breaks every consumer until it handles the new case.
type FilterVisitor interface {
	VisitString(f StringFilter) error
	VisitNumber(f NumberFilter) error
	VisitBoolean(f BooleanFilter) error
	VisitMetric(f MetricFilter) error
}

type StringFilter struct {
	Name   string
	Value  string
	Invert bool
}

type NumberFilter struct {
	Name   string
	Value  float64
	Invert bool
}

type BooleanFilter struct {
	Name  string
	Value bool
}

type MetricFilter struct {
	Name           string
	Value          float64
	ComparisonType ComparisonType
}

func NewStringFilter(name, value string, invert bool) StringFilter {
	return StringFilter{Name: name, Value: value, Invert: invert}
}

func NewNumberFilter(name string, value float64, invert bool) NumberFilter {
	return NumberFilter{Name: name, Value: value, Invert: invert}
}

func NewBooleanFilter(name string, value bool) BooleanFilter {
	return BooleanFilter{Name: name, Value: value}
}

func NewMetricFilter(name string, value float64, comparison ComparisonType) MetricFilter {
	return MetricFilter{Name: name, Value: value, ComparisonType: comparison}
}

func (f StringFilter) Type() PropertyType  { return PropertyTypeString }
func (f NumberFilter) Type() PropertyType  { return PropertyTypeNumber }
func (f BooleanFilter) Type() PropertyType { return PropertyTypeBoolean }
func (f MetricFilter) Type() PropertyType  { return PropertyTypeMetric }

func (f StringFilter) FilterName() string  { return f.Name }
func (f NumberFilter) FilterName() string  { return f.Name }
func (f BooleanFilter) FilterName() string { return f.Name }
func (f MetricFilter) FilterName() string  { return f.Name }

func (f StringFilter) Accept(v FilterVisitor) error  { return v.VisitString(f) }
func (f NumberFilter) Accept(v FilterVisitor) error  { return v.VisitNumber(f) }
func (f BooleanFilter) Accept(v FilterVisitor) error { return v.VisitBoolean(f) }
func (f MetricFilter) Accept(v FilterVisitor) error  { return v.VisitMetric(f) }

func (StringFilter) filterData()  {}
func (NumberFilter) filterData()  {}
func (BooleanFilter) filterData() {}
func (MetricFilter) filterData()  {}

// WithInvert returns a copy with the invert flag set.
func (f StringFilter) WithInvert(invert bool) StringFilter {
	f.Invert = invert
	return f
}

func (f NumberFilter) WithInvert(invert bool) NumberFilter {
	f.Invert = invert
	return f
}

func (f BooleanFilter) WithValue(value bool) BooleanFilter {
	f.Value = value
	return f
}

func (f MetricFilter) WithComparison(comparison ComparisonType) MetricFilter {
	f.ComparisonType = comparison
	return f
}

// FilterList is an ordered conjunction of criteria.
type FilterList []FilterData

func (l FilterList) Names() []string {
	names := make([]string, len(l))
	for i, f := range l {
		names[i] = f.FilterName()
	}
	return names
}

// Replace returns a copy of the list with the element at i swapped for f.
func (l FilterList) Replace(i int, f FilterData) FilterList {
	out := make(FilterList, len(l))
	copy(out, l)
	out[i] = f
	return out
}
