package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagCounter struct {
	seen map[PropertyType]int
}

func (c *tagCounter) VisitString(StringFilter) error {
	c.seen[PropertyTypeString]++
	return nil
}

func (c *tagCounter) VisitNumber(NumberFilter) error {
	c.seen[PropertyTypeNumber]++
	return nil
}

func (c *tagCounter) VisitBoolean(BooleanFilter) error {
	c.seen[PropertyTypeBoolean]++
	return nil
}

func (c *tagCounter) VisitMetric(MetricFilter) error {
	c.seen[PropertyTypeMetric]++
	return nil
}

var _ FilterVisitor = (*tagCounter)(nil)

func TestFilterData_AcceptDispatchesByTag(t *testing.T) {
	filters := FilterList{
		NewStringFilter("env", "prod", false),
		NewNumberFilter("port", 443, true),
		NewBooleanFilter("enabled", true),
		NewMetricFilter("cpu", 80, ComparisonMore),
	}

	counter := &tagCounter{seen: map[PropertyType]int{}}
	for _, f := range filters {
		require.NoError(t, f.Accept(counter))
	}

	assert.Equal(t, map[PropertyType]int{
		PropertyTypeString:  1,
		PropertyTypeNumber:  1,
		PropertyTypeBoolean: 1,
		PropertyTypeMetric:  1,
	}, counter.seen)

	for _, f := range filters {
		assert.True(t, f.Type().Valid())
	}
}

func TestPropertyType_OrdinalsAndNames(t *testing.T) {
	assert.Equal(t, 0, int(PropertyTypeNumber))
	assert.Equal(t, 1, int(PropertyTypeString))
	assert.Equal(t, 2, int(PropertyTypeMetric))
	assert.Equal(t, 3, int(PropertyTypeBoolean))

	for _, name := range []string{"number", "string", "metric", "boolean"} {
		pt, err := ParsePropertyType(name)
		require.NoError(t, err)
		assert.Equal(t, name, pt.String())
	}

	pt, err := ParsePropertyType("2")
	require.NoError(t, err)
	assert.Equal(t, PropertyTypeMetric, pt)

	_, err = ParsePropertyType("date")
	assert.Error(t, err)
	_, err = ParsePropertyType("7")
	assert.Error(t, err)
}

func TestComparisonType(t *testing.T) {
	assert.Equal(t, ">", ComparisonMore.Operator())
	assert.Equal(t, "<", ComparisonLess.Operator())
	assert.Equal(t, ComparisonLess, ComparisonMore.Flip())
	assert.Equal(t, ComparisonMore, ComparisonLess.Flip())
	assert.False(t, ComparisonType(5).Valid())

	_, err := ComparisonType(5).MarshalText()
	assert.Error(t, err)
}

func TestMarshalFilter_WireShape(t *testing.T) {
	tests := []struct {
		name   string
		filter FilterData
		want   map[string]interface{}
	}{
		{
			name:   "string carries invert",
			filter: NewStringFilter("env", "prod", true),
			want:   map[string]interface{}{"type": "string", "name": "env", "value": "prod", "invert": true},
		},
		{
			name:   "number carries invert",
			filter: NewNumberFilter("cpu", 80, false),
			want:   map[string]interface{}{"type": "number", "name": "cpu", "value": 80.0, "invert": false},
		},
		{
			name:   "boolean has no invert",
			filter: NewBooleanFilter("enabled", true),
			want:   map[string]interface{}{"type": "boolean", "name": "enabled", "value": true},
		},
		{
			name:   "metric has direction and no invert",
			filter: NewMetricFilter("cpu", 80, ComparisonMore),
			want:   map[string]interface{}{"type": "metric", "name": "cpu", "value": 80.0, "comparisonType": "more"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalFilter(tt.filter)
			require.NoError(t, err)

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &got))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("wire shape mismatch (-want +got):\n%s", diff)
			}

			decoded, err := UnmarshalFilter(data)
			require.NoError(t, err)
			assert.Equal(t, tt.filter, decoded)
		})
	}
}

func TestUnmarshalFilter_MetricAndNumberAreDistinct(t *testing.T) {
	metric, err := UnmarshalFilter([]byte(`{"type":"metric","name":"cpu","value":80,"comparisonType":"more"}`))
	require.NoError(t, err)
	number, err := UnmarshalFilter([]byte(`{"type":"number","name":"cpu","value":80,"invert":false}`))
	require.NoError(t, err)

	assert.Equal(t, PropertyTypeMetric, metric.Type())
	assert.Equal(t, PropertyTypeNumber, number.Type())
	assert.IsType(t, MetricFilter{}, metric)
	assert.IsType(t, NumberFilter{}, number)
	assert.Equal(t, ComparisonMore, metric.(MetricFilter).ComparisonType)
}

func TestUnmarshalFilter_Ordinals(t *testing.T) {
	f, err := UnmarshalFilter([]byte(`{"type":2,"name":"mem","value":10.5,"comparisonType":1}`))
	require.NoError(t, err)
	assert.Equal(t, NewMetricFilter("mem", 10.5, ComparisonLess), f)

	f, err = UnmarshalFilter([]byte(`{"type":1,"name":"env","value":"prod"}`))
	require.NoError(t, err)
	assert.Equal(t, NewStringFilter("env", "prod", false), f)
}

func TestUnmarshalFilter_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"missing type", `{"name":"a","value":"b"}`, "type"},
		{"unknown type", `{"type":"date","name":"a","value":"b"}`, "type"},
		{"invert on boolean", `{"type":"boolean","name":"a","value":true,"invert":true}`, "filter"},
		{"invert on metric", `{"type":"metric","name":"a","value":1,"comparisonType":"less","invert":true}`, "filter"},
		{"direction on number", `{"type":"number","name":"a","value":1,"comparisonType":"less"}`, "filter"},
		{"metric without direction", `{"type":"metric","name":"a","value":1}`, "comparisonType"},
		{"bad direction", `{"type":"metric","name":"a","value":1,"comparisonType":"equal"}`, "filter"},
		{"missing name", `{"type":"string","value":"b"}`, "name"},
		{"missing value", `{"type":"boolean","name":"a"}`, "value"},
		{"wrong value type", `{"type":"string","name":"a","value":5}`, "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalFilter([]byte(tt.input))
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestFilterList_JSON(t *testing.T) {
	list := FilterList{
		NewStringFilter("region", "eu-", false),
		NewMetricFilter("latency_ms", 250, ComparisonLess),
		NewBooleanFilter("healthy", true),
	}

	data, err := json.Marshal(list)
	require.NoError(t, err)

	var decoded FilterList
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(list, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	var bad FilterList
	err = json.Unmarshal([]byte(`[{"type":"boolean","name":"x","value":true,"invert":false}]`), &bad)
	assert.ErrorContains(t, err, "filter[0]")
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  FilterData
		wantErr string
	}{
		{"valid string", NewStringFilter("env", "", false), ""},
		{"empty name", NewBooleanFilter("  ", true), "name"},
		{"nan number", NewNumberFilter("x", math.NaN(), false), "value"},
		{"inf metric", NewMetricFilter("x", math.Inf(1), ComparisonMore), "value"},
		{"bad direction", NewMetricFilter("x", 1, ComparisonType(9)), "comparisonType"},
		{"nil filter", nil, "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilter(tt.filter)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantErr, vErr.Field)
		})
	}

	err := ValidateFilterList(FilterList{NewBooleanFilter("ok", true), NewStringFilter("", "v", false)})
	assert.ErrorContains(t, err, "filters[1]")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `cpu > 80`, Describe(NewMetricFilter("cpu", 80, ComparisonMore)))
	assert.Equal(t, `mem < 0.5`, Describe(NewMetricFilter("mem", 0.5, ComparisonLess)))
	assert.Equal(t, `env !~ "prod"`, Describe(NewStringFilter("env", "prod", true)))
	assert.Equal(t, `port == 443`, Describe(NewNumberFilter("port", 443, false)))
	assert.Equal(t, `enabled is false`, Describe(NewBooleanFilter("enabled", false)))
}

func TestFilterList_ReplaceDoesNotMutate(t *testing.T) {
	list := FilterList{NewBooleanFilter("a", false)}
	updated := list.Replace(0, list[0].(BooleanFilter).WithValue(true))

	assert.Equal(t, NewBooleanFilter("a", false), list[0])
	assert.Equal(t, NewBooleanFilter("a", true), updated[0])
	assert.Equal(t, []string{"a"}, updated.Names())
}
