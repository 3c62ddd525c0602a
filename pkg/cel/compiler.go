package cel

import (
	"fmt"
	"strconv"
	"strings"

	"sieve/pkg/models"
)

// Compiler translates filter descriptors into CEL boolean expressions over
// the `properties` and `metrics` variables. A missing key never matches
// before inversion is applied.
type Compiler struct {
	expr string
}

var _ models.FilterVisitor = (*Compiler)(nil)

func (c *Compiler) VisitString(f models.StringFilter) error {
	ref := propertyRef(f.Name)
	match := fmt.Sprintf(`%s in properties && type(%s) == string && %s.contains(%s)`,
		strconv.Quote(f.Name), ref, ref, strconv.Quote(f.Value))
	c.expr = applyInvert(match, f.Invert)
	return nil
}

func (c *Compiler) VisitNumber(f models.NumberFilter) error {
	ref := propertyRef(f.Name)
	match := fmt.Sprintf(`%s in properties && (type(%s) == int || type(%s) == uint || type(%s) == double) && double(%s) == %s`,
		strconv.Quote(f.Name), ref, ref, ref, ref, doubleLiteral(f.Value))
	c.expr = applyInvert(match, f.Invert)
	return nil
}

func (c *Compiler) VisitBoolean(f models.BooleanFilter) error {
	ref := propertyRef(f.Name)
	c.expr = fmt.Sprintf(`(%s in properties && type(%s) == bool && %s == %t)`,
		strconv.Quote(f.Name), ref, ref, f.Value)
	return nil
}

func (c *Compiler) VisitMetric(f models.MetricFilter) error {
	if !f.ComparisonType.Valid() {
		return fmt.Errorf("metric filter %q has unknown comparison type %d", f.Name, int(f.ComparisonType))
	}
	c.expr = fmt.Sprintf(`(%s in metrics && metrics[%s] %s %s)`,
		strconv.Quote(f.Name), strconv.Quote(f.Name), f.ComparisonType.Operator(), doubleLiteral(f.Value))
	return nil
}

// CompileFilter returns the CEL expression for a single filter.
func CompileFilter(f models.FilterData) (string, error) {
	if err := models.ValidateFilter(f); err != nil {
		return "", err
	}
	c := &Compiler{}
	if err := f.Accept(c); err != nil {
		return "", err
	}
	return c.expr, nil
}

// CompileList joins the filters of a list into a conjunction. An empty list
// compiles to `true`.
func CompileList(list models.FilterList) (string, error) {
	if len(list) == 0 {
		return "true", nil
	}
	parts := make([]string, 0, len(list))
	for i, f := range list {
		expr, err := CompileFilter(f)
		if err != nil {
			return "", fmt.Errorf("filters[%d]: %w", i, err)
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, " && "), nil
}

func propertyRef(name string) string {
	return "properties[" + strconv.Quote(name) + "]"
}

func applyInvert(match string, invert bool) string {
	if invert {
		return "!(" + match + ")"
	}
	return "(" + match + ")"
}

func doubleLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
