package models

import (
	"fmt"
	"strconv"
)

type describer struct {
	text string
}

func (d *describer) VisitString(f StringFilter) error {
	op := "~"
	if f.Invert {
		op = "!~"
	}
	d.text = fmt.Sprintf("%s %s %q", f.Name, op, f.Value)
	return nil
}

func (d *describer) VisitNumber(f NumberFilter) error {
	op := "=="
	if f.Invert {
		op = "!="
	}
	d.text = fmt.Sprintf("%s %s %s", f.Name, op, formatNumber(f.Value))
	return nil
}

func (d *describer) VisitBoolean(f BooleanFilter) error {
	d.text = fmt.Sprintf("%s is %t", f.Name, f.Value)
	return nil
}

func (d *describer) VisitMetric(f MetricFilter) error {
	d.text = fmt.Sprintf("%s %s %s", f.Name, f.ComparisonType.Operator(), formatNumber(f.Value))
	return nil
}

// Describe renders a filter as a short human-readable condition, e.g.
// `cpu > 80` or `env !~ "prod"`.
func Describe(f FilterData) string {
	if f == nil {
		return "<nil>"
	}
	d := &describer{}
	_ = f.Accept(d)
	return d.text
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
