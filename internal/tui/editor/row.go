package editor

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"sieve/internal/tui/styles"
	"sieve/internal/tui/toggle"
	"sieve/pkg/models"
)

// row is the per-render projection of one filter. It is rebuilt from the
// editor's list on every Update and View.
type row struct {
	index   int
	focused bool

	widget    *toggle.Model
	direction string
}

func changed(index int, f models.FilterData) tea.Cmd {
	return func() tea.Msg {
		return filterChangedMsg{index: index, filter: f}
	}
}

func (r *row) bind(value bool, label string, onChange toggle.ChangeFunc) {
	t := toggle.New(value, onChange).WithLabel(label)
	if r.focused {
		t = t.Focus()
	}
	r.widget = &t
}

func (r *row) VisitString(f models.StringFilter) error {
	r.bind(f.Invert, "invert", func(checked bool) tea.Cmd {
		return changed(r.index, f.WithInvert(checked))
	})
	return nil
}

func (r *row) VisitNumber(f models.NumberFilter) error {
	r.bind(f.Invert, "invert", func(checked bool) tea.Cmd {
		return changed(r.index, f.WithInvert(checked))
	})
	return nil
}

func (r *row) VisitBoolean(f models.BooleanFilter) error {
	r.bind(f.Value, "value", func(checked bool) tea.Cmd {
		return changed(r.index, f.WithValue(checked))
	})
	return nil
}

func (r *row) VisitMetric(f models.MetricFilter) error {
	r.direction = "◀ " + f.ComparisonType.String() + " ▶"
	return nil
}

func buildRow(index int, f models.FilterData, focused bool) *row {
	r := &row{index: index, focused: focused}
	_ = f.Accept(r)
	return r
}

func (r *row) view(f models.FilterData) string {
	var b strings.Builder

	if r.focused {
		b.WriteString(styles.RowCursor.Render("▸ "))
	} else {
		b.WriteString("  ")
	}

	b.WriteString(styles.RowTag.Render(padRight("["+f.Type().String()+"]", 10)))
	b.WriteString(" ")

	name := padRight(models.Describe(f), 32)
	if r.focused {
		b.WriteString(styles.RowName.Render(name))
	} else {
		b.WriteString(styles.RowNameDim.Render(name))
	}
	b.WriteString(" ")

	switch {
	case r.widget != nil:
		b.WriteString(r.widget.View())
	case r.direction != "":
		b.WriteString(styles.Direction.Render(r.direction))
	}

	return b.String()
}

func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
