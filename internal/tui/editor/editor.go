// Package editor is a terminal editor for a filter list.
//
// The editor owns the list. Rows and their toggles are rebuilt from it on
// every update; a toggle's change callback captures the row index and emits a
// filterChangedMsg, and the editor applies it by swapping the immutable record
// at that index.
package editor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sieve/internal/tui/styles"
	"sieve/pkg/cel"
	"sieve/pkg/models"
)

// headerLines is the number of lines View prints above the first row.
const headerLines = 2

// SaveFunc persists the edited list. It runs inside a tea.Cmd.
type SaveFunc func(models.FilterList) error

type filterChangedMsg struct {
	index  int
	filter models.FilterData
}

type savedMsg struct {
	err error
}

type Model struct {
	KeyMap KeyMap

	title    string
	filters  models.FilterList
	cursor   int
	dirty    bool
	save     SaveFunc
	status   string
	err      error
	quitting bool
	width    int
}

func New(title string, filters models.FilterList, save SaveFunc) Model {
	return Model{
		KeyMap:  DefaultKeyMap(),
		title:   title,
		filters: filters,
		save:    save,
	}
}

// Filters returns the current list, including unsaved changes.
func (m Model) Filters() models.FilterList {
	return m.filters
}

func (m Model) Cursor() int {
	return m.cursor
}

// Dirty reports whether the list changed since it was loaded or last saved.
func (m Model) Dirty() bool {
	return m.dirty
}

func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case filterChangedMsg:
		if msg.index < 0 || msg.index >= len(m.filters) {
			return m, nil
		}
		m.filters = m.filters.Replace(msg.index, msg.filter)
		m.dirty = true
		m.status = ""
		m.err = nil
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.dirty = false
		m.err = nil
		m.status = "saved"
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		index := msg.Y - headerLines
		if index < 0 || index >= len(m.filters) {
			return m, nil
		}
		m.cursor = index
		return m, m.currentRow().forward(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.KeyMap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.KeyMap.Save):
		return m, m.saveCmd()
	case key.Matches(msg, m.KeyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.KeyMap.Down):
		if m.cursor < len(m.filters)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.KeyMap.Left):
		return m, m.setDirection(models.ComparisonLess)
	case key.Matches(msg, m.KeyMap.Right):
		return m, m.setDirection(models.ComparisonMore)
	}

	if len(m.filters) == 0 {
		return m, nil
	}
	return m, m.currentRow().forward(msg)
}

// setDirection is a no-op unless the focused row is a metric filter whose
// direction differs from the requested one.
func (m Model) setDirection(direction models.ComparisonType) tea.Cmd {
	if len(m.filters) == 0 {
		return nil
	}
	metric, ok := m.filters[m.cursor].(models.MetricFilter)
	if !ok || metric.ComparisonType == direction {
		return nil
	}
	return changed(m.cursor, metric.WithComparison(direction))
}

func (m Model) saveCmd() tea.Cmd {
	filters := m.filters
	save := m.save
	return func() tea.Msg {
		if err := models.ValidateFilterList(filters); err != nil {
			return savedMsg{err: err}
		}
		if save == nil {
			return savedMsg{}
		}
		return savedMsg{err: save(filters)}
	}
}

func (m Model) currentRow() *row {
	return buildRow(m.cursor, m.filters[m.cursor], true)
}

func (r *row) forward(msg tea.Msg) tea.Cmd {
	if r.widget == nil {
		return nil
	}
	_, cmd := r.widget.Update(msg)
	return cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := m.title
	if m.dirty {
		title += " *"
	}
	b.WriteString(styles.Header.Render(title))
	b.WriteString("\n\n")

	if len(m.filters) == 0 {
		b.WriteString(styles.Muted.Render("  no filters"))
		b.WriteString("\n")
	}
	for i, f := range m.filters {
		b.WriteString(buildRow(i, f, i == m.cursor).view(f))
		b.WriteString("\n")
	}

	if expr, err := cel.CompileList(m.filters); err == nil {
		b.WriteString("\n")
		b.WriteString(m.previewStyle().Render(expr))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(styles.ErrorMsg.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(styles.SuccessMsg.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.helpView())
	return b.String()
}

// previewStyle wraps the expression box to the terminal width once it is known.
func (m Model) previewStyle() lipgloss.Style {
	style := styles.ExprPreview
	if inner := m.width - style.GetHorizontalBorderSize(); inner > 0 {
		style = style.Width(inner)
	}
	return style
}

func (m Model) helpView() string {
	parts := make([]string, 0, len(m.KeyMap.help())+1)
	parts = append(parts, styles.HelpKey.Render("space")+" "+styles.Muted.Render("toggle"))
	for _, binding := range m.KeyMap.help() {
		h := binding.Help()
		parts = append(parts, styles.HelpKey.Render(h.Key)+" "+styles.Muted.Render(h.Desc))
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}
