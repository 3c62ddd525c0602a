// Package toggle provides a controlled on/off switch for bubbletea programs.
//
// The widget never owns its value. The caller builds it with the current
// value and a change callback, and rebuilds it once the callback's new value
// has been stored. Update reports intent only: it calls the callback with the
// negated value and returns whatever command the callback produced.
package toggle

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"sieve/internal/tui/styles"
)

const (
	checkedMarker   = "[✓]"
	uncheckedMarker = "[ ]"
	stateOn         = "on"
	stateOff        = "off"
	knob            = "●"
	track           = "──"
)

// ChangeFunc receives the value the owner should store.
type ChangeFunc func(checked bool) tea.Cmd

type KeyMap struct {
	Toggle key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter", "x"),
			key.WithHelp("space", "toggle"),
		),
	}
}

type Model struct {
	KeyMap KeyMap

	value    bool
	onChange ChangeFunc
	label    string
	focused  bool
}

func New(value bool, onChange ChangeFunc) Model {
	return Model{
		KeyMap:   DefaultKeyMap(),
		value:    value,
		onChange: onChange,
	}
}

// Checked returns the value the model was built with.
func (m Model) Checked() bool {
	return m.value
}

func (m Model) Label() string {
	return m.label
}

func (m Model) WithLabel(label string) Model {
	m.label = label
	return m
}

func (m Model) Focus() Model {
	m.focused = true
	return m
}

func (m Model) Blur() Model {
	m.focused = false
	return m
}

func (m Model) Focused() bool {
	return m.focused
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Update turns a toggle key on a focused widget, or a left mouse press, into
// one onChange(!Checked()) call. The model itself is returned unchanged.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focused && key.Matches(msg, m.KeyMap.Toggle) {
			return m, m.Activate()
		}
	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			return m, m.Activate()
		}
	}
	return m, nil
}

// Activate requests the opposite of the current value.
func (m Model) Activate() tea.Cmd {
	if m.onChange == nil {
		return nil
	}
	return m.onChange(!m.value)
}

// View renders the checkbox marker, the slider, the optional label and a
// textual state, in that order.
func (m Model) View() string {
	var b strings.Builder

	if m.value {
		b.WriteString(styles.ToggleCheckbox.Render(checkedMarker))
	} else {
		b.WriteString(styles.ToggleCheckboxEmpty.Render(uncheckedMarker))
	}
	b.WriteString(" ")
	b.WriteString(m.slider())

	if m.label != "" {
		b.WriteString(" ")
		if m.focused {
			b.WriteString(styles.ToggleFocused.Render(m.label))
		} else {
			b.WriteString(styles.ToggleLabel.Render(m.label))
		}
	}

	b.WriteString(" ")
	if m.value {
		b.WriteString(styles.ToggleStateOn.Render(stateOn))
	} else {
		b.WriteString(styles.ToggleStateOff.Render(stateOff))
	}

	return b.String()
}

// slider draws the knob on the right when checked and on the left otherwise.
func (m Model) slider() string {
	if m.value {
		return styles.ToggleTrackOn.Render(track + knob)
	}
	return styles.ToggleTrackOff.Render(knob + track)
}
