package toggle

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changedMsg struct {
	checked bool
}

type recorder struct {
	calls []bool
}

func (r *recorder) onChange(checked bool) tea.Cmd {
	r.calls = append(r.calls, checked)
	return func() tea.Msg { return changedMsg{checked: checked} }
}

func TestNew_CheckedReflectsValue(t *testing.T) {
	for _, value := range []bool{true, false} {
		m := New(value, nil)
		assert.Equal(t, value, m.Checked())

		view := m.View()
		if value {
			assert.Contains(t, view, checkedMarker)
			assert.Contains(t, view, stateOn)
			assert.NotContains(t, view, uncheckedMarker)
		} else {
			assert.Contains(t, view, uncheckedMarker)
			assert.Contains(t, view, stateOff)
			assert.NotContains(t, view, checkedMarker)
		}
	}
}

func TestUpdate_ToggleKeysInvokeCallbackOnce(t *testing.T) {
	keys := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"space", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}},
	}

	for _, value := range []bool{true, false} {
		for _, k := range keys {
			t.Run(k.name, func(t *testing.T) {
				rec := &recorder{}
				m := New(value, rec.onChange).Focus()

				updated, cmd := m.Update(k.msg)

				require.Len(t, rec.calls, 1)
				assert.Equal(t, !value, rec.calls[0])
				assert.Equal(t, value, updated.Checked(), "toggle must not flip its own value")
				require.NotNil(t, cmd)
				assert.Equal(t, changedMsg{checked: !value}, cmd())
			})
		}
	}
}

func TestUpdate_LeftClickInvokesCallback(t *testing.T) {
	rec := &recorder{}
	m := New(true, rec.onChange)

	_, cmd := m.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})

	assert.Equal(t, []bool{false}, rec.calls)
	assert.NotNil(t, cmd)
}

func TestUpdate_IgnoredMessages(t *testing.T) {
	tests := []struct {
		name    string
		focused bool
		msg     tea.Msg
	}{
		{"toggle key while blurred", false, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}},
		{"other key", true, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}},
		{"right click", true, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonRight}},
		{"mouse release", true, tea.MouseMsg{Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft}},
		{"window size", true, tea.WindowSizeMsg{Width: 80, Height: 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			m := New(false, rec.onChange)
			if tt.focused {
				m = m.Focus()
			}

			_, cmd := m.Update(tt.msg)

			assert.Empty(t, rec.calls)
			assert.Nil(t, cmd)
		})
	}
}

func TestUpdate_NilCallback(t *testing.T) {
	m := New(false, nil).Focus()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.False(t, updated.Checked())
}

func TestView_Deterministic(t *testing.T) {
	m := New(true, nil).WithLabel("invert")
	assert.Equal(t, m.View(), m.View())
	assert.Equal(t, m.Focus().View(), m.Focus().View())
}

func TestView_Layout(t *testing.T) {
	view := New(true, nil).WithLabel("healthy").View()

	marker := strings.Index(view, checkedMarker)
	slider := strings.Index(view, track+knob)
	label := strings.Index(view, "healthy")
	state := strings.LastIndex(view, stateOn)

	require.True(t, marker >= 0 && slider >= 0 && label >= 0 && state >= 0, view)
	assert.Less(t, marker, slider)
	assert.Less(t, slider, label)
	assert.Less(t, label, state)

	assert.Contains(t, New(false, nil).View(), knob+track)
}

func TestFocusBlurReturnCopies(t *testing.T) {
	m := New(false, nil)
	focused := m.Focus()

	assert.False(t, m.Focused())
	assert.True(t, focused.Focused())
	assert.False(t, focused.Blur().Focused())
	assert.Equal(t, "", m.Label())
	assert.Equal(t, "x", m.WithLabel("x").Label())
}

func TestKeyMapOverride(t *testing.T) {
	rec := &recorder{}
	m := New(false, rec.onChange).Focus()
	m.KeyMap.Toggle.SetKeys("t")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	assert.NotNil(t, cmd)
	assert.Equal(t, []bool{true}, rec.calls)
}
