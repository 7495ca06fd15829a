package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// form is a vertical list of labelled text inputs with one focused field.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(labels ...string) *form {
	f := &form{labels: labels}
	for range labels {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 200
		f.inputs = append(f.inputs, ti)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) Value(i int) string {
	if i < 0 || i >= len(f.inputs) {
		return ""
	}
	return strings.TrimSpace(f.inputs[i].Value())
}

// Raw is the untrimmed value.
func (f *form) Raw(i int) string {
	if i < 0 || i >= len(f.inputs) {
		return ""
	}
	return f.inputs[i].Value()
}

func (f *form) SetValue(i int, v string) {
	if i >= 0 && i < len(f.inputs) {
		f.inputs[i].SetValue(v)
	}
}

func (f *form) Mask(i int) {
	f.inputs[i].EchoMode = textinput.EchoPassword
	f.inputs[i].EchoCharacter = '•'
}

func (f *form) Focused() int { return f.focus }

// FocusIndex moves focus to i; an index past the fields blurs every input so an
// owner can put focus elsewhere.
func (f *form) FocusIndex(i int) {
	f.focus = i
	for j := range f.inputs {
		if j == i {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

func (f *form) Len() int { return len(f.inputs) }

// Update feeds msg to the focused input and reports whether its value changed.
func (f *form) Update(msg tea.Msg) (bool, tea.Cmd) {
	if f.focus < 0 || f.focus >= len(f.inputs) {
		return false, nil
	}
	before := f.inputs[f.focus].Value()
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return before != f.inputs[f.focus].Value(), cmd
}

func (f *form) View() string {
	width := 0
	for _, l := range f.labels {
		width = max(width, len([]rune(l)))
	}
	var b strings.Builder
	for i, l := range f.labels {
		marker := " "
		if i == f.focus {
			marker = "▶"
		}
		b.WriteString(marker + " " + l + strings.Repeat(" ", width-len([]rune(l))) + "  " + f.inputs[i].View() + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
