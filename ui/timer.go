package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

var errBadTimer = errors.New("enter minutes or a duration like 1h30m")

// timerPromptModel asks for a sleep timer duration.
type timerPromptModel struct {
	input textinput.Model
	err   error
}

func newTimerPromptModel() timerPromptModel {
	ti := textinput.New()
	ti.Prompt = "Sleep in: "
	ti.PromptStyle = selectedStyle
	ti.Placeholder = "30m"
	ti.CharLimit = 16
	ti.Width = 16
	return timerPromptModel{input: ti}
}

func (m *timerPromptModel) open() tea.Cmd {
	m.err = nil
	m.input.SetValue("")
	return m.input.Focus()
}

func (m timerPromptModel) update(msg tea.Msg) (timerPromptModel, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.err = nil
	return m, cmd
}

func (m timerPromptModel) View() string {
	s := fmt.Sprintf("%s\n\n%s", selectedStyle.Render("Sleep timer"), m.input.View())
	if m.err != nil {
		s += "\n\n" + errorTitleStyle.Render("ERROR") + " " + m.err.Error()
	}
	return s + "\n\n" + subtleStyle.Render("enter set • 0 clears • esc cancel")
}

// parseTimer reads a sleep timer. A bare number is minutes and zero clears
// the timer.
func parseTimer(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadTimer
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 {
			return 0, errBadTimer
		}
		return time.Duration(n * float64(time.Minute)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errBadTimer
	}
	return d, nil
}
