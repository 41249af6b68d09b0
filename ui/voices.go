package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/internal/speech"
	"github.com/dgnsrekt/readalong/internal/synth"
	"github.com/dgnsrekt/readalong/internal/voice"
)

// voicePickerModel lets the user filter the voices of the active backend and
// pick one.
type voicePickerModel struct {
	common *commonModel
	input  textinput.Model

	loading bool
	err     error
	all     []synth.Voice // every voice of the catalog
	shown   []synth.Voice // voices matching the mode and the filter
	fav     map[string]bool
	cursor  int

	width, height int
}

func newVoicePickerModel(common *commonModel) voicePickerModel {
	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.PromptStyle = selectedStyle
	ti.Placeholder = "name, language or provider"
	ti.CharLimit = 64
	return voicePickerModel{common: common, input: ti}
}

func (m *voicePickerModel) setSize(w, h int) {
	m.width, m.height = w, h
	m.input.Width = max(0, w-len(m.input.Prompt)-4)
}

// open resets the picker for a new catalog load.
func (m *voicePickerModel) open() tea.Cmd {
	m.loading = true
	m.err = nil
	m.cursor = 0
	m.input.SetValue("")
	return m.input.Focus()
}

func (m *voicePickerModel) setVoices(voices []synth.Voice, err error, mode playback.Mode, isFavorite func(synth.Voice) bool) {
	m.loading = false
	m.err = err
	m.all = voices
	m.refilter(mode, isFavorite)
}

// refilter applies the mode and the query to the catalog.
func (m *voicePickerModel) refilter(mode playback.Mode, isFavorite func(synth.Voice) bool) {
	var forMode []synth.Voice
	for _, v := range m.all {
		if isSpeechVoice(v) == (mode == playback.ModeUtterance) {
			forMode = append(forMode, v)
		}
	}
	m.shown = voice.Search(forMode, m.input.Value())

	m.fav = make(map[string]bool, len(m.shown))
	for _, v := range m.shown {
		if isFavorite(v) {
			m.fav[voice.Key(v)] = true
		}
	}
	m.cursor = min(m.cursor, max(0, len(m.shown)-1))
}

// isSpeechVoice reports whether v belongs to the platform speech engine.
func isSpeechVoice(v synth.Voice) bool {
	return slices.Contains(speech.Commands, v.Provider)
}

func (m voicePickerModel) selected() (synth.Voice, bool) {
	if m.cursor < 0 || m.cursor >= len(m.shown) {
		return synth.Voice{}, false
	}
	return m.shown[m.cursor], true
}

func (m voicePickerModel) update(msg tea.KeyMsg, mode playback.Mode, isFavorite func(synth.Voice) bool) (voicePickerModel, tea.Cmd) {
	switch msg.String() {
	case "up", "ctrl+p", "ctrl+k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "ctrl+n", "ctrl+j":
		if m.cursor < len(m.shown)-1 {
			m.cursor++
		}
		return m, nil
	case "pgup":
		m.cursor = max(0, m.cursor-m.listHeight())
		return m, nil
	case "pgdown":
		m.cursor = max(0, min(len(m.shown)-1, m.cursor+m.listHeight()))
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.cursor = 0
		m.refilter(mode, isFavorite)
	}
	return m, cmd
}

// listHeight is the number of voice rows that fit under the header.
func (m voicePickerModel) listHeight() int {
	return max(1, m.height-6)
}

func (m voicePickerModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n  %s\n\n", logoView(), m.input.View())

	switch {
	case m.loading:
		b.WriteString(subtleStyle.Render("  Loading voices…") + "\n")
	case m.err != nil && len(m.shown) == 0:
		b.WriteString("  " + errorTitleStyle.Render("ERROR") + " " + m.err.Error() + "\n")
	case len(m.shown) == 0:
		b.WriteString(subtleStyle.Render("  No voices for this backend") + "\n")
	default:
		h := m.listHeight()
		start := max(0, m.cursor-h+1)
		end := min(len(m.shown), start+h)
		for i := start; i < end; i++ {
			b.WriteString(m.row(i) + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("  ↑/↓ choose • enter select • tab favorite • esc cancel"))
	return b.String()
}

func (m voicePickerModel) row(i int) string {
	v := m.shown[i]

	star := " "
	if m.fav[voice.Key(v)] {
		star = favoriteStyle.Render("★")
	}
	label := v.String()
	if w := m.width - 6; w > 0 {
		label = runewidth.Truncate(label, max(1, w-runewidth.StringWidth(v.Provider)-2), ellipsis)
	}
	label += "  " + dimStyle.Render(v.Provider)

	if i == m.cursor {
		return fmt.Sprintf("%s %s %s", selectedStyle.Render("›"), star, selectedStyle.Render(label))
	}
	return fmt.Sprintf("  %s %s", star, label)
}
