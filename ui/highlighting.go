package ui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

// highlighter styles the segment being read. The part already spoken, the
// word being spoken and the remainder are rendered differently.
type highlighter struct {
	spoken  func(string) string
	word    func(string) string
	pending func(string) string
	other   func(string) string
}

func newHighlighter(cfg Config, profile termenv.Profile) highlighter {
	if profile == termenv.Ascii {
		// No colors: mark the word with attributes only.
		return highlighter{
			spoken:  func(s string) string { return termenv.String(s).Bold().String() },
			word:    func(s string) string { return termenv.String(s).Reverse().String() },
			pending: func(s string) string { return termenv.String(s).Underline().String() },
			other:   plain,
		}
	}

	return highlighter{
		spoken:  lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.SpokenColor)).Render,
		word:    lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color(cfg.HighlightColor)).Bold(true).Render,
		pending: lipgloss.NewStyle().Bold(true).Render,
		other:   dimStyle.Render,
	}
}

func plain(s string) string { return s }

// render lays out segments for a viewport of the given width and returns the
// content along with the line the current segment starts on.
func (h highlighter) render(segments []string, current, offset, width int) (string, int) {
	var (
		b    strings.Builder
		line int
	)
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		var s string
		switch {
		case i == current:
			line = strings.Count(b.String(), "\n")
			s = h.segment(seg, offset)
		case i < current:
			s = styleLines(h.other, seg)
		default:
			s = seg
		}
		if width > 0 {
			s = wordwrap.String(s, width)
		}
		b.WriteString(s)
	}
	return b.String(), line
}

// segment styles seg with offset runes spoken.
func (h highlighter) segment(seg string, offset int) string {
	spoken, word, rest := splitAtWord(seg, offset)

	var b strings.Builder
	if spoken != "" {
		b.WriteString(styleLines(h.spoken, spoken))
	}
	if word != "" {
		b.WriteString(h.word(word))
	}
	if rest != "" {
		b.WriteString(styleLines(h.pending, rest))
	}
	return b.String()
}

// splitAtWord splits s at rune offset into the spoken prefix, the word
// starting there and the rest. Leading whitespace at the offset stays with
// the spoken part.
func splitAtWord(s string, offset int) (spoken, word, rest string) {
	r := []rune(s)
	if offset <= 0 {
		offset = 0
	}
	if offset >= len(r) {
		return s, "", ""
	}

	start := offset
	for start < len(r) && unicode.IsSpace(r[start]) {
		start++
	}
	end := start
	for end < len(r) && !unicode.IsSpace(r[end]) {
		end++
	}
	return string(r[:start]), string(r[start:end]), string(r[end:])
}

// styleLines applies style line by line, so that wrapping and newlines do
// not carry escape sequences across lines.
func styleLines(style func(string) string, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style(l)
		}
	}
	return strings.Join(lines, "\n")
}
