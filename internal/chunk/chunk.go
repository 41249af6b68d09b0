// Package chunk splits document text into speakable segments.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default segment bounds, in runes. Synthesis providers pay a round trip per
// segment so the clip backend uses short segments to start playback quickly;
// the platform speech engine has no such cost.
const (
	DefaultClipMaxChars      = 250
	DefaultUtteranceMaxChars = 1000
)

// Span is a half-open byte range into the text it was computed from.
type Span struct {
	Start int
	End   int
}

// Split groups the sentences of text into segments of at most maxChars runes.
// Sentences are accumulated greedily and never split, so a single sentence
// longer than maxChars becomes a segment of its own. Segments are trimmed and
// never empty. A maxChars of zero or less disables the bound.
func Split(text string, maxChars int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{strings.TrimSpace(text)}
	}

	var (
		segments []string
		buf      string
	)
	for _, sp := range Sentences(text) {
		sentence := text[sp.Start:sp.End]
		candidate := buf + sentence
		if runeLen(strings.TrimSpace(candidate)) > maxChars && strings.TrimSpace(buf) != "" {
			segments = append(segments, strings.TrimSpace(buf))
			buf = sentence
			continue
		}
		buf = candidate
	}
	if s := strings.TrimSpace(buf); s != "" {
		segments = append(segments, s)
	}
	return segments
}

// Sentences returns the sentence spans of text. The spans are contiguous and
// cover the whole input: leading whitespace belongs to the sentence that
// follows it, and terminators plus any closing quotes stay with the sentence
// they end.
func Sentences(text string) []Span {
	var spans []Span
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if r == '\n' {
			spans = append(spans, Span{start, i})
			start = i
			continue
		}
		if !isTerminator(r) {
			continue
		}

		// absorb runs like "?!" or "..." and trailing closers
		for i < len(text) {
			next, n := utf8.DecodeRuneInString(text[i:])
			if !isTerminator(next) && !isCloser(next) {
				break
			}
			i += n
		}

		if i == len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(next) {
			spans = append(spans, Span{start, i})
			start = i
		}
	}
	if start < len(text) {
		spans = append(spans, Span{start, len(text)})
	}
	return spans
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
