package document

import (
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// blockEnd matches tags after which rendered HTML starts a new line.
var blockEnd = regexp.MustCompile(`(?i)(<br\s*/?>|</(p|div|h[1-6]|li|tr|blockquote|pre|section|article|header|footer|title)\s*>)`)

var strict = bluemonday.StrictPolicy()

// FromHTML returns the text of an HTML document. Every tag is stripped,
// script and style contents are dropped and entities are decoded.
func FromHTML(src []byte) string {
	marked := blockEnd.ReplaceAll(src, []byte("$1\n\n"))
	return html.UnescapeString(strict.SanitizeBytes(marked))
}
