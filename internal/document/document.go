// Package document turns files into plain text fit for reading aloud.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/readalong/utils"
)

// ErrNoText is returned when a document yields nothing to read.
var ErrNoText = errors.New("document contains no readable text")

// Kind is a document format.
type Kind int

const (
	KindText Kind = iota
	KindMarkdown
	KindHTML
	KindPDF
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindMarkdown:
		return "markdown"
	case KindHTML:
		return "html"
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	default:
		return "text"
	}
}

// KindOf guesses the format of path from its extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return KindHTML
	case ".pdf":
		return KindPDF
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		return KindImage
	case ".txt", ".text", ".log":
		return KindText
	}
	if utils.IsMarkdownFile(path) {
		return KindMarkdown
	}
	return KindText
}

// Runner runs an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor extracts text from documents. The zero value is usable.
type Extractor struct {
	// Run executes pdftotext, pdftoppm and tesseract. Defaults to os/exec.
	Run Runner

	// OCRLanguage is passed to tesseract -l. Defaults to "eng".
	OCRLanguage string
}

// Extract reads path with a default Extractor.
func Extract(ctx context.Context, path string) (string, error) {
	var e Extractor
	return e.Extract(ctx, path)
}

// Extract returns the readable text of the document at path, NFC normalized
// and without front matter.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	path = utils.ExpandPath(path)
	kind := KindOf(path)
	log.Debug("Extracting document", "path", path, "kind", kind)

	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = e.fromPDF(ctx, path)
	case KindImage:
		text, err = e.ocr(ctx, path)
	default:
		var b []byte
		b, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to read document: %w", err)
		}
		text = FromBytes(kind, b)
	}
	if err != nil {
		return "", err
	}

	text = Normalize(text)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// FromBytes converts an in-memory document of the given kind. PDFs and
// images are not supported here.
func FromBytes(kind Kind, b []byte) string {
	switch kind {
	case KindMarkdown:
		return FromMarkdown(utils.RemoveFrontmatter(b))
	case KindHTML:
		return FromHTML(b)
	default:
		return string(utils.RemoveFrontmatter(b))
	}
}

// Normalize applies NFC normalization, unifies line endings and collapses
// runs of blank lines.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.Run != nil {
		return e.Run(ctx, name, args...)
	}
	return runCommand(ctx, name, args...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}
