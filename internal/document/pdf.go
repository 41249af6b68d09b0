package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// fromPDF reads the text layer with pdftotext and falls back to OCR when the
// layer is empty, as it is for scanned documents.
func (e *Extractor) fromPDF(ctx context.Context, path string) (string, error) {
	out, err := e.run(ctx, "pdftotext", "-enc", "UTF-8", "-nopgbrk", path, "-")
	if err != nil {
		return "", fmt.Errorf("unable to extract pdf text: %w", err)
	}
	if text := string(out); strings.TrimSpace(text) != "" {
		return text, nil
	}

	log.Info("PDF has no text layer, running OCR", "path", path)
	dir, err := os.MkdirTemp("", "readalong-ocr-")
	if err != nil {
		return "", fmt.Errorf("unable to create OCR workspace: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	prefix := filepath.Join(dir, "page")
	if _, err := e.run(ctx, "pdftoppm", "-r", "300", "-png", path, prefix); err != nil {
		return "", fmt.Errorf("unable to rasterize pdf: %w", err)
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", err
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order
	sort.Strings(pages)

	var b strings.Builder
	for _, page := range pages {
		text, err := e.ocr(ctx, page)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// ocr recognizes the text of an image with tesseract.
func (e *Extractor) ocr(ctx context.Context, image string) (string, error) {
	lang := e.OCRLanguage
	if lang == "" {
		lang = "eng"
	}
	out, err := e.run(ctx, "tesseract", image, "stdout", "-l", lang)
	if err != nil {
		return "", fmt.Errorf("unable to run OCR: %w", err)
	}
	return string(out), nil
}
