// Package document extracts page-level text from source documents.
// PDF is the only supported input format; everything else is rejected
// before any processing work begins.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned when an input file is not a PDF.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Page is one page of extracted text with its provenance.
type Page struct {
	Text   string
	Number int    // 1-based page number
	Source string // originating document name (base filename)
}

// Supported reports whether the file at path is a format the loader can read.
func Supported(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ValidateBatch checks every path before any document is opened, so an
// unsupported file fails the whole batch up front.
func ValidateBatch(paths []string) error {
	for _, p := range paths {
		if !Supported(p) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(p))
		}
	}
	return nil
}

// LoadPDF extracts per-page text from the PDF at path. Pages with no
// extractable text are skipped; a scanned-image PDF therefore yields zero
// pages, which is not an error at this layer.
func (l *Loader) LoadPDF(path string) ([]Page, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	source := filepath.Base(path)
	total := reader.NumPage()
	pages := make([]Page, 0, total)

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Text: text, Number: i, Source: source})
	}

	return pages, nil
}

// Loader reads supported documents into page-level text units.
type Loader struct{}

// NewLoader creates a document loader.
func NewLoader() *Loader {
	return &Loader{}
}
