// Package pdfdoc reads manual PDFs into page-aware text and splits pages into
// embeddable chunks.
package pdfdoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one manual page. Label is the 1-indexed page
// number rendered as a string, matching the labels carried through retrieval
// and image extraction.
type Page struct {
	Label string
	Text  string
}

// Reader extracts page text from a document on disk.
type Reader interface {
	ReadPages(path string) ([]Page, error)
}

// PDFReader reads PDFs with ledongthuc/pdf.
type PDFReader struct{}

// NewReader returns a PDF-backed Reader.
func NewReader() *PDFReader { return &PDFReader{} }

// ReadPages extracts the plain text of every page. Pages whose text cannot be
// decoded are skipped rather than failing the document; a document where no
// page yields text is an error.
func (PDFReader) ReadPages(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: open %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Label: strconv.Itoa(i), Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("pdfdoc: %s: no extractable text", path)
	}
	return pages, nil
}
