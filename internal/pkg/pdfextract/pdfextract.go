package pdfextract

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

// ErrMalformed is returned when the parser gives up on the file structure.
var ErrMalformed = errors.New("malformed pdf")

// ExtractPages returns the plain text of every page in r, in page order.
// Entry i holds page i+1. Pages without a content stream yield "".
func ExtractPages(r io.ReaderAt, size int64) (pages []string, err error) {
	// The parser panics on some broken cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrMalformed, rec)
		}
	}()

	pdfReader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	total := pdfReader.NumPage()
	pages = make([]string, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		p := pdfReader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractFile opens path and extracts its pages.
func ExtractFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ExtractPages(f, info.Size())
}
