package extract

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts per-page plain text from PDF documents.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one segment per page with text content. Pages are numbered
// from 1; line numbers are not available for PDF sources.
func (e *PDFExtractor) Extract(path string) ([]Segment, Info, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, Info{}, &ExtractionError{Path: path, Message: "cannot open pdf", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	info := readDocumentInfo(r)

	var segments []Segment
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is skipped, not fatal for the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		segments = append(segments, Segment{
			Text:     text,
			Page:     pageNum,
			LineFrom: -1,
			LineTo:   -1,
		})
	}

	if len(segments) == 0 {
		return nil, Info{}, &ExtractionError{Path: path, Message: "no extractable text in pdf"}
	}

	return segments, info, nil
}

// readDocumentInfo pulls title and author from the PDF Info dictionary when present.
func readDocumentInfo(r *pdf.Reader) Info {
	defer func() {
		// The pdf library panics on malformed trailers; metadata is optional.
		_ = recover()
	}()

	var info Info
	dict := r.Trailer().Key("Info")
	if dict.IsNull() {
		return info
	}
	if title := dict.Key("Title"); !title.IsNull() {
		info.Title = title.Text()
	}
	if author := dict.Key("Author"); !author.IsNull() {
		info.Author = author.Text()
	}
	return info
}
