// Package extract turns documents into plain-text segments with positional
// metadata (page, line range) that the indexing engine chunks and embeds.
package extract

import (
	"fmt"
	"strings"
)

// Segment is one span of extracted text. Page and line numbers are -1 when
// the source format does not provide them.
type Segment struct {
	Text     string
	Page     int
	LineFrom int
	LineTo   int
}

// Info carries optional document-level metadata.
type Info struct {
	Title  string
	Author string
}

// Extractor produces text segments for one document type.
type Extractor interface {
	Extract(path string) ([]Segment, Info, error)
}

// ExtractionError is a per-document failure. The engine records it as a
// folder-level warning and skips the document; it never aborts the scan.
type ExtractionError struct {
	Path    string
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.Path, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Registry dispatches extraction by file suffix. Suffixes not present in the
// registry are the engine's extension allow-list boundary.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the default extractors for plain text,
// markdown, and PDF documents.
func NewRegistry() *Registry {
	text := NewTextExtractor()
	markdown := NewMarkdownExtractor()
	return &Registry{
		extractors: map[string]Extractor{
			"txt":      text,
			"text":     text,
			"rst":      text,
			"md":       markdown,
			"markdown": markdown,
			"pdf":      NewPDFExtractor(),
		},
	}
}

// Supported reports whether the suffix has a registered extractor.
func (r *Registry) Supported(suffix string) bool {
	_, ok := r.extractors[strings.ToLower(suffix)]
	return ok
}

// Extract dispatches to the extractor registered for the suffix.
func (r *Registry) Extract(path, suffix string) ([]Segment, Info, error) {
	ex, ok := r.extractors[strings.ToLower(suffix)]
	if !ok {
		return nil, Info{}, &ExtractionError{Path: path, Message: fmt.Sprintf("unsupported file type %q", suffix)}
	}
	return ex.Extract(path)
}
