package extract

import (
	"bufio"
	"os"
)

// TextExtractor reads plain-text files one line per segment, so line
// provenance survives chunking.
type TextExtractor struct{}

// NewTextExtractor creates a new TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns one segment per non-empty line, numbered from 1.
func (e *TextExtractor) Extract(path string) ([]Segment, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, &ExtractionError{Path: path, Message: "cannot open file", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	var segments []Segment
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Page:     -1,
			LineFrom: line,
			LineTo:   line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, Info{}, &ExtractionError{Path: path, Message: "cannot read file", Err: err}
	}

	return segments, Info{}, nil
}
