package extract

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gtext "github.com/yuin/goldmark/text"
)

// MarkdownExtractor extracts plain text from markdown using goldmark AST
// parsing. Each block-level node becomes one segment with its source line
// range, and the first heading becomes the document title.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a new MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Extract parses the markdown file and returns one segment per block node.
func (e *MarkdownExtractor) Extract(path string) ([]Segment, Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, &ExtractionError{Path: path, Message: "cannot read file", Err: err}
	}
	if len(content) == 0 {
		return nil, Info{}, nil
	}

	reader := gtext.NewReader(content)
	doc := e.parser.Parser().Parse(reader)

	info := Info{Title: extractTitle(doc, content, filepath.Base(path))}
	lineStarts := buildLineIndex(content)

	var segments []Segment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock, *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			if lines.Len() == 0 {
				return ast.WalkSkipChildren, nil
			}

			var sb strings.Builder
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(content))
			}
			text := strings.TrimSpace(sb.String())
			if text == "" {
				return ast.WalkSkipChildren, nil
			}

			segments = append(segments, Segment{
				Text:     text,
				Page:     -1,
				LineFrom: lineNumber(lineStarts, lines.At(0).Start),
				LineTo:   lineNumber(lineStarts, lines.At(lines.Len()-1).Start),
			})
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return segments, info, nil
}

// extractTitle picks the first level-1 heading, falling back to the first
// level-2 heading, then the filename without its extension.
func extractTitle(doc ast.Node, content []byte, filename string) string {
	var firstH1, firstH2 string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			headingText := nodeText(heading, content)
			if heading.Level == 1 && firstH1 == "" {
				firstH1 = headingText
			} else if heading.Level == 2 && firstH2 == "" && firstH1 == "" {
				firstH2 = headingText
			}
			if firstH1 != "" {
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// nodeText extracts the text content of a node and its children.
func nodeText(n ast.Node, content []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(content))
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// buildLineIndex returns the byte offset of each line start.
func buildLineIndex(content []byte) []int {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineNumber converts a byte offset to a 1-based line number.
func lineNumber(lineStarts []int, offset int) int {
	idx := sort.Search(len(lineStarts), func(i int) bool {
		return lineStarts[i] > offset
	})
	return idx
}
