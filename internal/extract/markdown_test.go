package extract

import (
	"testing"
)

func TestMarkdownExtractor_Extract(t *testing.T) {
	content := `# My Document

First paragraph of text.

## Section

Second paragraph
spanning two lines.
`
	path := writeTestFile(t, "doc.md", content)

	segments, info, err := NewMarkdownExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != "My Document" {
		t.Errorf("Title = %q, want %q", info.Title, "My Document")
	}
	if len(segments) != 4 {
		t.Fatalf("Extract() returned %d segments, want 4: %+v", len(segments), segments)
	}

	if segments[0].Text != "My Document" || segments[0].LineFrom != 1 {
		t.Errorf("heading segment = %+v", segments[0])
	}
	if segments[1].Text != "First paragraph of text." || segments[1].LineFrom != 3 {
		t.Errorf("paragraph segment = %+v", segments[1])
	}

	multiline := segments[3]
	if multiline.LineFrom != 7 || multiline.LineTo != 8 {
		t.Errorf("multi-line paragraph lines = %d-%d, want 7-8", multiline.LineFrom, multiline.LineTo)
	}
	for _, seg := range segments {
		if seg.Page != -1 {
			t.Errorf("markdown segments should have Page = -1, got %d", seg.Page)
		}
	}
}

func TestMarkdownExtractor_TitleFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		file    string
		want    string
	}{
		{
			name:    "h1 preferred",
			content: "## Sub\n\n# Top\n",
			file:    "notes.md",
			want:    "Top",
		},
		{
			name:    "h2 when no h1",
			content: "## Only Sub\n\ntext\n",
			file:    "notes.md",
			want:    "Only Sub",
		},
		{
			name:    "filename when no headings",
			content: "just a paragraph\n",
			file:    "notes.md",
			want:    "notes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.file, tt.content)
			_, info, err := NewMarkdownExtractor().Extract(path)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if info.Title != tt.want {
				t.Errorf("Title = %q, want %q", info.Title, tt.want)
			}
		})
	}
}

func TestMarkdownExtractor_EmptyFile(t *testing.T) {
	path := writeTestFile(t, "empty.md", "")

	segments, info, err := NewMarkdownExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("Extract() returned %d segments, want 0", len(segments))
	}
	if info.Title != "" {
		t.Errorf("Title = %q, want empty", info.Title)
	}
}

func TestMarkdownExtractor_CodeBlock(t *testing.T) {
	content := "Intro.\n\n```\nfunc main() {}\n```\n"
	path := writeTestFile(t, "code.md", content)

	segments, _, err := NewMarkdownExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("Extract() returned %d segments, want 2: %+v", len(segments), segments)
	}
	if segments[1].Text != "func main() {}" {
		t.Errorf("code segment text = %q", segments[1].Text)
	}
}
