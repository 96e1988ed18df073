package engine

import (
	"strings"

	"localdocs/internal/extract"
)

// chunkDraft is a chunk before persistence, carrying its provenance.
type chunkDraft struct {
	text     string
	page     int
	lineFrom int
	lineTo   int
}

// buildChunks merges extracted segments into chunks of at most chunkSize
// characters. Segments never merge across pages, so page provenance stays
// exact; within a page the line range covers the merged segments. A single
// segment longer than chunkSize is split on word boundaries.
func buildChunks(segments []extract.Segment, chunkSize int) []chunkDraft {
	if chunkSize <= 0 {
		chunkSize = 512
	}

	var chunks []chunkDraft
	var sb strings.Builder
	page := -1
	lineFrom, lineTo := -1, -1

	flush := func() {
		if sb.Len() == 0 {
			return
		}
		chunks = append(chunks, chunkDraft{
			text:     sb.String(),
			page:     page,
			lineFrom: lineFrom,
			lineTo:   lineTo,
		})
		sb.Reset()
		lineFrom, lineTo = -1, -1
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if sb.Len() > 0 && seg.Page != page {
			flush()
		}
		page = seg.Page

		if len(text) > chunkSize {
			// Oversized segment: flush what we have, then split it on its own.
			flush()
			for _, piece := range splitWords(text, chunkSize) {
				chunks = append(chunks, chunkDraft{
					text:     piece,
					page:     seg.Page,
					lineFrom: seg.LineFrom,
					lineTo:   seg.LineTo,
				})
			}
			continue
		}

		// +1 for the joining newline between segments.
		if sb.Len() > 0 && sb.Len()+1+len(text) > chunkSize {
			flush()
			page = seg.Page
		}

		if sb.Len() == 0 {
			lineFrom = seg.LineFrom
		} else {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		lineTo = seg.LineTo
	}
	flush()

	return chunks
}

// splitWords splits text into pieces of at most size characters, breaking on
// word boundaries where possible.
func splitWords(text string, size int) []string {
	var pieces []string
	var sb strings.Builder

	for _, word := range strings.Fields(text) {
		// A single word longer than size is hard-split.
		for len(word) > size {
			if sb.Len() > 0 {
				pieces = append(pieces, sb.String())
				sb.Reset()
			}
			pieces = append(pieces, word[:size])
			word = word[size:]
		}
		if word == "" {
			continue
		}

		if sb.Len() > 0 && sb.Len()+1+len(word) > size {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	if sb.Len() > 0 {
		pieces = append(pieces, sb.String())
	}

	return pieces
}
