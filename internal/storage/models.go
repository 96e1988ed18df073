package storage

import "time"

// FolderRecord represents a watched folder belonging to a named collection.
type FolderRecord struct {
	ID         int64
	Collection string // User-visible collection name; several folders may share one
	Path       string // Absolute path of the watched directory
	Installed  bool   // True once at least one full scan has completed
	CreatedAt  time.Time
}

// DocumentRecord represents one discovered file under a watched folder.
type DocumentRecord struct {
	ID           int64
	FolderID     int64
	Path         string // Absolute file path
	Suffix       string // File extension without the dot
	DocumentTime int64  // Last processed modification time, unix milliseconds
	SizeBytes    int64
}

// ChunkRecord represents a bounded span of extracted text, the unit of embedding.
type ChunkRecord struct {
	ID         int64
	DocumentID int64
	FolderID   int64
	ChunkIndex int    // Order within the document (starts at 0)
	Text       string
	File       string // File name without the directory part
	Title      string
	Author     string
	Page       int // -1 when the format has no pages
	LineFrom   int // -1 when unknown
	LineTo     int
}

// SearchHit is one chunk returned from a similarity query, joined with
// enough document metadata to build a retrieval result.
type SearchHit struct {
	Chunk        ChunkRecord
	Similarity   float32
	DocumentPath string
	DocumentTime int64 // unix milliseconds
}
