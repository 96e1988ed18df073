package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks localdocs/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// ChunkStore defines the interface for chunk and embedding storage operations.
type ChunkStore interface {
	// AddChunks bulk-inserts chunks in order and returns their assigned IDs.
	// Order is preserved so line/page provenance lookups stay stable.
	AddChunks(ctx context.Context, chunks []*ChunkRecord) ([]int64, error)
	// AddEmbedding stores the vector for a chunk. Idempotent: re-adding
	// for the same chunk ID overwrites.
	AddEmbedding(ctx context.Context, chunkID int64, vector []float32) error
	// HasChunk reports whether a chunk row still exists.
	HasChunk(ctx context.Context, chunkID int64) (bool, error)
	// CountMissingEmbeddings counts chunks of a document without a stored vector.
	CountMissingEmbeddings(ctx context.Context, documentID int64) (int64, error)
	// ListIDsByDocument returns all chunk IDs for a document, ordered by chunk index.
	ListIDsByDocument(ctx context.Context, documentID int64) ([]int64, error)
	// DeleteByDocument deletes all chunks (and their embeddings) for a document.
	DeleteByDocument(ctx context.Context, documentID int64) error
	// GetByID returns a single chunk with its document metadata.
	GetByID(ctx context.Context, chunkID int64) (SearchHit, error)
	// Query returns the k stored chunks most similar to the query vector,
	// restricted to the given collection names. Ties break on lowest chunk ID.
	Query(ctx context.Context, collections []string, queryVector []float32, k int) ([]SearchHit, error)
}

// ChunkRepo provides methods for chunk and embedding operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// AddChunks bulk-inserts chunks in order and returns their assigned IDs.
func (r *ChunkRepo) AddChunks(ctx context.Context, chunks []*ChunkRecord) ([]int64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (document_id, folder_id, chunk_index, chunk_text, file, title, author, page, line_from, line_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		result, err := stmt.ExecContext(ctx,
			chunk.DocumentID, chunk.FolderID, chunk.ChunkIndex, chunk.Text,
			chunk.File, chunk.Title, chunk.Author, chunk.Page, chunk.LineFrom, chunk.LineTo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk id: %w", err)
		}
		chunk.ID = id
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunk insert: %w", err)
	}
	return ids, nil
}

// AddEmbedding stores the vector for a chunk, overwriting any previous one.
func (r *ChunkRepo) AddEmbedding(ctx context.Context, chunkID int64, vector []float32) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO embeddings (chunk_id, vector) VALUES (?, ?)
		 ON CONFLICT (chunk_id) DO UPDATE SET vector = excluded.vector`,
		chunkID, EncodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// HasChunk reports whether a chunk row still exists.
func (r *ChunkRepo) HasChunk(ctx context.Context, chunkID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM chunks WHERE id = ?", chunkID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query chunk existence: %w", err)
	}
	return true, nil
}

// CountMissingEmbeddings counts chunks of a document without a stored vector.
func (r *ChunkRepo) CountMissingEmbeddings(ctx context.Context, documentID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks
		 WHERE document_id = ? AND id NOT IN (SELECT chunk_id FROM embeddings)`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count missing embeddings: %w", err)
	}
	return count, nil
}

// ListIDsByDocument returns all chunk IDs for a document, ordered by chunk index.
// Returns an empty slice if no chunks exist (not an error).
func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// DeleteByDocument deletes all chunks (and their embeddings) for a document.
// Used when re-indexing a changed file to remove stale chunks first.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)", documentID,
	); err != nil {
		return fmt.Errorf("failed to delete embeddings by document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk delete: %w", err)
	}
	return nil
}

// GetByID returns a single chunk with its document metadata. Returns
// ErrNotFound if the chunk no longer exists.
func (r *ChunkRepo) GetByID(ctx context.Context, chunkID int64) (SearchHit, error) {
	var hit SearchHit
	var title, author sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.document_id, c.folder_id, c.chunk_index, c.chunk_text,
		        c.file, c.title, c.author, c.page, c.line_from, c.line_to,
		        d.document_path, d.document_time
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.id = ?`,
		chunkID,
	).Scan(
		&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.FolderID, &hit.Chunk.ChunkIndex, &hit.Chunk.Text,
		&hit.Chunk.File, &title, &author, &hit.Chunk.Page, &hit.Chunk.LineFrom, &hit.Chunk.LineTo,
		&hit.DocumentPath, &hit.DocumentTime,
	)
	if err == sql.ErrNoRows {
		return SearchHit{}, ErrNotFound
	}
	if err != nil {
		return SearchHit{}, fmt.Errorf("failed to get chunk: %w", err)
	}
	hit.Chunk.Title = title.String
	hit.Chunk.Author = author.String
	return hit, nil
}

// Query scans stored embeddings for the given collections and returns the
// top-k hits by cosine similarity, ties broken by lowest chunk ID.
func (r *ChunkRepo) Query(ctx context.Context, collections []string, queryVector []float32, k int) ([]SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(collections) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(collections)), ",")
	args := make([]any, 0, len(collections))
	for _, c := range collections {
		args = append(args, c)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.folder_id, c.chunk_index, c.chunk_text,
		        c.file, c.title, c.author, c.page, c.line_from, c.line_to,
		        e.vector, d.document_path, d.document_time
		 FROM chunks c
		 JOIN embeddings e ON e.chunk_id = c.id
		 JOIN documents d ON d.id = c.document_id
		 JOIN folders f ON f.id = c.folder_id
		 WHERE f.collection_name IN (`+placeholders+`)
		 ORDER BY c.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var blob []byte
		var title, author sql.NullString
		if err := rows.Scan(
			&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.FolderID, &hit.Chunk.ChunkIndex, &hit.Chunk.Text,
			&hit.Chunk.File, &title, &author, &hit.Chunk.Page, &hit.Chunk.LineFrom, &hit.Chunk.LineTo,
			&blob, &hit.DocumentPath, &hit.DocumentTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hit.Chunk.Title = title.String
		hit.Chunk.Author = author.String

		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", hit.Chunk.ID, err)
		}
		hit.Similarity = CosineSimilarity(queryVector, vec)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	// Rows arrive ordered by chunk ID, and SliceStable keeps that order for
	// equal similarities, which gives the deterministic tie-break.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
