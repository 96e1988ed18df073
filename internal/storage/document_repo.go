package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks localdocs/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByPath gets a document by folder ID and path. Returns ErrNotFound if missing.
	GetByPath(ctx context.Context, folderID int64, path string) (DocumentRecord, error)
	// Insert inserts a new document row and returns its assigned ID.
	Insert(ctx context.Context, doc *DocumentRecord) (int64, error)
	// UpdateTime records a new processed modification time and size for a document.
	UpdateTime(ctx context.Context, documentID, documentTime, sizeBytes int64) error
	// Remove deletes a document and cascades its chunks and embeddings.
	Remove(ctx context.Context, documentID int64) error
	// ListByFolder returns all documents for a folder.
	ListByFolder(ctx context.Context, folderID int64) ([]DocumentRecord, error)
	// CountByFolder counts documents under a folder.
	CountByFolder(ctx context.Context, folderID int64) (int64, error)
	// SumBytesByFolder sums document sizes under a folder.
	SumBytesByFolder(ctx context.Context, folderID int64) (int64, error)
	// Exists reports whether a document row still exists.
	Exists(ctx context.Context, documentID int64) (bool, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// GetByPath gets a document by folder ID and path. Returns ErrNotFound if missing.
func (r *DocumentRepo) GetByPath(ctx context.Context, folderID int64, path string) (DocumentRecord, error) {
	var doc DocumentRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, folder_id, document_path, suffix, document_time, size_bytes FROM documents WHERE folder_id = ? AND document_path = ?",
		folderID, path,
	).Scan(&doc.ID, &doc.FolderID, &doc.Path, &doc.Suffix, &doc.DocumentTime, &doc.SizeBytes)

	if err == sql.ErrNoRows {
		return DocumentRecord{}, ErrNotFound
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// Insert inserts a new document row and returns its assigned ID.
func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO documents (folder_id, document_path, suffix, document_time, size_bytes) VALUES (?, ?, ?, ?, ?)",
		doc.FolderID, doc.Path, doc.Suffix, doc.DocumentTime, doc.SizeBytes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read document id: %w", err)
	}
	doc.ID = id
	return id, nil
}

// UpdateTime records a new processed modification time and size for a document.
func (r *DocumentRepo) UpdateTime(ctx context.Context, documentID, documentTime, sizeBytes int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE documents SET document_time = ?, size_bytes = ? WHERE id = ?",
		documentTime, sizeBytes, documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document time: %w", err)
	}
	return nil
}

// Remove deletes a document and cascades its chunks and embeddings.
func (r *DocumentRepo) Remove(ctx context.Context, documentID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmts := []string{
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
		"DELETE FROM chunks WHERE document_id = ?",
		"DELETE FROM documents WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, documentID); err != nil {
			return fmt.Errorf("failed to delete document data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document delete: %w", err)
	}
	return nil
}

// ListByFolder returns all documents for a folder.
func (r *DocumentRepo) ListByFolder(ctx context.Context, folderID int64) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, folder_id, document_path, suffix, document_time, size_bytes FROM documents WHERE folder_id = ? ORDER BY id",
		folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		if err := rows.Scan(&doc.ID, &doc.FolderID, &doc.Path, &doc.Suffix, &doc.DocumentTime, &doc.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

// CountByFolder counts documents under a folder.
func (r *DocumentRepo) CountByFolder(ctx context.Context, folderID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE folder_id = ?", folderID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// SumBytesByFolder sums document sizes under a folder.
func (r *DocumentRepo) SumBytesByFolder(ctx context.Context, folderID int64) (int64, error) {
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(size_bytes) FROM documents WHERE folder_id = ?", folderID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum document bytes: %w", err)
	}
	return sum.Int64, nil
}

// Exists reports whether a document row still exists.
func (r *DocumentRepo) Exists(ctx context.Context, documentID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query document existence: %w", err)
	}
	return true, nil
}
