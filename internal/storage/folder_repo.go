package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_folder_store.go -package=mocks localdocs/internal/storage FolderStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// FolderStore defines the interface for folder storage operations.
type FolderStore interface {
	// Add inserts a new folder row and returns it with its assigned ID.
	Add(ctx context.Context, collection, path string) (FolderRecord, error)
	// GetByPath gets a folder by collection name and path. Returns ErrNotFound if missing.
	GetByPath(ctx context.Context, collection, path string) (FolderRecord, error)
	// ListAll returns every registered folder ordered by collection name then path.
	ListAll(ctx context.Context) ([]FolderRecord, error)
	// SetInstalled updates the installed flag for a folder.
	SetInstalled(ctx context.Context, folderID int64, installed bool) error
	// Remove deletes the folder and everything under it.
	// Deletion order is embeddings, chunks, documents, folder inside one
	// transaction so a crash can never leave dangling foreign keys.
	Remove(ctx context.Context, folderID int64) error
}

// FolderRepo provides methods for folder operations.
// It implements the FolderStore interface.
type FolderRepo struct {
	db *sql.DB
}

// NewFolderRepo creates a new FolderRepo.
func NewFolderRepo(db *sql.DB) *FolderRepo {
	return &FolderRepo{db: db}
}

// Add inserts a new folder row and returns it with its assigned ID.
func (r *FolderRepo) Add(ctx context.Context, collection, path string) (FolderRecord, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO folders (collection_name, path) VALUES (?, ?)",
		collection, path,
	)
	if err != nil {
		return FolderRecord{}, fmt.Errorf("failed to insert folder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return FolderRecord{}, fmt.Errorf("failed to read folder id: %w", err)
	}
	return FolderRecord{
		ID:         id,
		Collection: collection,
		Path:       path,
		CreatedAt:  time.Now(),
	}, nil
}

// GetByPath gets a folder by collection name and path. Returns ErrNotFound if missing.
func (r *FolderRepo) GetByPath(ctx context.Context, collection, path string) (FolderRecord, error) {
	var folder FolderRecord
	var installed int
	var createdAtStr string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, collection_name, path, installed, created_at FROM folders WHERE collection_name = ? AND path = ?",
		collection, path,
	).Scan(&folder.ID, &folder.Collection, &folder.Path, &installed, &createdAtStr)

	if err == sql.ErrNoRows {
		return FolderRecord{}, ErrNotFound
	}
	if err != nil {
		return FolderRecord{}, fmt.Errorf("failed to query folder: %w", err)
	}

	folder.Installed = installed != 0
	folder.CreatedAt = parseSQLiteTime(createdAtStr)
	return folder, nil
}

// ListAll returns every registered folder ordered by collection name then path.
func (r *FolderRepo) ListAll(ctx context.Context) ([]FolderRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, collection_name, path, installed, created_at FROM folders ORDER BY collection_name, path",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var folders []FolderRecord
	for rows.Next() {
		var folder FolderRecord
		var installed int
		var createdAtStr string
		if err := rows.Scan(&folder.ID, &folder.Collection, &folder.Path, &installed, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folder.Installed = installed != 0
		folder.CreatedAt = parseSQLiteTime(createdAtStr)
		folders = append(folders, folder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return folders, nil
}

// SetInstalled updates the installed flag for a folder.
func (r *FolderRepo) SetInstalled(ctx context.Context, folderID int64, installed bool) error {
	val := 0
	if installed {
		val = 1
	}
	_, err := r.db.ExecContext(ctx, "UPDATE folders SET installed = ? WHERE id = ?", val, folderID)
	if err != nil {
		return fmt.Errorf("failed to update installed flag: %w", err)
	}
	return nil
}

// Remove deletes the folder and everything under it in one transaction.
func (r *FolderRepo) Remove(ctx context.Context, folderID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Explicit leaf-first ordering; the FK cascades are a backstop, not the plan.
	stmts := []string{
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE folder_id = ?)",
		"DELETE FROM chunks WHERE folder_id = ?",
		"DELETE FROM documents WHERE folder_id = ?",
		"DELETE FROM folders WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, folderID); err != nil {
			return fmt.Errorf("failed to delete folder data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit folder delete: %w", err)
	}
	return nil
}

// parseSQLiteTime parses the DATETIME string formats SQLite produces.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
