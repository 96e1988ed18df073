package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFolderRepo_AddAndGetByPath(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFolderRepo(db)
	ctx := context.Background()

	added, err := repo.Add(ctx, "work", "/tmp/docs")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.ID == 0 {
		t.Error("Add() should assign an ID")
	}
	if added.Installed {
		t.Error("Add() folder should start uninstalled")
	}

	got, err := repo.GetByPath(ctx, "work", "/tmp/docs")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if got.ID != added.ID || got.Collection != "work" || got.Path != "/tmp/docs" {
		t.Errorf("GetByPath() = %+v, want id=%d collection=work path=/tmp/docs", got, added.ID)
	}
}

func TestFolderRepo_GetByPath_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFolderRepo(db)

	_, err := repo.GetByPath(context.Background(), "work", "/does/not/exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByPath() error = %v, want ErrNotFound", err)
	}
}

func TestFolderRepo_Add_DuplicateRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFolderRepo(db)
	ctx := context.Background()

	if _, err := repo.Add(ctx, "work", "/tmp/docs"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := repo.Add(ctx, "work", "/tmp/docs"); err == nil {
		t.Error("Add() should reject a duplicate collection+path pair")
	}

	// Same path under a different collection is allowed.
	if _, err := repo.Add(ctx, "personal", "/tmp/docs"); err != nil {
		t.Errorf("Add() same path in other collection error = %v", err)
	}
}

func TestFolderRepo_ListAll_Ordering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFolderRepo(db)
	ctx := context.Background()

	for _, pair := range [][2]string{
		{"work", "/tmp/b"},
		{"personal", "/tmp/z"},
		{"work", "/tmp/a"},
	} {
		if _, err := repo.Add(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("Add(%v) error = %v", pair, err)
		}
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll() returned %d folders, want 3", len(all))
	}
	want := [][2]string{
		{"personal", "/tmp/z"},
		{"work", "/tmp/a"},
		{"work", "/tmp/b"},
	}
	for i, rec := range all {
		if rec.Collection != want[i][0] || rec.Path != want[i][1] {
			t.Errorf("ListAll()[%d] = %s %s, want %s %s", i, rec.Collection, rec.Path, want[i][0], want[i][1])
		}
	}
}

func TestFolderRepo_SetInstalled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFolderRepo(db)
	ctx := context.Background()

	added, err := repo.Add(ctx, "work", "/tmp/docs")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := repo.SetInstalled(ctx, added.ID, true); err != nil {
		t.Fatalf("SetInstalled() error = %v", err)
	}
	got, err := repo.GetByPath(ctx, "work", "/tmp/docs")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if !got.Installed {
		t.Error("SetInstalled(true) should persist")
	}
}

func TestFolderRepo_Remove_Cascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	folderRepo := NewFolderRepo(db)
	docRepo := NewDocumentRepo(db)
	chunkRepo := NewChunkRepo(db)

	folder, err := folderRepo.Add(ctx, "work", "/tmp/docs")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	docID, err := docRepo.Insert(ctx, &DocumentRecord{
		FolderID: folder.ID,
		Path:     "/tmp/docs/a.txt",
		Suffix:   "txt",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	ids, err := chunkRepo.AddChunks(ctx, []*ChunkRecord{
		{DocumentID: docID, FolderID: folder.ID, ChunkIndex: 0, Text: "hello", File: "a.txt"},
	})
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := chunkRepo.AddEmbedding(ctx, ids[0], []float32{1, 0}); err != nil {
		t.Fatalf("AddEmbedding() error = %v", err)
	}

	if err := folderRepo.Remove(ctx, folder.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := folderRepo.GetByPath(ctx, "work", "/tmp/docs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("folder should be gone, got err = %v", err)
	}
	exists, err := docRepo.Exists(ctx, docID)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("document should be gone after folder removal")
	}
	has, err := chunkRepo.HasChunk(ctx, ids[0])
	if err != nil {
		t.Fatalf("HasChunk() error = %v", err)
	}
	if has {
		t.Error("chunk should be gone after folder removal")
	}
}
