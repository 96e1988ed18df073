package storage

import (
	"context"
	"errors"
	"testing"
)

func addTestFolder(t *testing.T, repo *FolderRepo, collection, path string) FolderRecord {
	t.Helper()
	folder, err := repo.Add(context.Background(), collection, path)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return folder
}

func TestDocumentRepo_InsertAndGetByPath(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	folder := addTestFolder(t, NewFolderRepo(db), "work", "/tmp/docs")
	repo := NewDocumentRepo(db)

	id, err := repo.Insert(ctx, &DocumentRecord{
		FolderID:     folder.ID,
		Path:         "/tmp/docs/a.txt",
		Suffix:       "txt",
		DocumentTime: 0,
		SizeBytes:    42,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.GetByPath(ctx, folder.ID, "/tmp/docs/a.txt")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if got.ID != id || got.Suffix != "txt" || got.SizeBytes != 42 || got.DocumentTime != 0 {
		t.Errorf("GetByPath() = %+v", got)
	}
}

func TestDocumentRepo_GetByPath_NotFound(t *testing.T) {
	db := setupTestDB(t)
	folder := addTestFolder(t, NewFolderRepo(db), "work", "/tmp/docs")
	repo := NewDocumentRepo(db)

	_, err := repo.GetByPath(context.Background(), folder.ID, "/tmp/docs/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByPath() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_UpdateTime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	folder := addTestFolder(t, NewFolderRepo(db), "work", "/tmp/docs")
	repo := NewDocumentRepo(db)

	id, err := repo.Insert(ctx, &DocumentRecord{
		FolderID: folder.ID,
		Path:     "/tmp/docs/a.txt",
		Suffix:   "txt",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := repo.UpdateTime(ctx, id, 1700000000000, 128); err != nil {
		t.Fatalf("UpdateTime() error = %v", err)
	}
	got, err := repo.GetByPath(ctx, folder.ID, "/tmp/docs/a.txt")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if got.DocumentTime != 1700000000000 {
		t.Errorf("DocumentTime = %d, want 1700000000000", got.DocumentTime)
	}
	if got.SizeBytes != 128 {
		t.Errorf("SizeBytes = %d, want 128", got.SizeBytes)
	}
}

func TestDocumentRepo_RemoveCascadesChunks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	folder := addTestFolder(t, NewFolderRepo(db), "work", "/tmp/docs")
	repo := NewDocumentRepo(db)
	chunkRepo := NewChunkRepo(db)

	id, err := repo.Insert(ctx, &DocumentRecord{FolderID: folder.ID, Path: "/tmp/docs/a.txt", Suffix: "txt"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	ids, err := chunkRepo.AddChunks(ctx, []*ChunkRecord{
		{DocumentID: id, FolderID: folder.ID, ChunkIndex: 0, Text: "hello", File: "a.txt"},
	})
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := chunkRepo.AddEmbedding(ctx, ids[0], []float32{1}); err != nil {
		t.Fatalf("AddEmbedding() error = %v", err)
	}

	if err := repo.Remove(ctx, id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	exists, err := repo.Exists(ctx, id)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("document should be gone")
	}
	has, err := chunkRepo.HasChunk(ctx, ids[0])
	if err != nil {
		t.Fatalf("HasChunk() error = %v", err)
	}
	if has {
		t.Error("chunk should be gone after document removal")
	}
}

func TestDocumentRepo_FolderAggregates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	folder := addTestFolder(t, NewFolderRepo(db), "work", "/tmp/docs")
	repo := NewDocumentRepo(db)

	for i, size := range []int64{10, 20, 30} {
		if _, err := repo.Insert(ctx, &DocumentRecord{
			FolderID:  folder.ID,
			Path:      "/tmp/docs/" + string(rune('a'+i)) + ".txt",
			Suffix:    "txt",
			SizeBytes: size,
		}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	count, err := repo.CountByFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("CountByFolder() error = %v", err)
	}
	if count != 3 {
		t.Errorf("CountByFolder() = %d, want 3", count)
	}

	total, err := repo.SumBytesByFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("SumBytesByFolder() error = %v", err)
	}
	if total != 60 {
		t.Errorf("SumBytesByFolder() = %d, want 60", total)
	}

	docs, err := repo.ListByFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("ListByFolder() error = %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("ListByFolder() returned %d docs, want 3", len(docs))
	}
}
