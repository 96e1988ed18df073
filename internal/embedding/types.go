package embedding

import "fmt"

// Chunk is one pending embedding request, tagged with the owning folder and
// chunk so results and errors can be attributed after the fact.
type Chunk struct {
	FolderID int64
	ChunkID  int64
	Text     string
}

// Result is one generated embedding, tagged like the request that produced it.
type Result struct {
	FolderID int64
	ChunkID  int64
	Vector   []float32
}

// BatchError is a failed embedding batch, attributed to its owning folder.
// ChunkIDs lists the chunks whose embeddings were lost so the engine can
// settle its in-flight accounting.
type BatchError struct {
	FolderID int64
	ChunkIDs []int64
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch failed for folder %d: %v", e.FolderID, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
