package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks localdocs/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata. IDs are chunk IDs.
type Point struct {
	ID   int64
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID int64
	Score   float32
	Meta    map[string]any
}

// VectorStore is the optional mirror index kept next to the SQL chunk store
// to accelerate similarity search. The chunk store stays the source of
// truth; anything here is rebuildable from it.
type VectorStore interface {
	// EnsureCollection ensures the collection exists with the given vector size.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the k nearest points, restricted to the named
	// localdocs collections via payload filtering.
	Search(ctx context.Context, collection string, query []float32, k int, collections []string) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []int64) error
}
