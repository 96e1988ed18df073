package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"localdocs/internal/contextutil"
	"localdocs/internal/embedding"
	"localdocs/internal/storage"
	"localdocs/internal/vectorstore"
)

// DefaultSimilarityThreshold filters out hits with near-zero relevance.
// Cosine similarity of unrelated text with typical embedding models sits
// well below this.
const DefaultSimilarityThreshold = 0.25

// ResultInfo is one retrieved excerpt with its provenance.
type ResultInfo struct {
	File   string `json:"file"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Date   string `json:"date"`
	Text   string `json:"text"`
	Page   int    `json:"page"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// Retriever answers similarity queries over the indexed chunks. The query
// text is embedded synchronously, separate from the indexing pipeline's
// batched path.
type Retriever struct {
	client    embedding.Client
	chunks    storage.ChunkStore
	threshold float32

	// mirror, when set, serves the nearest-neighbor search instead of the
	// SQL brute-force scan. Chunk text is still read from the SQL store.
	mirror           vectorstore.VectorStore
	mirrorCollection string
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMirror routes searches through a secondary vector index.
func WithMirror(store vectorstore.VectorStore, collection string) Option {
	return func(r *Retriever) {
		r.mirror = store
		r.mirrorCollection = collection
	}
}

// WithThreshold overrides the similarity cutoff.
func WithThreshold(threshold float32) Option {
	return func(r *Retriever) {
		r.threshold = threshold
	}
}

// New creates a Retriever.
func New(client embedding.Client, chunks storage.ChunkStore, opts ...Option) *Retriever {
	r := &Retriever{
		client:    client,
		chunks:    chunks,
		threshold: DefaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k excerpts from the given collections ranked by
// similarity to the query text. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, collections []string, text string, k int) ([]ResultInfo, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if text == "" {
		return nil, fmt.Errorf("query text is empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(collections) == 0 {
		return []ResultInfo{}, nil
	}

	start := time.Now()
	vector, err := r.client.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var hits []storage.SearchHit
	if r.mirror != nil {
		hits, err = r.searchMirror(ctx, collections, vector, k)
	} else {
		hits, err = r.chunks.Query(ctx, collections, vector, k)
	}
	if err != nil {
		return nil, err
	}

	results := make([]ResultInfo, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < r.threshold {
			continue
		}
		results = append(results, ResultInfo{
			File:   hit.Chunk.File,
			Title:  hit.Chunk.Title,
			Author: hit.Chunk.Author,
			Date:   formatDate(hit.DocumentTime),
			Text:   hit.Chunk.Text,
			Page:   hit.Chunk.Page,
			From:   hit.Chunk.LineFrom,
			To:     hit.Chunk.LineTo,
		})
	}

	logger.DebugContext(ctx, "retrieval complete",
		"collections", collections, "k", k, "results", len(results),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return results, nil
}

// searchMirror queries the secondary index and hydrates hits from the SQL
// store. Points whose chunks were removed since the last sync are skipped.
func (r *Retriever) searchMirror(ctx context.Context, collections []string, vector []float32, k int) ([]storage.SearchHit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	points, err := r.mirror.Search(ctx, r.mirrorCollection, vector, k, collections)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}

	hits := make([]storage.SearchHit, 0, len(points))
	for _, point := range points {
		hit, err := r.chunks.GetByID(ctx, point.PointID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.DebugContext(ctx, "skipping stale mirror point", "chunk_id", point.PointID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %d: %w", point.PointID, err)
		}
		hit.Similarity = point.Score
		hits = append(hits, hit)
	}
	return hits, nil
}

func formatDate(unixMilli int64) string {
	if unixMilli <= 0 {
		return ""
	}
	return time.UnixMilli(unixMilli).UTC().Format("January 2, 2006")
}
