package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records call sizes and returns fixed vectors, or a permanent
// error when failing is set.
type fakeClient struct {
	mu        sync.Mutex
	callSizes []int
	failing   bool
}

func (c *fakeClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.callSizes = append(c.callSizes, len(texts))
	failing := c.failing
	c.mu.Unlock()

	if failing {
		// Context errors are not retried, which keeps the test fast.
		return nil, fmt.Errorf("embed: %w", context.Canceled)
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

func (c *fakeClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *fakeClient) sizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.callSizes...)
}

type collector struct {
	mu      sync.Mutex
	results []Result
	errs    []error
}

func (c *collector) onResults(results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
}

func (c *collector) onError(folderID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() ([]Result, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...), append([]error(nil), c.errs...)
}

func makeChunks(folderID int64, n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{FolderID: folderID, ChunkID: int64(i + 1), Text: fmt.Sprintf("text %d", i)}
	}
	return chunks
}

func waitForCollector(t *testing.T, c *collector, cond func([]Result, []error) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(c.snapshot()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	results, errs := c.snapshot()
	t.Fatalf("timed out; results=%d errs=%d", len(results), len(errs))
}

func TestBatcher_SplitsJobsByBatchSize(t *testing.T) {
	client := &fakeClient{}
	coll := &collector{}
	b := NewBatcher(client, 2, coll.onResults, coll.onError)
	b.Start()
	defer b.Stop()

	b.Enqueue(makeChunks(7, 5))

	waitForCollector(t, coll, func(results []Result, _ []error) bool {
		return len(results) == 5
	})

	assert.Equal(t, []int{2, 2, 1}, client.sizes(), "job should split at the batch cap")

	results, errs := coll.snapshot()
	assert.Empty(t, errs)
	for i, r := range results {
		assert.Equal(t, int64(7), r.FolderID, "result %d folder", i)
		assert.Equal(t, int64(i+1), r.ChunkID, "results should keep enqueue order")
	}
}

func TestBatcher_ReportsBatchErrorWithChunkIDs(t *testing.T) {
	client := &fakeClient{failing: true}
	coll := &collector{}
	b := NewBatcher(client, 10, coll.onResults, coll.onError)
	b.Start()
	defer b.Stop()

	b.Enqueue(makeChunks(3, 4))

	waitForCollector(t, coll, func(_ []Result, errs []error) bool {
		return len(errs) == 1
	})

	_, errs := coll.snapshot()
	var batchErr *BatchError
	require.ErrorAs(t, errs[0], &batchErr)
	assert.Equal(t, int64(3), batchErr.FolderID)
	require.Len(t, batchErr.ChunkIDs, 4, "every chunk in the failed batch should be reported")
	for i, id := range batchErr.ChunkIDs {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestBatcher_EnqueueEmptyIsNoop(t *testing.T) {
	client := &fakeClient{}
	coll := &collector{}
	b := NewBatcher(client, 2, coll.onResults, coll.onError)
	b.Start()

	b.Enqueue(nil)
	b.Stop()

	assert.Empty(t, client.sizes(), "no request should be made for an empty job")
}
