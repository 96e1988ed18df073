package embedding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxRetryElapsed bounds how long one batch is retried before the
	// failure is reported to the owning folder.
	maxRetryElapsed = 30 * time.Second

	// jobQueueDepth bounds the number of dispatched-but-unsent jobs so a
	// fast scanner cannot grow the queue without limit.
	jobQueueDepth = 256
)

// Batcher runs the asynchronous embedding path: it accepts tagged chunk
// jobs, enforces the batch-size cap, retries transient failures with
// exponential backoff, and delivers results or per-folder errors through
// the registered callbacks. Callbacks fire on the batcher goroutine and
// must hand off quickly (the engine posts them into its inbox).
type Batcher struct {
	client    Client
	batchSize int
	onResults func([]Result)
	onError   func(folderID int64, err error)
	logger    *slog.Logger

	jobs   chan []Chunk
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewBatcher creates a batcher over the given client. batchSize caps the
// number of texts per request.
func NewBatcher(client Client, batchSize int, onResults func([]Result), onError func(folderID int64, err error)) *Batcher {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Batcher{
		client:    client,
		batchSize: batchSize,
		onResults: onResults,
		onError:   onError,
		logger:    slog.Default(),
		jobs:      make(chan []Chunk, jobQueueDepth),
	}
}

// Start launches the batcher goroutine.
func (b *Batcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop drains pending jobs and waits for the goroutine to exit.
func (b *Batcher) Stop() {
	close(b.jobs)
	b.wg.Wait()
	if b.cancel != nil {
		b.cancel()
	}
}

// Enqueue submits chunks for asynchronous embedding. All chunks of one call
// must belong to the same folder so a batch failure can be attributed.
func (b *Batcher) Enqueue(chunks []Chunk) {
	if len(chunks) == 0 {
		return
	}
	b.jobs <- chunks
}

func (b *Batcher) run(ctx context.Context) {
	defer b.wg.Done()

	for job := range b.jobs {
		for start := 0; start < len(job); start += b.batchSize {
			end := min(start+b.batchSize, len(job))
			b.processBatch(ctx, job[start:end])
		}
	}
}

// processBatch embeds one bounded batch, retrying transient failures.
func (b *Batcher) processBatch(ctx context.Context, batch []Chunk) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var vectors [][]float32
	operation := func() error {
		var err error
		vectors, err = b.client.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err // Will retry with backoff
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		b.logger.Warn("embedding batch failed", "folder_id", batch[0].FolderID, "chunks", len(batch), "error", err)
		chunkIDs := make([]int64, len(batch))
		for i, c := range batch {
			chunkIDs[i] = c.ChunkID
		}
		b.onError(batch[0].FolderID, &BatchError{FolderID: batch[0].FolderID, ChunkIDs: chunkIDs, Err: err})
		return
	}

	results := make([]Result, len(batch))
	for i, c := range batch {
		results[i] = Result{
			FolderID: c.FolderID,
			ChunkID:  c.ChunkID,
			Vector:   vectors[i],
		}
	}
	b.onResults(results)
}
