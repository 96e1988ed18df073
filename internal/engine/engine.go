package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"localdocs/internal/contextutil"
	"localdocs/internal/embedding"
	"localdocs/internal/extract"
	"localdocs/internal/storage"
	"localdocs/internal/vectorstore"
)

const (
	// rescanInterval is how often coalesced filesystem change events are
	// flushed into folder rescans.
	rescanInterval = 2 * time.Second

	// maxConsecutiveBatchErrors is the number of embedding batch failures
	// in a row that puts a folder into the error state.
	maxConsecutiveBatchErrors = 3

	inboxDepth = 64
)

// ErrStopped is returned by engine calls made after Stop.
var ErrStopped = errors.New("engine stopped")

// Dispatcher hands chunks to the embedding pipeline. Results come back
// through OnEmbeddingsGenerated and OnEmbeddingError.
type Dispatcher interface {
	Enqueue(chunks []embedding.Chunk)
}

// FolderWatch registers directory trees for change notifications. The
// owner forwards events to DirectoryChanged.
type FolderWatch interface {
	Watch(root string) error
	Unwatch(root string)
}

// Engine owns the document indexing pipeline: folder registration,
// scanning, chunking, embedding dispatch and completion accounting.
//
// All mutable state is confined to a single worker goroutine. Public
// methods post closures into the worker's inbox and, where they return
// data, wait on a reply channel. Inbox messages take priority over the
// document queue so control operations stay responsive mid-index.
type Engine struct {
	folders    storage.FolderStore
	docs       storage.DocumentStore
	chunks     storage.ChunkStore
	extractors *extract.Registry
	dispatcher Dispatcher
	watch      FolderWatch
	notifier   Notifier

	// mirror is an optional secondary vector index kept in sync with the
	// embeddings table. The SQL store remains the source of truth.
	mirror           vectorstore.VectorStore
	mirrorCollection string

	chunkSize int

	inbox chan func(context.Context)
	done  chan struct{}

	queue *docQueue

	status map[int64]*folderStatus
	prog   map[int64]*progress
	meta   map[int64]storage.FolderRecord

	// Embedding in-flight bookkeeping, keyed by database IDs.
	pendingByDoc map[int64]int   // document ID -> chunks awaiting embeddings
	docOfChunk   map[int64]int64 // chunk ID -> document ID
	taskOfDoc    map[int64]*docTask
	docFailed    map[int64]bool // document had a failed batch or store error

	dirty map[string]struct{} // watched roots with unflushed change events
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Folders    storage.FolderStore
	Documents  storage.DocumentStore
	Chunks     storage.ChunkStore
	Extractors *extract.Registry
	Dispatcher Dispatcher
	Watch      FolderWatch
	Notifier   Notifier

	Mirror           vectorstore.VectorStore
	MirrorCollection string

	ChunkSize int
}

// New creates an Engine. Call Start before using it.
func New(deps Deps) *Engine {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		folders:          deps.Folders,
		docs:             deps.Documents,
		chunks:           deps.Chunks,
		extractors:       deps.Extractors,
		dispatcher:       deps.Dispatcher,
		watch:            deps.Watch,
		notifier:         notifier,
		mirror:           deps.Mirror,
		mirrorCollection: deps.MirrorCollection,
		chunkSize:        deps.ChunkSize,
		inbox:            make(chan func(context.Context), inboxDepth),
		done:             make(chan struct{}),
		queue:            newDocQueue(),
		status:           make(map[int64]*folderStatus),
		prog:             make(map[int64]*progress),
		meta:             make(map[int64]storage.FolderRecord),
		pendingByDoc:     make(map[int64]int),
		docOfChunk:       make(map[int64]int64),
		taskOfDoc:        make(map[int64]*docTask),
		docFailed:        make(map[int64]bool),
		dirty:            make(map[string]struct{}),
	}
}

// Start launches the worker goroutine and restores persisted folders,
// rescanning each so changes made while the service was down are picked
// up. It returns once restoration is queued, not once it completes.
func (e *Engine) Start(ctx context.Context) error {
	go e.run(ctx)
	return e.post(ctx, func(ctx context.Context) {
		e.restoreFolders(ctx)
	})
}

// run is the worker loop. The inner select gives inbox messages and the
// rescan ticker priority; only when neither is ready does the default
// branch pump the next queued document.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.inbox:
			fn(ctx)
		case <-ticker.C:
			e.flushDirty(ctx)
		default:
			if task, ok := e.queue.dequeue(); ok {
				e.processDoc(ctx, task)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case fn := <-e.inbox:
				fn(ctx)
			case <-ticker.C:
				e.flushDirty(ctx)
			}
		}
	}
}

// post sends a closure to the worker, blocking until accepted.
func (e *Engine) post(ctx context.Context, fn func(context.Context)) error {
	select {
	case e.inbox <- fn:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postAsync sends a closure to the worker without blocking the caller.
// Used from embedding callbacks, where blocking could deadlock against a
// full dispatch queue.
func (e *Engine) postAsync(fn func(context.Context)) {
	select {
	case e.inbox <- fn:
	default:
		go func() {
			select {
			case e.inbox <- fn:
			case <-e.done:
			}
		}()
	}
}

// AddFolder registers a directory under a collection and begins indexing
// it. Returns false if the path is not a readable directory or collides
// with a folder already registered in the same collection.
func (e *Engine) AddFolder(ctx context.Context, collection, path string) bool {
	reply := make(chan bool, 1)
	err := e.post(ctx, func(ctx context.Context) {
		reply <- e.addFolder(ctx, collection, path)
	})
	if err != nil {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// RemoveFolder unregisters a folder and deletes everything indexed from
// it. In-flight work for the folder is dropped and late embedding results
// are discarded.
func (e *Engine) RemoveFolder(ctx context.Context, collection, path string) error {
	reply := make(chan error, 1)
	err := e.post(ctx, func(ctx context.Context) {
		reply <- e.removeFolder(ctx, collection, path)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryFolder restarts indexing for a folder that is in the error state.
func (e *Engine) RetryFolder(ctx context.Context, collection, path string) error {
	reply := make(chan error, 1)
	err := e.post(ctx, func(ctx context.Context) {
		reply <- e.retryFolder(ctx, collection, path)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChangeChunkSize sets a new chunk size and re-indexes every folder from
// scratch, since stored chunks cut at the old size are no longer valid.
func (e *Engine) ChangeChunkSize(ctx context.Context, size int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	reply := make(chan error, 1)
	err := e.post(ctx, func(ctx context.Context) {
		reply <- e.changeChunkSize(ctx, size)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CollectionList returns a snapshot of every registered folder with its
// live state and progress counters, ordered by collection then path.
func (e *Engine) CollectionList(ctx context.Context) ([]CollectionItem, error) {
	reply := make(chan []CollectionItem, 1)
	err := e.post(ctx, func(context.Context) {
		reply <- e.collectionList()
	})
	if err != nil {
		return nil, err
	}
	select {
	case items := <-reply:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DirectoryChanged records a filesystem change under a watched root. Calls
// are coalesced and flushed into a rescan on the next tick.
func (e *Engine) DirectoryChanged(root string) {
	e.postAsync(func(context.Context) {
		e.dirty[root] = struct{}{}
	})
}

// OnEmbeddingsGenerated receives persisted-ready vectors from the
// embedding pipeline.
func (e *Engine) OnEmbeddingsGenerated(results []embedding.Result) {
	e.postAsync(func(ctx context.Context) {
		e.handleResults(ctx, results)
	})
}

// OnEmbeddingError receives a failed embedding batch.
func (e *Engine) OnEmbeddingError(folderID int64, err error) {
	e.postAsync(func(ctx context.Context) {
		e.handleBatchError(ctx, folderID, err)
	})
}

// --- worker-side operations below; never call from outside the worker ---

func (e *Engine) restoreFolders(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)

	records, err := e.folders.ListAll(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list folders at startup", "error", err)
		return
	}

	for _, rec := range records {
		e.meta[rec.ID] = rec
		e.status[rec.ID] = &folderStatus{state: StateStarted, startTime: time.Now()}
		e.prog[rec.ID] = &progress{}
		if err := e.watch.Watch(rec.Path); err != nil {
			logger.WarnContext(ctx, "failed to watch folder", "path", rec.Path, "error", err)
		}
		numDocs, err := e.docs.CountByFolder(ctx, rec.ID)
		if err != nil {
			logger.WarnContext(ctx, "failed to count stored documents", "path", rec.Path, "error", err)
		}
		sizeBytes, err := e.docs.SumBytesByFolder(ctx, rec.ID)
		if err != nil {
			logger.WarnContext(ctx, "failed to sum stored document sizes", "path", rec.Path, "error", err)
		}
		logger.InfoContext(ctx, "restoring folder",
			"collection", rec.Collection, "path", rec.Path,
			"documents", numDocs, "bytes", sizeBytes)
		e.scanDocuments(ctx, rec)
	}
	if len(records) > 0 {
		logger.InfoContext(ctx, "restored folders", "count", len(records))
		e.notifyCollections()
	}
}

func (e *Engine) addFolder(ctx context.Context, collection, path string) bool {
	logger := contextutil.LoggerFromContext(ctx)

	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		logger.WarnContext(ctx, "rejected folder: not a readable directory", "path", path, "error", err)
		return false
	}
	if f, err := os.Open(path); err != nil {
		logger.WarnContext(ctx, "rejected folder: not readable", "path", path, "error", err)
		return false
	} else {
		_ = f.Close()
	}

	for _, rec := range e.meta {
		if rec.Collection != collection {
			continue
		}
		if rec.Path == path || isSubPath(rec.Path, path) || isSubPath(path, rec.Path) {
			logger.WarnContext(ctx, "rejected folder: overlaps existing folder in collection",
				"collection", collection, "path", path, "existing", rec.Path)
			return false
		}
	}

	rec, err := e.folders.Add(ctx, collection, path)
	if err != nil {
		logger.ErrorContext(ctx, "failed to add folder", "collection", collection, "path", path, "error", err)
		return false
	}

	e.meta[rec.ID] = rec
	e.status[rec.ID] = &folderStatus{state: StateStarted, startTime: time.Now()}
	e.prog[rec.ID] = &progress{}

	if err := e.watch.Watch(path); err != nil {
		logger.WarnContext(ctx, "failed to watch folder", "path", path, "error", err)
	}

	logger.InfoContext(ctx, "folder added", "collection", collection, "path", path, "folder_id", rec.ID)
	e.notifier.Notify(Notification{Kind: NotifyFolderAdded, Item: e.snapshotItem(rec.ID)})

	e.scanDocuments(ctx, rec)
	e.notifyCollections()
	return true
}

func (e *Engine) removeFolder(ctx context.Context, collection, path string) error {
	logger := contextutil.LoggerFromContext(ctx)

	rec, err := e.folders.GetByPath(ctx, collection, filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to look up folder: %w", err)
	}

	e.dropFolderInFlight(rec.ID)

	if e.mirror != nil {
		e.mirrorDeleteFolder(ctx, rec.ID)
	}

	if err := e.folders.Remove(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to remove folder: %w", err)
	}

	item := e.snapshotItem(rec.ID)
	delete(e.meta, rec.ID)
	delete(e.status, rec.ID)
	delete(e.prog, rec.ID)

	// Another collection may still watch the same path.
	shared := false
	for _, other := range e.meta {
		if other.Path == rec.Path {
			shared = true
			break
		}
	}
	if !shared {
		e.watch.Unwatch(rec.Path)
	}

	logger.InfoContext(ctx, "folder removed", "collection", collection, "path", rec.Path, "folder_id", rec.ID)
	e.notifier.Notify(Notification{Kind: NotifyFolderRemoved, Item: item})
	e.notifyCollections()
	return nil
}

func (e *Engine) retryFolder(ctx context.Context, collection, path string) error {
	logger := contextutil.LoggerFromContext(ctx)

	rec, err := e.folders.GetByPath(ctx, collection, filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to look up folder: %w", err)
	}
	st, ok := e.status[rec.ID]
	if !ok {
		return fmt.Errorf("folder %d has no live state", rec.ID)
	}
	if st.state != StateError {
		return fmt.Errorf("folder is not in the error state")
	}

	st.state = StateStarted
	st.startTime = time.Now()
	st.errMsg = ""
	st.consecutiveErrors = 0
	e.prog[rec.ID].reset()

	logger.InfoContext(ctx, "retrying folder", "collection", collection, "path", rec.Path)
	e.scanDocuments(ctx, rec)
	e.notifyCollections()
	return nil
}

func (e *Engine) changeChunkSize(ctx context.Context, size int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if size == e.chunkSize {
		return nil
	}
	e.chunkSize = size
	logger.InfoContext(ctx, "chunk size changed, re-indexing all folders", "chunk_size", size)

	for id, rec := range e.meta {
		e.dropFolderInFlight(id)

		docs, err := e.docs.ListByFolder(ctx, id)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list documents", "folder_id", id, "error", err)
			continue
		}
		for _, doc := range docs {
			if e.mirror != nil {
				e.mirrorDeleteDocument(ctx, doc.ID)
			}
			if err := e.docs.Remove(ctx, doc.ID); err != nil {
				logger.ErrorContext(ctx, "failed to remove document", "document_id", doc.ID, "error", err)
			}
		}

		if err := e.folders.SetInstalled(ctx, id, false); err != nil {
			logger.ErrorContext(ctx, "failed to clear installed flag", "folder_id", id, "error", err)
		}
		rec.Installed = false
		e.meta[id] = rec

		st := e.status[id]
		st.state = StateStarted
		st.startTime = time.Now()
		st.errMsg = ""
		st.consecutiveErrors = 0
		e.prog[id].reset()

		e.scanDocuments(ctx, rec)
	}
	e.notifyCollections()
	return nil
}

func (e *Engine) collectionList() []CollectionItem {
	items := make([]CollectionItem, 0, len(e.meta))
	for id := range e.meta {
		items = append(items, e.snapshotItem(id))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Collection != items[j].Collection {
			return items[i].Collection < items[j].Collection
		}
		return items[i].Path < items[j].Path
	})
	return items
}

// flushDirty turns coalesced change events into folder rescans.
func (e *Engine) flushDirty(ctx context.Context) {
	if len(e.dirty) == 0 {
		return
	}
	roots := e.dirty
	e.dirty = make(map[string]struct{})

	for root := range roots {
		for _, rec := range e.meta {
			if rec.Path != root {
				continue
			}
			if st := e.status[rec.ID]; st.state == StateError {
				continue // stays in error until an explicit retry
			}
			e.scanDocuments(ctx, rec)
		}
	}
}

// scanDocuments walks a folder, enqueues new and changed documents and
// prunes rows for files deleted from disk. Documents with in-flight work
// are left alone; failed documents carry a zero stored time and are
// naturally re-enqueued here.
func (e *Engine) scanDocuments(ctx context.Context, rec storage.FolderRecord) {
	logger := contextutil.LoggerFromContext(ctx)

	st := e.status[rec.ID]
	prog := e.prog[rec.ID]

	seen := make(map[string]struct{})
	numDocs := 0
	enqueued := 0
	sawUnreadable := false

	err := filepath.WalkDir(rec.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				// The root itself vanished or became unreadable. Halt the
				// folder rather than prune its index.
				return err
			}
			logger.WarnContext(ctx, "skipping unreadable entry", "path", path, "error", err)
			sawUnreadable = true
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		suffix := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if !e.extractors.Supported(suffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.WarnContext(ctx, "failed to stat file", "path", path, "error", err)
			sawUnreadable = true
			return nil
		}
		seen[path] = struct{}{}
		numDocs++

		modTime := info.ModTime().UnixMilli()
		task := &docTask{
			folderID:  rec.ID,
			path:      path,
			suffix:    suffix,
			sizeBytes: info.Size(),
			modTime:   modTime,
		}

		doc, err := e.docs.GetByPath(ctx, rec.ID, path)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Stored time starts at zero and is stamped only once every
			// chunk's embedding has been persisted, so interrupted or
			// failed documents re-enter here on the next scan.
			id, err := e.docs.Insert(ctx, &storage.DocumentRecord{
				FolderID:     rec.ID,
				Path:         path,
				Suffix:       suffix,
				DocumentTime: 0,
				SizeBytes:    info.Size(),
			})
			if err != nil {
				logger.ErrorContext(ctx, "failed to insert document", "path", path, "error", err)
				return nil
			}
			task.documentID = id
		case err != nil:
			logger.ErrorContext(ctx, "failed to look up document", "path", path, "error", err)
			return nil
		default:
			if doc.DocumentTime == modTime {
				return nil // unchanged
			}
			if e.queue.isQueued(doc.ID) || e.pendingByDoc[doc.ID] > 0 {
				return nil // already in flight
			}
			if e.mirror != nil {
				e.mirrorDeleteDocument(ctx, doc.ID)
			}
			if err := e.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
				logger.ErrorContext(ctx, "failed to delete stale chunks", "path", path, "error", err)
				return nil
			}
			task.documentID = doc.ID
		}

		if e.queue.enqueue(task) {
			prog.scheduleDoc(task.sizeBytes)
			enqueued++
		}
		return nil
	})
	if err != nil {
		e.setFolderError(ctx, rec.ID, fmt.Sprintf("failed to scan folder: %v", err))
		return
	}

	if sawUnreadable {
		// An incomplete walk would make files under the unreadable entry
		// look deleted.
		logger.WarnContext(ctx, "skipping prune after incomplete scan",
			"collection", rec.Collection, "path", rec.Path)
	} else {
		e.pruneRemoved(ctx, rec, seen)
	}

	st.numDocs = numDocs
	st.docsChanged += enqueued
	if enqueued > 0 && st.state != StateEmbedding {
		st.state = StateStarted
		e.notifier.Notify(Notification{Kind: NotifyIndexing, Item: e.snapshotItem(rec.ID)})
	}
	logger.InfoContext(ctx, "folder scanned",
		"collection", rec.Collection, "path", rec.Path, "documents", numDocs, "enqueued", enqueued)

	e.notifyProgress(rec.ID)
	e.checkFolderSettled(ctx, rec.ID)
}

// pruneRemoved deletes stored documents whose files vanished from disk.
func (e *Engine) pruneRemoved(ctx context.Context, rec storage.FolderRecord, seen map[string]struct{}) {
	logger := contextutil.LoggerFromContext(ctx)

	docs, err := e.docs.ListByFolder(ctx, rec.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list documents for pruning", "folder_id", rec.ID, "error", err)
		return
	}
	for _, doc := range docs {
		if _, ok := seen[doc.Path]; ok {
			continue
		}
		if e.queue.isQueued(doc.ID) || e.pendingByDoc[doc.ID] > 0 {
			// Dropped mid-index: forget the in-flight work first so late
			// results are discarded.
			e.settleDocBookkeeping(doc.ID, rec.ID)
		}
		if e.mirror != nil {
			e.mirrorDeleteDocument(ctx, doc.ID)
		}
		if err := e.docs.Remove(ctx, doc.ID); err != nil {
			logger.ErrorContext(ctx, "failed to remove deleted document", "path", doc.Path, "error", err)
			continue
		}
		logger.InfoContext(ctx, "document removed", "path", doc.Path)
	}
}

// processDoc extracts one queued document, persists its chunks and hands
// them to the embedding pipeline.
func (e *Engine) processDoc(ctx context.Context, task *docTask) {
	logger := contextutil.LoggerFromContext(ctx)

	st, ok := e.status[task.folderID]
	if !ok {
		return // folder removed while queued
	}
	prog := e.prog[task.folderID]

	exists, err := e.docs.Exists(ctx, task.documentID)
	if err != nil || !exists {
		prog.docDispatched(task.sizeBytes)
		e.checkFolderSettled(ctx, task.folderID)
		return
	}

	segments, info, err := e.extractors.Extract(task.path, task.suffix)
	if err != nil {
		var extErr *extract.ExtractionError
		if errors.As(err, &extErr) {
			// A broken file must not wedge the folder. Stamp it processed
			// so scans stop retrying it until the file changes again.
			logger.WarnContext(ctx, "skipping document: extraction failed", "path", task.path, "error", err)
			if err := e.docs.UpdateTime(ctx, task.documentID, task.modTime, task.sizeBytes); err != nil {
				logger.ErrorContext(ctx, "failed to stamp document time", "path", task.path, "error", err)
			}
			prog.docDispatched(task.sizeBytes)
			e.notifyProgress(task.folderID)
			e.checkFolderSettled(ctx, task.folderID)
			return
		}
		e.setFolderError(ctx, task.folderID, fmt.Sprintf("failed to read %s: %v", task.path, err))
		return
	}

	drafts := buildChunks(segments, e.chunkSize)
	records := make([]*storage.ChunkRecord, 0, len(drafts))
	for i, draft := range drafts {
		records = append(records, &storage.ChunkRecord{
			DocumentID: task.documentID,
			FolderID:   task.folderID,
			ChunkIndex: i,
			Text:       draft.text,
			File:       filepath.Base(task.path),
			Title:      info.Title,
			Author:     info.Author,
			Page:       draft.page,
			LineFrom:   draft.lineFrom,
			LineTo:     draft.lineTo,
		})
	}

	ids, err := e.chunks.AddChunks(ctx, records)
	if err != nil {
		logger.ErrorContext(ctx, "failed to store chunks, will retry on next scan", "path", task.path, "error", err)
		prog.docDispatched(task.sizeBytes)
		e.checkFolderSettled(ctx, task.folderID)
		return
	}

	prog.docDispatched(task.sizeBytes)
	st.chunksRead += len(ids)

	if len(ids) == 0 {
		if err := e.docs.UpdateTime(ctx, task.documentID, task.modTime, task.sizeBytes); err != nil {
			logger.ErrorContext(ctx, "failed to stamp document time", "path", task.path, "error", err)
		}
		e.notifyProgress(task.folderID)
		e.checkFolderSettled(ctx, task.folderID)
		return
	}

	prog.scheduleEmbeddings(int64(len(ids)))
	st.pendingEmbeddings += len(ids)
	e.pendingByDoc[task.documentID] = len(ids)
	e.taskOfDoc[task.documentID] = task
	for _, id := range ids {
		e.docOfChunk[id] = task.documentID
	}

	batch := make([]embedding.Chunk, 0, len(ids))
	for i, id := range ids {
		batch = append(batch, embedding.Chunk{
			FolderID: task.folderID,
			ChunkID:  id,
			Text:     records[i].Text,
		})
	}
	e.dispatcher.Enqueue(batch)

	if st.state != StateEmbedding {
		st.state = StateEmbedding
		e.notifier.Notify(Notification{Kind: NotifyIndexing, Item: e.snapshotItem(task.folderID)})
	}
	e.notifyProgress(task.folderID)
}

// handleResults persists embedding vectors as they arrive. Results for
// chunks no longer tracked, removed folders or re-indexed documents, are
// discarded.
func (e *Engine) handleResults(ctx context.Context, results []embedding.Result) {
	logger := contextutil.LoggerFromContext(ctx)

	touched := make(map[int64]struct{})
	var points []vectorstore.Point

	for _, result := range results {
		docID, ok := e.docOfChunk[result.ChunkID]
		if !ok {
			logger.DebugContext(ctx, "discarding late embedding result", "chunk_id", result.ChunkID)
			continue
		}
		delete(e.docOfChunk, result.ChunkID)

		task := e.taskOfDoc[docID]
		if task == nil {
			continue
		}
		folderID := task.folderID
		st := e.status[folderID]
		prog := e.prog[folderID]

		if err := e.chunks.AddEmbedding(ctx, result.ChunkID, result.Vector); err != nil {
			// Leave the stored time at zero so the next scan retries the
			// whole document.
			logger.ErrorContext(ctx, "failed to store embedding, document will be rescanned",
				"chunk_id", result.ChunkID, "error", err)
			e.docFailed[docID] = true
			prog.embeddingsAbandoned(1)
		} else {
			prog.embeddingDone()
			st.consecutiveErrors = 0
			if e.mirror != nil {
				points = append(points, vectorstore.Point{
					ID:  result.ChunkID,
					Vec: result.Vector,
					Meta: map[string]any{
						"collection": e.meta[folderID].Collection,
						"file":       filepath.Base(task.path),
					},
				})
			}
		}

		st.pendingEmbeddings--
		e.pendingByDoc[docID]--
		touched[folderID] = struct{}{}

		if e.pendingByDoc[docID] == 0 {
			e.finishDoc(ctx, docID)
		}
	}

	if e.mirror != nil && len(points) > 0 {
		if err := e.mirror.Upsert(ctx, e.mirrorCollection, points); err != nil {
			logger.WarnContext(ctx, "failed to mirror embeddings", "count", len(points), "error", err)
		}
	}

	for folderID := range touched {
		e.notifyProgress(folderID)
		e.checkFolderSettled(ctx, folderID)
	}
}

// handleBatchError settles accounting for a failed batch and trips the
// folder into the error state after repeated failures.
func (e *Engine) handleBatchError(ctx context.Context, folderID int64, cause error) {
	logger := contextutil.LoggerFromContext(ctx)

	st, ok := e.status[folderID]
	if !ok {
		return // folder removed while the batch was in flight
	}
	prog := e.prog[folderID]

	var batchErr *embedding.BatchError
	if errors.As(cause, &batchErr) {
		abandoned := 0
		for _, chunkID := range batchErr.ChunkIDs {
			docID, tracked := e.docOfChunk[chunkID]
			if !tracked {
				continue
			}
			delete(e.docOfChunk, chunkID)
			e.docFailed[docID] = true
			st.pendingEmbeddings--
			e.pendingByDoc[docID]--
			abandoned++
			if e.pendingByDoc[docID] == 0 {
				e.finishDoc(ctx, docID)
			}
		}
		prog.embeddingsAbandoned(int64(abandoned))
	}

	st.consecutiveErrors++
	logger.ErrorContext(ctx, "embedding batch failed",
		"folder_id", folderID, "consecutive", st.consecutiveErrors, "error", cause)

	if st.consecutiveErrors >= maxConsecutiveBatchErrors {
		e.setFolderError(ctx, folderID, fmt.Sprintf("embedding service failing repeatedly: %v", cause))
		return
	}
	e.notifyProgress(folderID)
	e.checkFolderSettled(ctx, folderID)
}

// finishDoc runs when the last pending embedding for a document settles.
// Fully embedded documents get their stored time stamped; failed ones
// keep time zero and re-enter on the next scan.
func (e *Engine) finishDoc(ctx context.Context, docID int64) {
	logger := contextutil.LoggerFromContext(ctx)

	task := e.taskOfDoc[docID]
	failed := e.docFailed[docID]
	delete(e.pendingByDoc, docID)
	delete(e.taskOfDoc, docID)
	delete(e.docFailed, docID)

	if task == nil || failed {
		return
	}
	if err := e.docs.UpdateTime(ctx, docID, task.modTime, task.sizeBytes); err != nil {
		logger.ErrorContext(ctx, "failed to stamp document time", "path", task.path, "error", err)
	}
}

// checkFolderSettled transitions a folder to Complete once no queued or
// in-flight work remains and the counters agree.
func (e *Engine) checkFolderSettled(ctx context.Context, folderID int64) {
	logger := contextutil.LoggerFromContext(ctx)

	st, ok := e.status[folderID]
	if !ok || st.state == StateError || st.state == StateComplete {
		return
	}
	prog := e.prog[folderID]
	if e.queue.pendingForFolder(folderID) > 0 || st.pendingEmbeddings > 0 || !prog.settled() {
		return
	}

	rec := e.meta[folderID]
	if !rec.Installed {
		if err := e.folders.SetInstalled(ctx, folderID, true); err != nil {
			logger.ErrorContext(ctx, "failed to mark folder installed", "folder_id", folderID, "error", err)
		} else {
			rec.Installed = true
			e.meta[folderID] = rec
			e.notifier.Notify(Notification{Kind: NotifyInstalled, Item: e.snapshotItem(folderID)})
		}
	}

	st.state = StateComplete
	prog.reset()

	logger.InfoContext(ctx, "folder indexing complete",
		"collection", rec.Collection, "path", rec.Path,
		"documents", st.numDocs, "changed", st.docsChanged, "chunks", st.chunksRead,
		"elapsed", time.Since(st.startTime).Round(time.Millisecond))

	st.docsChanged = 0
	st.chunksRead = 0
	e.notifyProgress(folderID)
	e.notifyCollections()
}

// setFolderError puts a folder into the error state, dropping its queued
// and in-flight work. It stays there until RetryFolder.
func (e *Engine) setFolderError(ctx context.Context, folderID int64, msg string) {
	logger := contextutil.LoggerFromContext(ctx)

	st, ok := e.status[folderID]
	if !ok {
		return
	}
	e.dropFolderInFlight(folderID)

	st.state = StateError
	st.errMsg = msg
	e.prog[folderID].reset()

	rec := e.meta[folderID]
	logger.ErrorContext(ctx, "folder indexing halted",
		"collection", rec.Collection, "path", rec.Path, "reason", msg)
	e.notifier.Notify(Notification{Kind: NotifyError, Item: e.snapshotItem(folderID)})
	e.notifyCollections()
}

// dropFolderInFlight forgets all queued and dispatched work for a folder
// so late embedding results are discarded.
func (e *Engine) dropFolderInFlight(folderID int64) {
	e.queue.removeFolder(folderID)

	for chunkID, docID := range e.docOfChunk {
		if task := e.taskOfDoc[docID]; task != nil && task.folderID == folderID {
			delete(e.docOfChunk, chunkID)
		}
	}
	for docID, task := range e.taskOfDoc {
		if task.folderID != folderID {
			continue
		}
		delete(e.taskOfDoc, docID)
		delete(e.pendingByDoc, docID)
		delete(e.docFailed, docID)
	}
	if st, ok := e.status[folderID]; ok {
		st.pendingEmbeddings = 0
	}
}

// settleDocBookkeeping forgets in-flight work for one document.
func (e *Engine) settleDocBookkeeping(docID, folderID int64) {
	pending := e.pendingByDoc[docID]
	for chunkID, owner := range e.docOfChunk {
		if owner == docID {
			delete(e.docOfChunk, chunkID)
		}
	}
	delete(e.pendingByDoc, docID)
	delete(e.taskOfDoc, docID)
	delete(e.docFailed, docID)

	if st, ok := e.status[folderID]; ok {
		st.pendingEmbeddings -= pending
		if st.pendingEmbeddings < 0 {
			st.pendingEmbeddings = 0
		}
	}
	if prog, ok := e.prog[folderID]; ok && pending > 0 {
		prog.embeddingsAbandoned(int64(pending))
	}
}

// mirrorDeleteDocument removes a document's chunks from the mirror index.
func (e *Engine) mirrorDeleteDocument(ctx context.Context, docID int64) {
	logger := contextutil.LoggerFromContext(ctx)

	ids, err := e.chunks.ListIDsByDocument(ctx, docID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list chunks for mirror delete", "document_id", docID, "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := e.mirror.Delete(ctx, e.mirrorCollection, ids); err != nil {
		logger.WarnContext(ctx, "failed to delete from mirror", "document_id", docID, "error", err)
	}
}

// mirrorDeleteFolder removes every chunk of a folder from the mirror index.
func (e *Engine) mirrorDeleteFolder(ctx context.Context, folderID int64) {
	logger := contextutil.LoggerFromContext(ctx)

	docs, err := e.docs.ListByFolder(ctx, folderID)
	if err != nil {
		logger.WarnContext(ctx, "failed to list documents for mirror delete", "folder_id", folderID, "error", err)
		return
	}
	for _, doc := range docs {
		e.mirrorDeleteDocument(ctx, doc.ID)
	}
}

func (e *Engine) snapshotItem(folderID int64) CollectionItem {
	rec := e.meta[folderID]
	item := CollectionItem{
		FolderID:   rec.ID,
		Collection: rec.Collection,
		Path:       rec.Path,
		Installed:  rec.Installed,
	}
	if st, ok := e.status[folderID]; ok {
		item.Indexing = st.state == StateStarted || st.state == StateEmbedding
		if st.state == StateError {
			item.Error = st.errMsg
		}
	}
	if prog, ok := e.prog[folderID]; ok {
		prog.fill(&item)
	}
	return item
}

func (e *Engine) notifyProgress(folderID int64) {
	if _, ok := e.meta[folderID]; !ok {
		return
	}
	e.notifier.Notify(Notification{Kind: NotifyProgress, Item: e.snapshotItem(folderID)})
}

func (e *Engine) notifyCollections() {
	e.notifier.Notify(Notification{Kind: NotifyCollections, Items: e.collectionList()})
}

// isSubPath reports whether child is strictly inside parent.
func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}
