package engine

import (
	"fmt"
	"time"
)

// FolderState is the per-folder indexing lifecycle.
// Started -> Embedding -> Complete, with re-entry to Started on rescan or
// chunk-size change, and StateError reachable from any state on a
// folder-fatal failure (explicit retry returns it to Started).
type FolderState int

const (
	StateStarted FolderState = iota
	StateEmbedding
	StateComplete
	StateError
)

func (s FolderState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateEmbedding:
		return "embedding"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CollectionItem is the outward-facing snapshot of one watched folder,
// merging the stored row with live engine state and progress counters.
type CollectionItem struct {
	FolderID   int64  `json:"folder_id"`
	Collection string `json:"collection"`
	Path       string `json:"path"`
	Installed  bool   `json:"installed"`
	Indexing   bool   `json:"indexing"`
	Error      string `json:"error,omitempty"`

	CurrentDocsToIndex       int64 `json:"current_docs_to_index"`
	TotalDocsToIndex         int64 `json:"total_docs_to_index"`
	CurrentBytesToIndex      int64 `json:"current_bytes_to_index"`
	TotalBytesToIndex        int64 `json:"total_bytes_to_index"`
	CurrentEmbeddingsToIndex int64 `json:"current_embeddings_to_index"`
	TotalEmbeddingsToIndex   int64 `json:"total_embeddings_to_index"`
}

// NotificationKind discriminates outbound engine notifications.
type NotificationKind string

const (
	NotifyFolderAdded   NotificationKind = "folder_added"
	NotifyFolderRemoved NotificationKind = "folder_removed"
	NotifyInstalled     NotificationKind = "installed"
	NotifyIndexing      NotificationKind = "indexing"
	NotifyError         NotificationKind = "error"
	NotifyProgress      NotificationKind = "progress"
	NotifyCollections   NotificationKind = "collections"
)

// Notification is one outbound UI-facing event.
type Notification struct {
	Kind  NotificationKind `json:"kind"`
	Item  CollectionItem   `json:"item,omitempty"`
	Items []CollectionItem `json:"items,omitempty"`
}

// Notifier consumes engine notifications. Implementations must not block;
// the engine emits from its worker goroutine.
type Notifier interface {
	Notify(Notification)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// FolderFatalError is an error severe enough to halt automatic indexing of
// a folder until the user retries (unreadable path, repeated embedding
// failures).
type FolderFatalError struct {
	FolderID int64
	Reason   string
	Err      error
}

func (e *FolderFatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("folder %d: %s: %v", e.FolderID, e.Reason, e.Err)
	}
	return fmt.Sprintf("folder %d: %s", e.FolderID, e.Reason)
}

func (e *FolderFatalError) Unwrap() error {
	return e.Err
}

// folderStatus is the engine's private per-folder state record.
type folderStatus struct {
	state       FolderState
	startTime   time.Time
	numDocs     int
	docsChanged int
	chunksRead  int

	errMsg            string
	consecutiveErrors int // consecutive embedding batch failures
	pendingEmbeddings int // chunks dispatched but not yet persisted
}

// docTask is one queued document awaiting processing.
type docTask struct {
	documentID int64
	folderID   int64
	path       string
	suffix     string
	sizeBytes  int64
	modTime    int64 // unix milliseconds
}
