// Package watcher monitors registered folder trees for filesystem changes
// and reports them keyed by the registered root, so the indexing engine can
// schedule a rescan of the owning folder.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event is a change notification for a watched root.
type Event struct {
	Root string // The registered folder root this change belongs to
	Path string // The path that changed
}

// Watcher wraps fsnotify with recursive watches per registered root.
type Watcher struct {
	fs     *fsnotify.Watcher
	events chan Event
	logger *slog.Logger

	mu    sync.Mutex
	roots map[string]struct{}

	closeOnce sync.Once
}

// New creates a watcher and starts its event loop.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:     fsw,
		events: make(chan Event, 128),
		logger: slog.Default(),
		roots:  make(map[string]struct{}),
	}
	go w.loop()
	return w, nil
}

// Events returns the outbound change notifications.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Watch registers a root directory and every subdirectory under it.
func (w *Watcher) Watch(root string) error {
	w.mu.Lock()
	w.roots[root] = struct{}{}
	w.mu.Unlock()

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Unwatch removes a root and all watches under it.
func (w *Watcher) Unwatch(root string) {
	w.mu.Lock()
	delete(w.roots, root)
	w.mu.Unlock()

	for _, watched := range w.fs.WatchList() {
		if watched == root || strings.HasPrefix(watched, root+string(filepath.Separator)) {
			_ = w.fs.Remove(watched)
		}
	}
}

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// New directories must be added to the watch so nested changes are seen.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
		}
	}

	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}

	select {
	case w.events <- Event{Root: root, Path: ev.Name}:
	default:
		// The engine coalesces change events into full rescans, so
		// dropping one under pressure loses nothing.
	}
}

// rootFor maps a changed path to its registered root.
func (w *Watcher) rootFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}
