package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// waitForRoot drains events until one for the given root arrives.
func waitForRoot(t *testing.T, w *Watcher, root string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("event channel closed")
			}
			if ev.Root == root {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for root %s", root)
		}
	}
}

func TestWatcher_ReportsChangesUnderRoot(t *testing.T) {
	w := newTestWatcher(t)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(root); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	path := filepath.Join(root, "sub", "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := waitForRoot(t, w, root)
	if ev.Root != root {
		t.Errorf("event root = %s, want %s", ev.Root, root)
	}
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	w := newTestWatcher(t)

	root := t.TempDir()
	if err := w.Watch(root); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Create a directory after the initial walk, then write inside it. The
	// create event itself should arrive first; keep draining until a change
	// inside the new directory shows up.
	sub := filepath.Join(root, "later")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	// Give the loop a moment to add the watch before writing.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path {
				return
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestWatcher_UnwatchStopsEvents(t *testing.T) {
	w := newTestWatcher(t)

	root := t.TempDir()
	if err := w.Watch(root); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.Unwatch(root)

	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event after Unwatch: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_WatchMissingRoot(t *testing.T) {
	w := newTestWatcher(t)

	if err := w.Watch(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Watch() on a missing directory should fail")
	}
}
