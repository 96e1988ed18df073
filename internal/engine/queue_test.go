package engine

import "testing"

func TestDocQueue_FIFOWithinFolder(t *testing.T) {
	q := newDocQueue()
	q.enqueue(&docTask{documentID: 1, folderID: 10})
	q.enqueue(&docTask{documentID: 2, folderID: 10})
	q.enqueue(&docTask{documentID: 3, folderID: 10})

	var got []int64
	for {
		task, ok := q.dequeue()
		if !ok {
			break
		}
		got = append(got, task.documentID)
	}
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("dequeued %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dequeue order = %v, want %v", got, want)
			break
		}
	}
}

func TestDocQueue_RoundRobinAcrossFolders(t *testing.T) {
	q := newDocQueue()
	q.enqueue(&docTask{documentID: 1, folderID: 10})
	q.enqueue(&docTask{documentID: 2, folderID: 10})
	q.enqueue(&docTask{documentID: 3, folderID: 20})
	q.enqueue(&docTask{documentID: 4, folderID: 20})

	var folders []int64
	for {
		task, ok := q.dequeue()
		if !ok {
			break
		}
		folders = append(folders, task.folderID)
	}
	want := []int64{10, 20, 10, 20}
	if len(folders) != len(want) {
		t.Fatalf("dequeued %d tasks, want %d", len(folders), len(want))
	}
	for i := range want {
		if folders[i] != want[i] {
			t.Errorf("folder visit order = %v, want %v", folders, want)
			break
		}
	}
}

func TestDocQueue_DeduplicatesDocuments(t *testing.T) {
	q := newDocQueue()
	if !q.enqueue(&docTask{documentID: 1, folderID: 10}) {
		t.Error("first enqueue should succeed")
	}
	if q.enqueue(&docTask{documentID: 1, folderID: 10}) {
		t.Error("enqueue of an already queued document should be rejected")
	}
	if q.pendingForFolder(10) != 1 {
		t.Errorf("pendingForFolder() = %d, want 1", q.pendingForFolder(10))
	}
}

func TestDocQueue_RemoveFolder(t *testing.T) {
	q := newDocQueue()
	q.enqueue(&docTask{documentID: 1, folderID: 10})
	q.enqueue(&docTask{documentID: 2, folderID: 20})
	q.enqueue(&docTask{documentID: 3, folderID: 10})

	q.removeFolder(10)

	if q.isQueued(1) || q.isQueued(3) {
		t.Error("documents of the removed folder should no longer be queued")
	}
	task, ok := q.dequeue()
	if !ok || task.documentID != 2 {
		t.Errorf("dequeue after removeFolder = %+v, want document 2", task)
	}
	if !q.empty() {
		t.Error("queue should be empty")
	}
}

func TestDocQueue_EmptyQueue(t *testing.T) {
	q := newDocQueue()
	if !q.empty() {
		t.Error("new queue should be empty")
	}
	if _, ok := q.dequeue(); ok {
		t.Error("dequeue on empty queue should report not ok")
	}
}
