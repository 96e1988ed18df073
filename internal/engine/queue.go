package engine

// docQueue holds per-folder FIFO queues of pending documents and services
// them round-robin, so progress stays visible across all indexing folders
// instead of starving later ones.
type docQueue struct {
	order  []int64 // round-robin visit order of folder IDs
	queues map[int64][]*docTask
	next   int
	queued map[int64]struct{} // document IDs currently queued
}

func newDocQueue() *docQueue {
	return &docQueue{
		queues: make(map[int64][]*docTask),
		queued: make(map[int64]struct{}),
	}
}

// enqueue appends a task to its folder's FIFO queue.
// A document already queued is not enqueued twice.
func (q *docQueue) enqueue(task *docTask) bool {
	if _, ok := q.queued[task.documentID]; ok {
		return false
	}
	if _, ok := q.queues[task.folderID]; !ok {
		q.order = append(q.order, task.folderID)
	}
	q.queues[task.folderID] = append(q.queues[task.folderID], task)
	q.queued[task.documentID] = struct{}{}
	return true
}

// dequeue pops the next task, visiting folders round-robin and FIFO within
// each folder.
func (q *docQueue) dequeue() (*docTask, bool) {
	for range q.order {
		if len(q.order) == 0 {
			return nil, false
		}
		q.next %= len(q.order)
		folderID := q.order[q.next]

		tasks := q.queues[folderID]
		if len(tasks) == 0 {
			q.dropFolderAt(q.next)
			continue
		}

		task := tasks[0]
		q.queues[folderID] = tasks[1:]
		delete(q.queued, task.documentID)
		if len(q.queues[folderID]) == 0 {
			q.dropFolderAt(q.next)
		} else {
			q.next++
		}
		return task, true
	}
	return nil, false
}

// removeFolder drops every queued task for the folder.
func (q *docQueue) removeFolder(folderID int64) {
	for _, task := range q.queues[folderID] {
		delete(q.queued, task.documentID)
	}
	delete(q.queues, folderID)
	for i, id := range q.order {
		if id == folderID {
			q.dropFolderAt(i)
			break
		}
	}
}

// pendingForFolder returns the number of queued documents for a folder.
func (q *docQueue) pendingForFolder(folderID int64) int {
	return len(q.queues[folderID])
}

// empty reports whether no documents are queued at all.
func (q *docQueue) empty() bool {
	return len(q.queued) == 0
}

// isQueued reports whether a document is currently queued.
func (q *docQueue) isQueued(documentID int64) bool {
	_, ok := q.queued[documentID]
	return ok
}

func (q *docQueue) dropFolderAt(i int) {
	folderID := q.order[i]
	q.order = append(q.order[:i], q.order[i+1:]...)
	delete(q.queues, folderID)
	if q.next > i {
		q.next--
	}
	if len(q.order) > 0 {
		q.next %= len(q.order)
	} else {
		q.next = 0
	}
}
