package engine

import "testing"

func TestProgress_CurrentNeverExceedsTotal(t *testing.T) {
	var p progress
	p.scheduleDoc(100)
	p.docDispatched(100)
	p.docDispatched(100) // double-count must clamp, not overflow

	if p.currentDocs > p.totalDocs {
		t.Errorf("currentDocs %d > totalDocs %d", p.currentDocs, p.totalDocs)
	}
	if p.currentBytes > p.totalBytes {
		t.Errorf("currentBytes %d > totalBytes %d", p.currentBytes, p.totalBytes)
	}
}

func TestProgress_SettledLifecycle(t *testing.T) {
	var p progress
	if !p.settled() {
		t.Error("zero progress should be settled")
	}

	p.scheduleDoc(50)
	if p.settled() {
		t.Error("scheduled but undispatched work should not be settled")
	}

	p.docDispatched(50)
	p.scheduleEmbeddings(3)
	if p.settled() {
		t.Error("pending embeddings should not be settled")
	}

	p.embeddingDone()
	p.embeddingDone()
	p.embeddingDone()
	if !p.settled() {
		t.Errorf("all work done should be settled: %+v", p)
	}

	p.reset()
	if p.totalDocs != 0 || p.currentDocs != 0 || p.totalEmbeddings != 0 {
		t.Errorf("reset() should zero all counters: %+v", p)
	}
}

func TestProgress_EmbeddingsAbandonedKeepsEquality(t *testing.T) {
	var p progress
	p.scheduleDoc(10)
	p.docDispatched(10)
	p.scheduleEmbeddings(5)
	p.embeddingDone()
	p.embeddingDone()

	// A failed batch of 3 is removed from the schedule.
	p.embeddingsAbandoned(3)

	if !p.settled() {
		t.Errorf("after abandoning the remaining batch progress should settle: %+v", p)
	}
	if p.totalEmbeddings != 2 || p.currentEmbeddings != 2 {
		t.Errorf("embeddings = %d/%d, want 2/2", p.currentEmbeddings, p.totalEmbeddings)
	}
}

func TestProgress_Fill(t *testing.T) {
	var p progress
	p.scheduleDoc(10)
	p.scheduleEmbeddings(4)
	p.docDispatched(10)
	p.embeddingDone()

	var item CollectionItem
	p.fill(&item)

	if item.TotalDocsToIndex != 1 || item.CurrentDocsToIndex != 1 {
		t.Errorf("docs = %d/%d", item.CurrentDocsToIndex, item.TotalDocsToIndex)
	}
	if item.TotalBytesToIndex != 10 || item.CurrentBytesToIndex != 10 {
		t.Errorf("bytes = %d/%d", item.CurrentBytesToIndex, item.TotalBytesToIndex)
	}
	if item.TotalEmbeddingsToIndex != 4 || item.CurrentEmbeddingsToIndex != 1 {
		t.Errorf("embeddings = %d/%d", item.CurrentEmbeddingsToIndex, item.TotalEmbeddingsToIndex)
	}
}
