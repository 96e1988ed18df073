package engine

// progress tracks per-folder indexing counters. Totals count scheduled work,
// currents count completed work, so current <= total holds throughout and
// both are reset to zero together when the folder completes.
//
// The counters are a cache for UI responsiveness; the chunk store remains
// the source of truth and they are re-derivable from it.
type progress struct {
	currentDocs, totalDocs             int64
	currentBytes, totalBytes           int64
	currentEmbeddings, totalEmbeddings int64
}

// scheduleDoc records a newly enqueued document.
func (p *progress) scheduleDoc(sizeBytes int64) {
	p.totalDocs++
	p.totalBytes += sizeBytes
}

// docDispatched records a document handed to extraction/embedding dispatch.
// Bytes count as in flight from this point, independent of when the
// embeddings actually arrive.
func (p *progress) docDispatched(sizeBytes int64) {
	p.currentDocs++
	p.currentBytes += sizeBytes
	p.clamp()
}

// scheduleEmbeddings records chunks dispatched to the embedding service.
func (p *progress) scheduleEmbeddings(n int64) {
	p.totalEmbeddings += n
}

// embeddingDone records one embedding vector persisted.
func (p *progress) embeddingDone() {
	p.currentEmbeddings++
	p.clamp()
}

// embeddingsAbandoned removes chunks whose batch failed from the schedule,
// keeping completion equality intact.
func (p *progress) embeddingsAbandoned(n int64) {
	p.totalEmbeddings -= n
	if p.totalEmbeddings < 0 {
		p.totalEmbeddings = 0
	}
	if p.currentEmbeddings > p.totalEmbeddings {
		p.currentEmbeddings = p.totalEmbeddings
	}
}

// settled reports whether all scheduled work has completed.
func (p *progress) settled() bool {
	return p.currentDocs == p.totalDocs &&
		p.currentBytes == p.totalBytes &&
		p.currentEmbeddings == p.totalEmbeddings
}

// reset zeroes all counters, the completion transition.
func (p *progress) reset() {
	*p = progress{}
}

// clamp enforces that currents never exceed totals.
func (p *progress) clamp() {
	if p.currentDocs > p.totalDocs {
		p.currentDocs = p.totalDocs
	}
	if p.currentBytes > p.totalBytes {
		p.currentBytes = p.totalBytes
	}
	if p.currentEmbeddings > p.totalEmbeddings {
		p.currentEmbeddings = p.totalEmbeddings
	}
}

// fill copies the counters into a CollectionItem snapshot.
func (p *progress) fill(item *CollectionItem) {
	item.CurrentDocsToIndex = p.currentDocs
	item.TotalDocsToIndex = p.totalDocs
	item.CurrentBytesToIndex = p.currentBytes
	item.TotalBytesToIndex = p.totalBytes
	item.CurrentEmbeddingsToIndex = p.currentEmbeddings
	item.TotalEmbeddingsToIndex = p.totalEmbeddings
}
