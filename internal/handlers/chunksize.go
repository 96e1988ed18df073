package handlers

import (
	"encoding/json"
	"net/http"

	"localdocs/internal/contextutil"
)

// ChunkSizeHandler changes the chunking granularity at runtime.
type ChunkSizeHandler struct {
	engine IndexEngine
}

// NewChunkSizeHandler creates a new ChunkSizeHandler.
func NewChunkSizeHandler(engine IndexEngine) *ChunkSizeHandler {
	return &ChunkSizeHandler{engine: engine}
}

// ChunkSizeRequest sets a new chunk size in characters.
type ChunkSizeRequest struct {
	ChunkSize int `json:"chunk_size"`
}

// Change applies a new chunk size. Every folder is re-indexed from
// scratch, so this is an expensive operation.
func (h *ChunkSizeHandler) Change(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ChunkSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ChunkSize <= 0 {
		writeError(w, ctx, http.StatusBadRequest, "Chunk size must be positive")
		return
	}

	if err := h.engine.ChangeChunkSize(ctx, req.ChunkSize); err != nil {
		logger.ErrorContext(ctx, "failed to change chunk size", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to change chunk size")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
