package handlers

import (
	"net/http"

	"localdocs/internal/contextutil"
	"localdocs/internal/engine"
)

// CollectionsHandler serves collection snapshots.
type CollectionsHandler struct {
	engine IndexEngine
}

// NewCollectionsHandler creates a new CollectionsHandler.
func NewCollectionsHandler(engine IndexEngine) *CollectionsHandler {
	return &CollectionsHandler{engine: engine}
}

// CollectionsResponse lists every registered folder with live progress.
type CollectionsResponse struct {
	Collections []engine.CollectionItem `json:"collections"`
}

// List returns a snapshot of all registered folders.
func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	items, err := h.engine.CollectionList(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list collections", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to list collections")
		return
	}
	if items == nil {
		items = []engine.CollectionItem{}
	}

	writeJSON(w, ctx, http.StatusOK, CollectionsResponse{Collections: items})
}
