package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"localdocs/internal/contextutil"
	"localdocs/internal/storage"
)

// FolderHandler handles folder registration endpoints.
type FolderHandler struct {
	engine IndexEngine
}

// NewFolderHandler creates a new FolderHandler.
func NewFolderHandler(engine IndexEngine) *FolderHandler {
	return &FolderHandler{engine: engine}
}

// FolderRequest identifies a folder within a collection.
type FolderRequest struct {
	Collection string `json:"collection"`
	Path       string `json:"path"`
}

// FolderResponse reports the outcome of a folder operation.
type FolderResponse struct {
	Added bool `json:"added,omitempty"`
}

// Add registers a new folder and starts indexing it.
func (h *FolderHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if !h.engine.AddFolder(ctx, req.Collection, req.Path) {
		logger.WarnContext(ctx, "folder rejected", "collection", req.Collection, "path", req.Path)
		writeError(w, ctx, http.StatusBadRequest,
			"Path is not a readable directory or overlaps an existing folder in the collection")
		return
	}

	writeJSON(w, ctx, http.StatusCreated, FolderResponse{Added: true})
}

// Remove unregisters a folder and deletes its indexed content.
func (h *FolderHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.engine.RemoveFolder(ctx, req.Collection, req.Path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, ctx, http.StatusNotFound, "Folder not found")
			return
		}
		logger.ErrorContext(ctx, "failed to remove folder", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to remove folder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Retry restarts indexing for a folder stuck in the error state.
func (h *FolderHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.engine.RetryFolder(ctx, req.Collection, req.Path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, ctx, http.StatusNotFound, "Folder not found")
			return
		}
		logger.WarnContext(ctx, "failed to retry folder", "error", err)
		writeError(w, ctx, http.StatusConflict, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FolderHandler) decode(w http.ResponseWriter, r *http.Request) (FolderRequest, bool) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req FolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return FolderRequest{}, false
	}
	if req.Collection == "" || req.Path == "" {
		writeError(w, ctx, http.StatusBadRequest, "Collection and path are required")
		return FolderRequest{}, false
	}
	return req, true
}
