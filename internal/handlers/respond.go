package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"localdocs/internal/contextutil"
	"localdocs/internal/engine"
	"localdocs/internal/retrieval"
)

// IndexEngine is the engine surface the HTTP handlers need.
type IndexEngine interface {
	AddFolder(ctx context.Context, collection, path string) bool
	RemoveFolder(ctx context.Context, collection, path string) error
	RetryFolder(ctx context.Context, collection, path string) error
	ChangeChunkSize(ctx context.Context, size int) error
	CollectionList(ctx context.Context) ([]engine.CollectionItem, error)
}

// Retriever answers similarity queries.
type Retriever interface {
	Retrieve(ctx context.Context, collections []string, text string, k int) ([]retrieval.ResultInfo, error)
}

// Pinger checks database liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, ctx context.Context, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, ctx context.Context, statusCode int, message string) {
	writeJSON(w, ctx, statusCode, ErrorResponse{Error: message})
}
