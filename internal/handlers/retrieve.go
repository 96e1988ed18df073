package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"localdocs/internal/contextutil"
	"localdocs/internal/retrieval"
)

const (
	defaultRetrieveK = 4
	maxRetrieveK     = 20
)

// RetrieveHandler handles similarity queries.
type RetrieveHandler struct {
	retriever Retriever
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(retriever Retriever) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever}
}

// RetrieveRequest is a similarity query against one or more collections.
type RetrieveRequest struct {
	Collections []string `json:"collections"`
	Text        string   `json:"text"`
	K           int      `json:"k,omitempty"`
}

// RetrieveResponse carries the ranked excerpts.
type RetrieveResponse struct {
	Results []retrieval.ResultInfo `json:"results"`
}

// Retrieve embeds the query text and returns the most similar excerpts.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, ctx, http.StatusBadRequest, "Text is required")
		return
	}
	if len(req.Collections) == 0 {
		writeError(w, ctx, http.StatusBadRequest, "At least one collection is required")
		return
	}
	if req.K <= 0 {
		req.K = defaultRetrieveK
	}
	if req.K > maxRetrieveK {
		req.K = maxRetrieveK
	}

	results, err := h.retriever.Retrieve(ctx, req.Collections, req.Text, req.K)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		if strings.Contains(strings.ToLower(err.Error()), "embed") {
			writeError(w, ctx, http.StatusBadGateway, "Embedding service unavailable")
			return
		}
		writeError(w, ctx, http.StatusInternalServerError, "Failed to retrieve results")
		return
	}
	if results == nil {
		results = []retrieval.ResultInfo{}
	}

	writeJSON(w, ctx, http.StatusOK, RetrieveResponse{Results: results})
}
