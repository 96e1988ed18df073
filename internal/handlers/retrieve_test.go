package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"localdocs/internal/retrieval"
)

type fakeRetriever struct {
	results []retrieval.ResultInfo
	err     error

	lastCollections []string
	lastText        string
	lastK           int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, collections []string, text string, k int) ([]retrieval.ResultInfo, error) {
	f.lastCollections = collections
	f.lastText = text
	f.lastK = k
	return f.results, f.err
}

func TestRetrieveHandler_Retrieve(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		results        []retrieval.ResultInfo
		err            error
		expectedStatus int
		expectedK      int
	}{
		{
			name: "results returned",
			body: `{"collections":["work"],"text":"deadlines","k":2}`,
			results: []retrieval.ResultInfo{
				{File: "notes.txt", Text: "the deadline is friday", Page: -1, From: 1, To: 1},
			},
			expectedStatus: http.StatusOK,
			expectedK:      2,
		},
		{
			name:           "k defaults when omitted",
			body:           `{"collections":["work"],"text":"deadlines"}`,
			expectedStatus: http.StatusOK,
			expectedK:      defaultRetrieveK,
		},
		{
			name:           "k clamped to maximum",
			body:           `{"collections":["work"],"text":"deadlines","k":500}`,
			expectedStatus: http.StatusOK,
			expectedK:      maxRetrieveK,
		},
		{
			name:           "blank text rejected",
			body:           `{"collections":["work"],"text":"   "}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "no collections rejected",
			body:           `{"collections":[],"text":"deadlines"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			body:           `{"text":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "embedding service down",
			body:           `{"collections":["work"],"text":"deadlines"}`,
			err:            fmt.Errorf("failed to embed query: connection refused"),
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "storage failure",
			body:           `{"collections":["work"],"text":"deadlines"}`,
			err:            fmt.Errorf("failed to query chunks: database locked"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{results: tt.results, err: tt.err}
			handler := NewRetrieveHandler(retriever)

			w := postJSON(t, handler.Retrieve, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.expectedStatus, w.Body.String())
			}

			if tt.expectedStatus != http.StatusOK {
				return
			}
			if retriever.lastK != tt.expectedK {
				t.Errorf("k = %d, want %d", retriever.lastK, tt.expectedK)
			}

			var resp RetrieveResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Results == nil {
				t.Error("results should never be null")
			}
			if len(resp.Results) != len(tt.results) {
				t.Errorf("got %d results, want %d", len(resp.Results), len(tt.results))
			}
		})
	}
}
