package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingsServer(t *testing.T, vectorSize int, wantModel string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, wantModel, req.Model)

		resp := embeddingsResponse{Data: make([]embeddingData, len(req.Input))}
		for i := range req.Input {
			vec := make([]float64, vectorSize)
			vec[0] = float64(i) + 0.5
			resp.Data[i] = embeddingData{Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestLocalClient_EmbedBatch(t *testing.T) {
	server := newEmbeddingsServer(t, 4, "test-model")
	defer server.Close()

	client := NewLocalClient(server.URL, "test-key", "test-model", 4)
	vecs, err := client.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)

	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4, "vectors should match the configured size")
	assert.InDelta(t, 0.5, vecs[0][0], 1e-6)
	assert.InDelta(t, 1.5, vecs[1][0], 1e-6, "vectors should keep input order")
}

func TestLocalClient_EmbedBatch_EmptyInput(t *testing.T) {
	client := NewLocalClient("http://localhost:1", "k", "m", 4)
	_, err := client.EmbedBatch(context.Background(), nil)
	assert.Error(t, err, "empty input should be rejected without a request")
}

func TestLocalClient_EmbedBatch_SizeMismatch(t *testing.T) {
	server := newEmbeddingsServer(t, 4, "test-model")
	defer server.Close()

	client := NewLocalClient(server.URL, "test-key", "test-model", 8)
	_, err := client.EmbedBatch(context.Background(), []string{"one"})
	assert.Error(t, err, "vectors of the wrong size should be rejected")
}

func TestLocalClient_EmbedBatch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewLocalClient(server.URL, "test-key", "test-model", 4)
	_, err := client.EmbedBatch(context.Background(), []string{"one"})
	assert.Error(t, err, "server errors should surface to the caller")
}

func TestLocalClient_EmbedText(t *testing.T) {
	server := newEmbeddingsServer(t, 4, "test-model")
	defer server.Close()

	client := NewLocalClient(server.URL, "test-key", "test-model", 4)
	vec, err := client.EmbedText(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}
