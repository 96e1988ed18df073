package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"localdocs/internal/engine"
	"localdocs/internal/storage"
)

// fakeEngine is a configurable IndexEngine for handler tests.
type fakeEngine struct {
	addOK        bool
	removeErr    error
	retryErr     error
	chunkSizeErr error
	items        []engine.CollectionItem
	listErr      error

	lastCollection string
	lastPath       string
	lastChunkSize  int
}

func (f *fakeEngine) AddFolder(ctx context.Context, collection, path string) bool {
	f.lastCollection, f.lastPath = collection, path
	return f.addOK
}

func (f *fakeEngine) RemoveFolder(ctx context.Context, collection, path string) error {
	f.lastCollection, f.lastPath = collection, path
	return f.removeErr
}

func (f *fakeEngine) RetryFolder(ctx context.Context, collection, path string) error {
	f.lastCollection, f.lastPath = collection, path
	return f.retryErr
}

func (f *fakeEngine) ChangeChunkSize(ctx context.Context, size int) error {
	f.lastChunkSize = size
	return f.chunkSizeErr
}

func (f *fakeEngine) CollectionList(ctx context.Context) ([]engine.CollectionItem, error) {
	return f.items, f.listErr
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestFolderHandler_Add(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		addOK          bool
		expectedStatus int
	}{
		{
			name:           "accepted",
			body:           `{"collection":"work","path":"/data/docs"}`,
			addOK:          true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "rejected by engine",
			body:           `{"collection":"work","path":"/data/docs"}`,
			addOK:          false,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing path",
			body:           `{"collection":"work"}`,
			addOK:          true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing collection",
			body:           `{"path":"/data/docs"}`,
			addOK:          true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			body:           `{"collection":`,
			addOK:          true,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{addOK: tt.addOK}
			handler := NewFolderHandler(eng)

			w := postJSON(t, handler.Add, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.expectedStatus, w.Body.String())
			}

			if tt.expectedStatus == http.StatusCreated {
				var resp FolderResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if !resp.Added {
					t.Error("response should report added=true")
				}
				if eng.lastCollection != "work" || eng.lastPath != "/data/docs" {
					t.Errorf("engine called with %q, %q", eng.lastCollection, eng.lastPath)
				}
			}
		})
	}
}

func TestFolderHandler_Remove(t *testing.T) {
	tests := []struct {
		name           string
		removeErr      error
		expectedStatus int
	}{
		{
			name:           "removed",
			removeErr:      nil,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "unknown folder",
			removeErr:      storage.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "storage failure",
			removeErr:      fmt.Errorf("disk full"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewFolderHandler(&fakeEngine{removeErr: tt.removeErr})

			w := postJSON(t, handler.Remove, `{"collection":"work","path":"/data/docs"}`)
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
		})
	}
}

func TestFolderHandler_Retry(t *testing.T) {
	tests := []struct {
		name           string
		retryErr       error
		expectedStatus int
	}{
		{
			name:           "retried",
			retryErr:       nil,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "unknown folder",
			retryErr:       storage.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "not in error state",
			retryErr:       fmt.Errorf("folder is not in an error state"),
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewFolderHandler(&fakeEngine{retryErr: tt.retryErr})

			w := postJSON(t, handler.Retry, `{"collection":"work","path":"/data/docs"}`)
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
		})
	}
}
