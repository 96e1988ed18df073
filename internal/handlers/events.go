package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"localdocs/internal/contextutil"
	"localdocs/internal/engine"
)

// subscriberBuffer bounds the per-client event queue. Slow clients drop
// events rather than stall the engine; a GET /api/collections resyncs.
const subscriberBuffer = 32

// EventsHandler streams engine notifications over server-sent events.
// It implements engine.Notifier, so Notify never blocks.
type EventsHandler struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		subs: make(map[chan []byte]struct{}),
	}
}

// Notify fans one notification out to every connected client.
func (h *EventsHandler) Notify(n engine.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// ServeHTTP streams notifications to the client until it disconnects.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, ctx, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}()

	logger.InfoContext(ctx, "event stream opened")
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "event stream closed")
			return
		case payload := <-sub:
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
