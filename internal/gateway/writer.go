package gateway

import (
	"context"
	"fmt"
	"sync"
)

// HTTPWriter bridges session-actor replies back to whichever /v1/messages
// request is waiting on them. It assumes at most one in-flight request per
// session, which holds for Blufio's single-tenant model: nothing else is
// driving the same session concurrently.
type HTTPWriter struct {
	mu      sync.Mutex
	pending map[string]chan string
}

// NewHTTPWriter builds an empty reply router.
func NewHTTPWriter() *HTTPWriter {
	return &HTTPWriter{pending: make(map[string]chan string)}
}

// await registers a one-shot reply channel for a session and returns a
// cleanup function the caller must defer.
func (w *HTTPWriter) await(sessionID string) (<-chan string, func()) {
	ch := make(chan string, 1)
	w.mu.Lock()
	w.pending[sessionID] = ch
	w.mu.Unlock()
	return ch, func() {
		w.mu.Lock()
		delete(w.pending, sessionID)
		w.mu.Unlock()
	}
}

// WriteMessage implements session.ResponseWriter.
func (w *HTTPWriter) WriteMessage(_ context.Context, sessionID, text string) error {
	w.mu.Lock()
	ch, ok := w.pending[sessionID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending http request is waiting on session %s", sessionID)
	}
	select {
	case ch <- text:
	default:
	}
	return nil
}
