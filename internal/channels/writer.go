package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blufio/blufio/internal/session"
)

// MultiWriter routes a reply to the channel writer matching the leading
// "<channel>:" segment of the session id, so one shared Hub can serve every
// transport at once.
type MultiWriter struct {
	mu       sync.RWMutex
	byPrefix map[string]session.ResponseWriter
}

// NewMultiWriter builds an empty router; register writers before Start-ing
// the Hub that will use it.
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{byPrefix: make(map[string]session.ResponseWriter)}
}

// Register binds a channel prefix (e.g. "telegram", "cli") to its writer.
func (m *MultiWriter) Register(prefix string, writer session.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPrefix[prefix] = writer
}

// WriteMessage implements session.ResponseWriter.
func (m *MultiWriter) WriteMessage(ctx context.Context, sessionID, text string) error {
	prefix, _, found := strings.Cut(sessionID, ":")
	if !found {
		return fmt.Errorf("session id %q has no channel prefix", sessionID)
	}
	m.mu.RLock()
	writer, ok := m.byPrefix[prefix]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no writer registered for channel %q", prefix)
	}
	return writer.WriteMessage(ctx, sessionID, text)
}
