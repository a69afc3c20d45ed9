// Package session drives one session's single-threaded turn loop: a
// per-session actor that serializes inbound messages, assembles context,
// runs the provider tool-use loop, and persists the resulting history.
package session

import "context"

// Message is one inbound turn for a session, already resolved to a
// concrete session by the channel/router layer.
type Message struct {
	SessionID string
	Text      string

	// QueueID is the durable queue row backing this message, set by Hub.Dispatch
	// when a QueueStore is configured. Zero means the message was never
	// persisted (no QueueStore wired).
	QueueID int64
}

// QueueStore persists inbound messages so a crash between receipt and reply
// can be recovered and retried at restart, instead of silently dropping the
// turn. Satisfied by *storage.Store.
type QueueStore interface {
	Enqueue(ctx context.Context, sessionID, payload string, maxAttempts int) (int64, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64) error
}

// ResponseWriter delivers an assistant reply back to whichever channel
// transport originated the session.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, sessionID, text string) error
}

// State is the session actor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateResponding
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResponding:
		return "responding"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
