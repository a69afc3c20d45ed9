package session

import (
	"context"
	"fmt"
	"sync"
)

// Hub owns one Actor per session, so sessions run concurrently with each
// other while each session's own turns stay strictly ordered.
type Hub struct {
	handler    TurnHandler
	writer     ResponseWriter
	queueSize  int
	queueStore QueueStore
	rootCtx    context.Context

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewHub builds a Hub that dispatches every turn to handler and writes
// replies back through writer.
func NewHub(handler TurnHandler, writer ResponseWriter, queueSize int) *Hub {
	return &Hub{
		handler:   handler,
		writer:    writer,
		queueSize: queueSize,
		actors:    make(map[string]*Actor),
	}
}

// WithQueueStore enables durable persistence of inbound messages before they
// reach an actor. Optional: a Hub with no queue store processes turns
// in-memory only.
func (h *Hub) WithQueueStore(store QueueStore) *Hub {
	h.queueStore = store
	return h
}

// Start records the root context new actors are spawned under. It must be
// called once before Dispatch.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.rootCtx = ctx
	h.mu.Unlock()
}

// Dispatch routes an inbound message to its session's actor, creating the
// actor (and starting it) on first use. When a QueueStore is configured the
// message is durably persisted first, so a crash before the actor finishes
// the turn leaves a recoverable row rather than losing the message.
func (h *Hub) Dispatch(ctx context.Context, msg Message) error {
	if h.queueStore != nil {
		id, err := h.queueStore.Enqueue(ctx, msg.SessionID, msg.Text, 5)
		if err != nil {
			return fmt.Errorf("persist inbound message: %w", err)
		}
		msg.QueueID = id
	}

	actor, err := h.actorFor(msg.SessionID)
	if err != nil {
		return err
	}
	return actor.Enqueue(ctx, msg)
}

// Redeliver routes an already-persisted message straight to its actor,
// skipping the durable Enqueue step Dispatch performs. Used once at startup
// to replay queue rows a prior crash left pending, never double-persisting
// them.
func (h *Hub) Redeliver(ctx context.Context, msg Message) error {
	actor, err := h.actorFor(msg.SessionID)
	if err != nil {
		return err
	}
	return actor.Enqueue(ctx, msg)
}

func (h *Hub) actorFor(sessionID string) (*Actor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rootCtx == nil {
		return nil, fmt.Errorf("session hub is not started")
	}
	if actor, ok := h.actors[sessionID]; ok {
		return actor, nil
	}

	actor := NewActor(sessionID, h.handler, h.writer, h.queueSize)
	actor.queueStore = h.queueStore
	if err := actor.Start(h.rootCtx); err != nil {
		return nil, fmt.Errorf("start actor for session %s: %w", sessionID, err)
	}
	h.actors[sessionID] = actor
	return actor, nil
}

// StateOf reports a session's actor state, or StateIdle if no actor has
// been created for it yet (it has never handled a turn).
func (h *Hub) StateOf(sessionID string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if actor, ok := h.actors[sessionID]; ok {
		return actor.State()
	}
	return StateIdle
}

// ActiveSessionCount reports how many session actors currently exist, for
// the /v1/health and status surfaces.
func (h *Hub) ActiveSessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.actors)
}

// StopAll cancels every active actor's in-flight turn and drains its queue,
// used during graceful shutdown.
func (h *Hub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, actor := range h.actors {
		actor.Stop()
	}
}
