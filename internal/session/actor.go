package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blufio/blufio/internal/logging"
)

// TurnHandler runs one turn and returns the assistant's reply text.
type TurnHandler interface {
	RunTurn(ctx context.Context, sessionID, text string) (*TurnResult, error)
}

// Actor serializes every inbound message for one session through a single
// goroutine, so a session's turns always run in the order they arrived and
// never overlap. Modeled on a bounded-queue dispatch loop with per-run
// cancellation: the concurrency primitive is the same whether it is driving
// one conversation or fanning out across many.
type Actor struct {
	sessionID  string
	handler    TurnHandler
	writer     ResponseWriter
	queueStore QueueStore

	queue chan Message
	done  chan struct{}

	stateMu    sync.Mutex
	state      State
	started    bool
	rootCtx    context.Context
	currentRun context.CancelFunc
}

// NewActor creates a session actor with a fixed-size inbound queue.
func NewActor(sessionID string, handler TurnHandler, writer ResponseWriter, queueSize int) *Actor {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Actor{
		sessionID: sessionID,
		handler:   handler,
		writer:    writer,
		queue:     make(chan Message, queueSize),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
}

// Start begins the actor's run loop.
func (a *Actor) Start(ctx context.Context) error {
	a.stateMu.Lock()
	if a.started {
		a.stateMu.Unlock()
		return errors.New("session actor already started")
	}
	a.started = true
	a.rootCtx = ctx
	a.stateMu.Unlock()

	go a.run(ctx)
	return nil
}

// Enqueue submits one message for FIFO processing, blocking if the queue is
// full until the caller's context expires.
func (a *Actor) Enqueue(ctx context.Context, msg Message) error {
	a.stateMu.Lock()
	rootCtx, started := a.rootCtx, a.started
	a.stateMu.Unlock()
	if !started {
		return errors.New("session actor is not started")
	}

	select {
	case <-rootCtx.Done():
		return rootCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case a.queue <- msg:
		return nil
	}
}

// State reports the actor's current lifecycle state.
func (a *Actor) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// Stop cancels any in-flight turn and drains the pending queue.
func (a *Actor) Stop() {
	a.cancelCurrentRun()
	for {
		select {
		case <-a.queue:
		default:
			return
		}
	}
}

// WaitUntilIdle blocks until the actor has no in-flight turn and an empty queue.
func (a *Actor) WaitUntilIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if a.isIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	defer a.setState(StateClosed)
	for {
		select {
		case <-ctx.Done():
			a.cancelCurrentRun()
			return
		case msg := <-a.queue:
			a.handleOne(ctx, msg)
		}
	}
}

func (a *Actor) handleOne(ctx context.Context, msg Message) {
	runCtx, cancel := context.WithCancel(ctx)
	a.setCurrentRun(cancel)
	a.setState(StateResponding)

	result, err := a.handler.RunTurn(runCtx, a.sessionID, msg.Text)
	a.clearCurrentRun()
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.setState(StateIdle)
			a.markQueueOutcome(ctx, msg, false)
			return
		}
		a.setState(StateError)
		logging.Logger().Warn("turn failed", "session_id", a.sessionID, "err", err)
		if writeErr := a.writer.WriteMessage(ctx, a.sessionID, fmt.Sprintf("error: %v", err)); writeErr != nil {
			logging.Logger().Warn("failed to write error response", "session_id", a.sessionID, "err", writeErr)
		}
		a.markQueueOutcome(ctx, msg, false)
		return
	}

	a.setState(StateIdle)
	a.markQueueOutcome(ctx, msg, true)
	if result == nil || result.Reply == "" {
		return
	}
	if err := a.writer.WriteMessage(ctx, a.sessionID, result.Reply); err != nil {
		logging.Logger().Warn("failed to write response", "session_id", a.sessionID, "err", err)
	}
}

// markQueueOutcome resolves the durable queue row backing msg, if any. Uses
// a fresh background context with a short timeout since ctx may already be
// canceled (e.g. the turn was interrupted by shutdown).
func (a *Actor) markQueueOutcome(ctx context.Context, msg Message, succeeded bool) {
	if a.queueStore == nil || msg.QueueID == 0 {
		return
	}
	outcomeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if succeeded {
		err = a.queueStore.Complete(outcomeCtx, msg.QueueID)
	} else {
		err = a.queueStore.Fail(outcomeCtx, msg.QueueID)
	}
	if err != nil {
		logging.Logger().Warn("failed to resolve queue entry", "session_id", a.sessionID, "queue_id", msg.QueueID, "err", err)
	}
}

func (a *Actor) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

func (a *Actor) setCurrentRun(cancel context.CancelFunc) {
	a.stateMu.Lock()
	a.currentRun = cancel
	a.stateMu.Unlock()
}

func (a *Actor) clearCurrentRun() {
	a.stateMu.Lock()
	a.currentRun = nil
	a.stateMu.Unlock()
}

func (a *Actor) cancelCurrentRun() {
	a.stateMu.Lock()
	cancel := a.currentRun
	a.currentRun = nil
	a.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Actor) isIdle() bool {
	a.stateMu.Lock()
	running := a.currentRun != nil
	started := a.started
	a.stateMu.Unlock()
	if !started {
		return true
	}
	return !running && len(a.queue) == 0
}
