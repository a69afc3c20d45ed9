package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTurnHandler struct {
	mu    sync.Mutex
	order []string
	delay time.Duration
}

func (f *fakeTurnHandler) RunTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.order = append(f.order, text)
	f.mu.Unlock()
	return &TurnResult{Reply: "reply to " + text}, nil
}

type fakeResponseWriter struct {
	mu       sync.Mutex
	messages []string
}

func (w *fakeResponseWriter) WriteMessage(ctx context.Context, sessionID, text string) error {
	w.mu.Lock()
	w.messages = append(w.messages, text)
	w.mu.Unlock()
	return nil
}

func TestActorProcessesMessagesInFIFOOrder(t *testing.T) {
	handler := &fakeTurnHandler{delay: 5 * time.Millisecond}
	writer := &fakeResponseWriter{}
	actor := NewActor("sess-1", handler, writer, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := actor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, text := range []string{"one", "two", "three"} {
		if err := actor.Enqueue(ctx, Message{SessionID: "sess-1", Text: text}); err != nil {
			t.Fatalf("enqueue %q: %v", text, err)
		}
	}

	if err := actor.WaitUntilIdle(context.Background()); err != nil {
		t.Fatalf("wait until idle: %v", err)
	}

	handler.mu.Lock()
	order := append([]string(nil), handler.order...)
	handler.mu.Unlock()

	want := []string{"one", "two", "three"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

type fakeQueueStore struct {
	mu        sync.Mutex
	nextID    int64
	completed []int64
	failed    []int64
}

func (q *fakeQueueStore) Enqueue(ctx context.Context, sessionID, payload string, maxAttempts int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	return q.nextID, nil
}

func (q *fakeQueueStore) Complete(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueueStore) Fail(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

func TestHubWithQueueStorePersistsAndCompletesMessages(t *testing.T) {
	handler := &fakeTurnHandler{}
	writer := &fakeResponseWriter{}
	store := &fakeQueueStore{}
	hub := NewHub(handler, writer, 8).WithQueueStore(store)
	hub.Start(context.Background())

	if err := hub.Dispatch(context.Background(), Message{SessionID: "a", Text: "hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.completed)
		store.mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.completed) != 1 || store.completed[0] != 1 {
		t.Fatalf("expected queue entry 1 to be completed, got %v", store.completed)
	}
	if len(store.failed) != 0 {
		t.Fatalf("expected no failures, got %v", store.failed)
	}
}

func TestHubRedeliverSkipsEnqueue(t *testing.T) {
	handler := &fakeTurnHandler{}
	writer := &fakeResponseWriter{}
	store := &fakeQueueStore{}
	hub := NewHub(handler, writer, 8).WithQueueStore(store)
	hub.Start(context.Background())

	if err := hub.Redeliver(context.Background(), Message{SessionID: "a", Text: "recovered", QueueID: 42}); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.completed)
		store.mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.nextID != 0 {
		t.Fatalf("expected Redeliver to skip Enqueue, but nextID advanced to %d", store.nextID)
	}
	if len(store.completed) != 1 || store.completed[0] != 42 {
		t.Fatalf("expected queue entry 42 to be completed, got %v", store.completed)
	}
}

func TestHubCreatesOneActorPerSession(t *testing.T) {
	handler := &fakeTurnHandler{}
	writer := &fakeResponseWriter{}
	hub := NewHub(handler, writer, 8)
	hub.Start(context.Background())

	if err := hub.Dispatch(context.Background(), Message{SessionID: "a", Text: "hi a"}); err != nil {
		t.Fatalf("dispatch a: %v", err)
	}
	if err := hub.Dispatch(context.Background(), Message{SessionID: "b", Text: "hi b"}); err != nil {
		t.Fatalf("dispatch b: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		writer.mu.Lock()
		n := len(writer.messages)
		writer.mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.messages) != 2 {
		t.Fatalf("expected both sessions to produce a reply, got %v", writer.messages)
	}
}
