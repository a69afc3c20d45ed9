package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess, err := s.CreateSession(ctx, "sess-1", "cli", "local-user")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.State != "idle" {
		t.Fatalf("new session state = %q, want idle", sess.State)
	}

	// Creating again with the same channel+peer is idempotent.
	again, err := s.CreateSession(ctx, "sess-2-ignored", "cli", "local-user")
	if err != nil {
		t.Fatalf("create session (again): %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("expected idempotent create to return original id %q, got %q", sess.ID, again.ID)
	}

	if err := s.UpdateSessionState(ctx, sess.ID, "responding"); err != nil {
		t.Fatalf("update session state: %v", err)
	}
	reloaded, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reloaded.State != "responding" {
		t.Fatalf("state = %q, want responding", reloaded.State)
	}
}

func TestMessageOrderingPreserved(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess, err := s.CreateSession(ctx, "sess-1", "cli", "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	roles := []string{"user", "assistant", "user", "assistant"}
	for _, r := range roles {
		if _, err := s.InsertMessage(ctx, sess.ID, r, "content-"+r); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	msgs, err := s.GetMessagesForSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != len(roles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(roles))
	}
	for i, m := range msgs {
		if m.Role != roles[i] {
			t.Fatalf("message %d role = %q, want %q (ordering not preserved)", i, m.Role, roles[i])
		}
	}
}

func TestQueueEnqueueDequeueComplete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Enqueue(ctx, "sess-1", `{"op":"extract_memory"}`, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	entry, err := s.Dequeue(ctx, time.Minute)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if entry.ID != id || entry.Status != QueueStatusProcessing || entry.Attempts != 1 {
		t.Fatalf("unexpected leased entry: %+v", entry)
	}

	if err := s.Complete(ctx, entry.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := s.Dequeue(ctx, time.Minute); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after completion, got %v", err)
	}
}

func TestQueueFailExhaustsMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Enqueue(ctx, "sess-1", "payload", 2)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		entry, err := s.Dequeue(ctx, time.Millisecond)
		if err != nil {
			t.Fatalf("dequeue attempt %d: %v", i, err)
		}
		if entry.ID != id {
			t.Fatalf("unexpected entry id: %d", entry.ID)
		}
		if err := s.Fail(ctx, entry.ID); err != nil {
			t.Fatalf("fail attempt %d: %v", i, err)
		}
		// Wait out the 2s retry backoff Fail sets after the first attempt.
		time.Sleep(2100 * time.Millisecond)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM queue WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatalf("read final status: %v", err)
	}
	if status != QueueStatusFailed {
		t.Fatalf("status = %q, want failed after exhausting max_attempts", status)
	}
}

func TestRecoverStaleProcessing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Enqueue(ctx, "sess-1", "payload", 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.Dequeue(ctx, -time.Minute); err != nil {
		t.Fatalf("dequeue with already-expired lease: %v", err)
	}

	n, err := s.RecoverStaleProcessing(ctx)
	if err != nil {
		t.Fatalf("recover stale processing: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d entries, want 1", n)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM queue WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != QueueStatusPending {
		t.Fatalf("status = %q, want pending after recovery", status)
	}
}
