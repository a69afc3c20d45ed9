package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Queue states.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

const (
	backoffBase = time.Second
	backoffCap  = 5 * time.Minute
)

// QueueEntry is one crash-safe work item.
type QueueEntry struct {
	ID          int64
	SessionID   string
	Payload     string
	Status      string
	Attempts    int
	MaxAttempts int
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enqueue inserts a new pending work item.
func (s *Store) Enqueue(ctx context.Context, sessionID, payload string, maxAttempts int) (int64, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queue (session_id, payload, status, attempts, max_attempts, created_at, updated_at)
		VALUES (?, ?, 'pending', 0, ?, ?, ?)
	`, sessionID, payload, maxAttempts, now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return res.LastInsertId()
}

// Dequeue leases the oldest pending item whose retry backoff has elapsed (or
// a processing item whose lease expired), marking it processing with a lease
// expiry leaseFor in the future.
func (s *Store) Dequeue(ctx context.Context, leaseFor time.Duration) (*QueueEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	row := tx.QueryRowContext(ctx, `
		SELECT id, session_id, payload, status, attempts, max_attempts, locked_until, created_at, updated_at
		FROM queue
		WHERE (status = 'pending' AND (locked_until IS NULL OR locked_until < ?))
		   OR (status = 'processing' AND locked_until IS NOT NULL AND locked_until < ?)
		ORDER BY id ASC
		LIMIT 1
	`, nowStr, nowStr)

	entry, err := scanQueueEntry(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	lockedUntil := now.Add(leaseFor).Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		UPDATE queue SET status = 'processing', attempts = attempts + 1, locked_until = ?, updated_at = ?
		WHERE id = ?
	`, lockedUntil, nowStr, entry.ID); err != nil {
		return nil, fmt.Errorf("lease queue entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	entry.Status = QueueStatusProcessing
	entry.Attempts++
	return entry, nil
}

// Complete marks a leased item completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE queue SET status = 'completed', locked_until = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}
	return nil
}

// Fail records a failed attempt. If attempts have reached max_attempts the
// entry is marked permanently failed; otherwise it is returned to pending
// with an exponential backoff lease (base 1s, capped at 5m) so it is not
// retried immediately.
func (s *Store) Fail(ctx context.Context, id int64) error {
	row := s.db.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM queue WHERE id = ?`, id)
	var attempts, maxAttempts int
	if err := row.Scan(&attempts, &maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read queue entry for fail: %w", err)
	}

	now := time.Now().UTC()
	if attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `UPDATE queue SET status = 'failed', locked_until = NULL, updated_at = ? WHERE id = ?`,
			now.Format(time.RFC3339Nano), id)
		if err != nil {
			return fmt.Errorf("mark queue entry failed: %w", err)
		}
		return nil
	}

	backoff := backoffFor(attempts)
	lockedUntil := now.Add(backoff).Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE queue SET status = 'pending', locked_until = ?, updated_at = ? WHERE id = ?`,
		lockedUntil, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("requeue after failed attempt: %w", err)
	}
	return nil
}

func backoffFor(attempts int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts))) * backoffBase
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

// QueueDepth counts work items still pending or in flight, for the
// /v1/health and status surfaces.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue WHERE status IN ('pending', 'processing')`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return depth, nil
}

// RecoverStaleProcessing reverts any item stuck in processing past its
// lease back to pending, run at startup and periodically by the scheduler so
// a crash mid-processing never strands work.
func (s *Store) RecoverStaleProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue SET status = 'pending', locked_until = NULL, updated_at = ?
		WHERE status = 'processing' AND (locked_until IS NULL OR locked_until < ?)
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("recover stale processing entries: %w", err)
	}
	return res.RowsAffected()
}

func scanQueueEntry(row *sql.Row) (*QueueEntry, error) {
	var e QueueEntry
	var lockedUntil sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.SessionID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts, &lockedUntil, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}
	if lockedUntil.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lockedUntil.String)
		e.LockedUntil = &t
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}
