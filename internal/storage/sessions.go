package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one channel+peer conversation.
type Session struct {
	ID        string
	Channel   string
	Peer      string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNotFound is returned when a lookup by id/key finds nothing.
var ErrNotFound = errors.New("storage: not found")

// CreateSession inserts a new session row, returning it unchanged if a
// session for the same channel+peer already exists (idempotent start).
func (s *Store) CreateSession(ctx context.Context, id, channel, peer string) (*Session, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, channel, peer, state, created_at, updated_at)
		VALUES (?, ?, ?, 'idle', ?, ?)
		ON CONFLICT(channel, peer) DO NOTHING
	`, id, channel, peer, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.GetSessionByPeer(ctx, channel, peer)
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, channel, peer, state, created_at, updated_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByPeer fetches a session by its channel+peer unique key.
func (s *Store) GetSessionByPeer(ctx context.Context, channel, peer string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, channel, peer, state, created_at, updated_at FROM sessions WHERE channel = ? AND peer = ?`, channel, peer)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Channel, &sess.Peer, &sess.State, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

// ListSessions returns every session ordered by most recently updated.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, channel, peer, state, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.Channel, &sess.Peer, &sess.State, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// UpdateSessionState transitions a session's state machine field.
func (s *Store) UpdateSessionState(ctx context.Context, id, state string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`, state, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Message is one turn in a session's conversation history.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// InsertMessage appends one message to a session's history.
func (s *Store) InsertMessage(ctx context.Context, sessionID, role, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// GetMessagesForSession returns every message for a session in insertion order.
func (s *Store) GetMessagesForSession(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages for session: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ReplaceMessages atomically replaces all of a session's messages. Context
// compaction does not call it; compacted history is not written back.
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, messages []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace messages tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for _, m := range messages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, m.Role, m.Content, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert replacement message: %w", err)
		}
	}
	return tx.Commit()
}
