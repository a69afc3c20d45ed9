package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Memory statuses mirror the lifecycle original_source enforces.
const (
	MemoryStatusActive     = "active"
	MemoryStatusSuperseded = "superseded"
	MemoryStatusForgotten  = "forgotten"
)

// MemoryRow is one stored long-term memory.
type MemoryRow struct {
	ID           string
	SessionID    sql.NullString
	Content      string
	Embedding    []byte
	Source       string
	Status       string
	SupersededBy sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InsertMemory stores a new memory row and its FTS index entry in one
// transaction.
func (s *Store) InsertMemory(ctx context.Context, m MemoryRow) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert memory tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, session_id, content, embedding, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)
	`, m.ID, m.SessionID, m.Content, m.Embedding, m.Source, now, now)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read memory rowid: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (rowid, content) VALUES (?, ?)`, rowid, m.Content); err != nil {
		return fmt.Errorf("index memory for lexical search: %w", err)
	}
	return tx.Commit()
}

// ActiveMemories returns every memory whose status is active, across all
// sessions.
func (s *Store) ActiveMemories(ctx context.Context) ([]MemoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, embedding, source, status, superseded_by, created_at, updated_at
		FROM memories WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("list active memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LexicalSearch runs a BM25-ranked FTS5 query over memory content, returning
// ids ordered by relevance (best first).
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE f.content MATCH ? AND m.status = 'active'
		ORDER BY bm25(f.content)
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lexical search row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Supersede marks oldID superseded by newID, enforcing that the supersession
// chain stays acyclic by rejecting newID == oldID (a single-step cycle; the
// caller is responsible for walking existing chains before calling this).
func (s *Store) Supersede(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return errors.New("storage: a memory cannot supersede itself")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET status = 'superseded', superseded_by = ?, updated_at = ? WHERE id = ? AND status = 'active'
	`, newID, now, oldID)
	if err != nil {
		return fmt.Errorf("supersede memory: %w", err)
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

// Forget marks a memory forgotten (soft delete, never removed from the log).
func (s *Store) Forget(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET status = 'forgotten', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("forget memory: %w", err)
	}
	return nil
}

func scanMemoryRow(rows *sql.Rows) (MemoryRow, error) {
	var m MemoryRow
	var createdAt, updatedAt string
	if err := rows.Scan(&m.ID, &m.SessionID, &m.Content, &m.Embedding, &m.Source, &m.Status, &m.SupersededBy, &createdAt, &updatedAt); err != nil {
		return MemoryRow{}, fmt.Errorf("scan memory row: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return m, nil
}
