package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/blufio/blufio/internal/storage"
)

// writeStore narrows storage.Store to the memory-write operations this
// package needs.
type writeStore interface {
	Store
	InsertMemory(ctx context.Context, m storage.MemoryRow) error
	Supersede(ctx context.Context, oldID, newID string) error
	Forget(ctx context.Context, id string) error
}

// Writer persists new memories, rejecting near-duplicates of existing active
// memories before they are written.
type Writer struct {
	store                 writeStore
	embedder               Embedder
	duplicateSimThreshold float64
}

// NewWriter builds a memory Writer.
func NewWriter(store writeStore, embedder Embedder, duplicateSimThreshold float64) *Writer {
	if duplicateSimThreshold <= 0 {
		duplicateSimThreshold = 0.92
	}
	return &Writer{store: store, embedder: embedder, duplicateSimThreshold: duplicateSimThreshold}
}

// Remember stores a new fact unless it duplicates an existing active
// memory (cosine similarity above the configured threshold), in which case
// it is silently dropped and the existing memory's id is returned.
func (w *Writer) Remember(ctx context.Context, sessionID, content string, source Source) (string, error) {
	var embedding []float32
	if w.embedder != nil {
		vec, err := w.embedder.Embed(ctx, content)
		if err != nil {
			return "", fmt.Errorf("embed memory content: %w", err)
		}
		embedding = vec

		active, err := w.store.ActiveMemories(ctx)
		if err != nil {
			return "", fmt.Errorf("load active memories for dedup check: %w", err)
		}
		for _, existing := range active {
			existingVec, err := BlobToVec(existing.Embedding)
			if err != nil || len(existingVec) == 0 {
				continue
			}
			if CosineSimilarity(embedding, existingVec) > w.duplicateSimThreshold {
				return existing.ID, nil
			}
		}
	}

	id := uuid.NewString()
	row := storage.MemoryRow{
		ID:      id,
		Content: content,
		Source:  string(source),
	}
	if sessionID != "" {
		row.SessionID = sql.NullString{String: sessionID, Valid: true}
	}
	if embedding != nil {
		row.Embedding = VecToBlob(embedding)
	}
	if err := w.store.InsertMemory(ctx, row); err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// Supersede marks oldID superseded by the memory Remember returns for
// newContent, enforcing acyclicity by construction (that memory is either
// freshly created or an active duplicate, and every ancestor of oldID is
// already superseded, so it cannot be one). If Remember returns oldID
// itself, nothing is superseded.
func (w *Writer) Supersede(ctx context.Context, sessionID, oldID, newContent string, source Source) (string, error) {
	newID, err := w.Remember(ctx, sessionID, newContent, source)
	if err != nil {
		return "", err
	}
	if newID == oldID {
		return newID, nil
	}
	if err := w.store.Supersede(ctx, oldID, newID); err != nil {
		return "", fmt.Errorf("supersede memory: %w", err)
	}
	return newID, nil
}

// Forget marks a memory forgotten.
func (w *Writer) Forget(ctx context.Context, id string) error {
	return w.store.Forget(ctx, id)
}

// ExtractionCadence decides whether extraction should run after turn number n.
func ExtractionCadence(turnNumber, everyN int) bool {
	if everyN <= 0 {
		return false
	}
	return turnNumber > 0 && turnNumber%everyN == 0
}

// ExtractionPrompt is the instruction sent to a cheap model to pull
// candidate long-term facts out of a window of recent turns, scoped to the
// six categories spec.md names: personal, preference, project, decision,
// instruction, outcome.
const ExtractionPrompt = `Review the conversation below. List any durable facts worth remembering long-term, one per line, each from one of these categories: personal, preference, project, decision, instruction, outcome. Skip small talk, resolved tool mechanics, and anything not worth recalling in a future conversation. Reply with one fact per line and nothing else, or the single word "NONE" if there is nothing worth keeping.`

// BuildExtractionTranscript renders recent turns as plain text for the
// extraction prompt.
func BuildExtractionTranscript(turns []string) string {
	out := ""
	for _, t := range turns {
		out += t + "\n"
	}
	return out
}

// ParseExtractionResponse splits a raw extraction completion into candidate
// facts, one per non-empty line, stripping common list-item markers ("-",
// "*", "1.") and dropping the literal "NONE" sentinel.
func ParseExtractionResponse(raw string) []ExtractedFact {
	facts := make([]ExtractedFact, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "NONE") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		if dot := strings.IndexByte(line, '.'); dot > 0 && dot <= 3 {
			if _, err := strconv.Atoi(line[:dot]); err == nil {
				line = strings.TrimSpace(line[dot+1:])
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		facts = append(facts, ExtractedFact{Content: line})
	}
	return facts
}
