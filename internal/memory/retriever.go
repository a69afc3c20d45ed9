package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/blufio/blufio/internal/storage"
)

// rrfK is the Reciprocal Rank Fusion constant; 60 is the standard value
// from the original RRF paper and is what the rest of this retrieval
// pipeline was tuned against.
const rrfK = 60.0

// Embedder turns text into a fixed-dimension embedding vector. Implementations
// wrap a local model (e.g. all-MiniLM-L6-v2, 384 dims) so retrieval never
// depends on an external embedding API.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence boundary the retriever needs from storage.Store,
// narrowed so this package can be tested against a fake without dragging in
// the whole storage package surface.
type Store interface {
	ActiveMemories(ctx context.Context) ([]storage.MemoryRow, error)
	LexicalSearch(ctx context.Context, query string, limit int) ([]string, error)
}

// Retriever runs hybrid semantic+lexical memory search.
type Retriever struct {
	store    Store
	embedder Embedder
}

// NewRetriever builds a Retriever over store and embedder.
func NewRetriever(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Search returns the topK memories most relevant to query, ranked by fused
// semantic (cosine similarity) and lexical (BM25) relevance.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]ScoredMemory, error) {
	active, err := r.store.ActiveMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active memories: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	byID := make(map[string]storage.MemoryRow, len(active))
	for _, m := range active {
		byID[m.ID] = m
	}

	semanticRank, err := r.semanticRanking(ctx, query, active)
	if err != nil {
		return nil, err
	}
	lexicalIDs, err := r.store.LexicalSearch(ctx, query, len(active))
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	fused := fuseRRF(semanticRank, lexicalIDs)

	out := make([]ScoredMemory, 0, topK)
	for _, f := range fused {
		row, ok := byID[f.id]
		if !ok {
			continue
		}
		m, convErr := rowToMemory(row)
		if convErr != nil {
			continue
		}
		out = append(out, ScoredMemory{Memory: m, Score: f.score})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (r *Retriever) semanticRanking(ctx context.Context, query string, active []storage.MemoryRow) ([]string, error) {
	if r.embedder == nil {
		return nil, nil
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(active))
	for _, m := range active {
		vec, err := BlobToVec(m.Embedding)
		if err != nil {
			continue
		}
		scores = append(scores, scored{id: m.ID, score: CosineSimilarity(qvec, vec)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.id
	}
	return ids, nil
}

type fusedResult struct {
	id    string
	score float64
}

// fuseRRF combines two ranked id lists via Reciprocal Rank Fusion: each
// list contributes 1/(k+rank) to a candidate's score, rank being 1-based.
// The result is stable under reordering of ties (sorted by id as a
// secondary key) and invariant to which list an id appears in.
func fuseRRF(lists ...[]string) []fusedResult {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, id := range list {
			scores[id] += 1.0 / (rrfK + float64(rank+1))
		}
	}

	out := make([]fusedResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedResult{id: id, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}

func rowToMemory(row storage.MemoryRow) (Memory, error) {
	m := Memory{
		ID:        row.ID,
		Content:   row.Content,
		Source:    Source(row.Source),
		Status:    Status(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.SessionID.Valid {
		m.SessionID = row.SessionID.String
	}
	if row.SupersededBy.Valid {
		m.SupersededBy = row.SupersededBy.String
	}
	if len(row.Embedding) > 0 {
		vec, err := BlobToVec(row.Embedding)
		if err != nil {
			return Memory{}, err
		}
		m.Embedding = vec
	}
	return m, nil
}
