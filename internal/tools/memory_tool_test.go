package tools

import (
	"context"
	"testing"

	"github.com/blufio/blufio/internal/memory"
	"github.com/blufio/blufio/internal/storage"
)

type fakeMemoryWriter struct {
	forgotten  []string
	superseded map[string]string
	nextID     string
}

func (f *fakeMemoryWriter) Forget(ctx context.Context, id string) error {
	f.forgotten = append(f.forgotten, id)
	return nil
}

func (f *fakeMemoryWriter) Supersede(ctx context.Context, sessionID, oldID, newContent string, source memory.Source) (string, error) {
	if f.superseded == nil {
		f.superseded = map[string]string{}
	}
	f.superseded[oldID] = newContent
	return f.nextID, nil
}

type fakeMemoryFinder struct {
	rows []storage.MemoryRow
}

func (f *fakeMemoryFinder) ActiveMemories(ctx context.Context) ([]storage.MemoryRow, error) {
	return f.rows, nil
}

func TestMemoryToolForgetByExactID(t *testing.T) {
	writer := &fakeMemoryWriter{}
	finder := &fakeMemoryFinder{rows: []storage.MemoryRow{{ID: "mem-1", Content: "likes dark roast coffee"}}}
	tool := MemoryTool{Writer: writer, Finder: finder}

	res, err := tool.Execute(context.Background(), map[string]any{"action": "forget", "target": "mem-1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(writer.forgotten) != 1 || writer.forgotten[0] != "mem-1" {
		t.Fatalf("expected mem-1 to be forgotten, got %v", writer.forgotten)
	}
	if !contains(res.Output, "mem-1") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestMemoryToolForgetByFuzzyContent(t *testing.T) {
	writer := &fakeMemoryWriter{}
	finder := &fakeMemoryFinder{rows: []storage.MemoryRow{
		{ID: "mem-1", Content: "likes dark roast coffee"},
		{ID: "mem-2", Content: "works on the Blufio project"},
	}}
	tool := MemoryTool{Writer: writer, Finder: finder}

	if _, err := tool.Execute(context.Background(), map[string]any{"action": "forget", "target": "dark roast"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(writer.forgotten) != 1 || writer.forgotten[0] != "mem-1" {
		t.Fatalf("expected fuzzy match to resolve to mem-1, got %v", writer.forgotten)
	}
}

func TestMemoryToolForgetNoMatchErrors(t *testing.T) {
	tool := MemoryTool{Writer: &fakeMemoryWriter{}, Finder: &fakeMemoryFinder{}}
	if _, err := tool.Execute(context.Background(), map[string]any{"action": "forget", "target": "anything"}); err == nil {
		t.Fatal("expected an error when no active memory matches")
	}
}

func TestMemoryToolSupersedeRequiresReplacement(t *testing.T) {
	finder := &fakeMemoryFinder{rows: []storage.MemoryRow{{ID: "mem-1", Content: "old fact"}}}
	tool := MemoryTool{Writer: &fakeMemoryWriter{nextID: "mem-2"}, Finder: finder}

	if _, err := tool.Execute(context.Background(), map[string]any{"action": "supersede", "target": "mem-1"}); err == nil {
		t.Fatal("expected an error when replacement is missing")
	}
}

func TestMemoryToolSupersedeCallsWriter(t *testing.T) {
	writer := &fakeMemoryWriter{nextID: "mem-2"}
	finder := &fakeMemoryFinder{rows: []storage.MemoryRow{{ID: "mem-1", Content: "old fact"}}}
	tool := MemoryTool{Writer: writer, Finder: finder}

	res, err := tool.Execute(context.Background(), map[string]any{
		"action": "supersede", "target": "mem-1", "replacement": "corrected fact",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if writer.superseded["mem-1"] != "corrected fact" {
		t.Fatalf("expected supersede to be called with corrected fact, got %v", writer.superseded)
	}
	if !contains(res.Output, "mem-2") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}
