package tools

import (
	"context"
	"testing"
	"time"

	"github.com/blufio/blufio/internal/security"
)

func TestBashToolCapturesOutputAndExitCode(t *testing.T) {
	tool := BashTool{WorkspaceDir: t.TempDir(), Timeout: 5 * time.Second, TmpDir: t.TempDir()}
	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello && exit 3"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !contains(res.Output, "hello") || !contains(res.Output, "exit code 3") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestFileToolWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tool := FileTool{WorkspaceDir: dir, TmpDir: t.TempDir()}

	if _, err := tool.Execute(context.Background(), map[string]any{
		"operation": "write", "path": "notes.txt", "content": "hello world",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{"operation": "read", "path": "notes.txt"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Output != "hello world" {
		t.Fatalf("got %q, want %q", res.Output, "hello world")
	}
}

func TestFileToolRejectsWorkspaceEscape(t *testing.T) {
	tool := FileTool{WorkspaceDir: t.TempDir(), TmpDir: t.TempDir()}
	_, err := tool.Execute(context.Background(), map[string]any{"operation": "read", "path": "../../etc/passwd"})
	if err == nil {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestHTTPToolBlocksLoopbackTarget(t *testing.T) {
	tool := HTTPTool{Resolver: security.NewResolver(), Timeout: time.Second}
	_, err := tool.Execute(context.Background(), map[string]any{"url": "http://127.0.0.1:9/"})
	if err == nil {
		t.Fatal("expected SSRF guard to block a loopback target")
	}
}

func TestHTTPToolRejectsNonHTTPScheme(t *testing.T) {
	tool := HTTPTool{Resolver: security.NewResolver(), Timeout: time.Second}
	_, err := tool.Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	if err == nil {
		t.Fatal("expected non-http scheme to be rejected")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
