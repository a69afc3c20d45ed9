package channels

import (
	"bytes"
	"context"
	"testing"
)

type recordingWriter struct {
	sessionID string
	text      string
}

func (w *recordingWriter) WriteMessage(_ context.Context, sessionID, text string) error {
	w.sessionID = sessionID
	w.text = text
	return nil
}

func TestMultiWriterRoutesByChannelPrefix(t *testing.T) {
	cli := &recordingWriter{}
	telegram := &recordingWriter{}
	mw := NewMultiWriter()
	mw.Register("cli", cli)
	mw.Register("telegram", telegram)

	if err := mw.WriteMessage(context.Background(), "telegram:12345", "hi there"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if telegram.text != "hi there" || cli.text != "" {
		t.Fatalf("expected only telegram writer to receive the message, got cli=%q telegram=%q", cli.text, telegram.text)
	}
}

func TestMultiWriterErrorsOnUnregisteredChannel(t *testing.T) {
	mw := NewMultiWriter()
	if err := mw.WriteMessage(context.Background(), "slack:99", "hi"); err == nil {
		t.Fatal("expected error for unregistered channel prefix")
	}
}

func TestChatIDFromSessionIDRoundTrip(t *testing.T) {
	id, err := chatIDFromSessionID("telegram:42")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 42 {
		t.Fatalf("got %d, want 42", id)
	}
}

func TestChatIDFromSessionIDRejectsWrongChannel(t *testing.T) {
	if _, err := chatIDFromSessionID("cli:local"); err == nil {
		t.Fatal("expected error for non-telegram session id")
	}
}

func TestTelegramIsAllowedUser(t *testing.T) {
	listener := NewTelegram("token", []string{"111", "222"})
	if !listener.isAllowedUser("111") {
		t.Fatal("expected 111 to be allowed")
	}
	if listener.isAllowedUser("999") {
		t.Fatal("expected 999 to be rejected")
	}
}

func TestCLIWriterWritesToStdoutAndSignalsTurnDone(t *testing.T) {
	var out bytes.Buffer
	writer := NewCLIWriter(&out)
	turnDone := writer.turnChannel("cli:local")

	if err := writer.WriteMessage(context.Background(), "cli:local", "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected output written to stdout")
	}
	select {
	case text := <-turnDone:
		if text != "hello" {
			t.Fatalf("got %q, want hello", text)
		}
	default:
		t.Fatal("expected turn-done channel to be signaled")
	}
}
