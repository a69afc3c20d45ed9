package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	handler := BearerAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestBearerAuthAcceptsMatchingToken(t *testing.T) {
	handler := BearerAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestRecoveryConvertsPanicToJSON500(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest("GET", "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rec.Code)
	}
}

func TestHTTPWriterDeliversToAwaitingCaller(t *testing.T) {
	w := NewHTTPWriter()
	reply, release := w.await("http:peer-1")
	defer release()

	if err := w.WriteMessage(context.Background(), "http:peer-1", "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case text := <-reply:
		if text != "hello" {
			t.Fatalf("got %q, want hello", text)
		}
	default:
		t.Fatal("expected reply to be delivered")
	}
}

func TestHTTPWriterErrorsWithNoAwaitingCaller(t *testing.T) {
	w := NewHTTPWriter()
	if err := w.WriteMessage(context.Background(), "http:ghost", "hi"); err == nil {
		t.Fatal("expected error for session with no pending request")
	}
}
