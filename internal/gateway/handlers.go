package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/blufio/blufio/internal/session"
	"github.com/blufio/blufio/internal/storage"
)

const gatewayChannelName = "http"

// Dependencies are the collaborators every gateway handler needs.
type Dependencies struct {
	Hub    *session.Hub
	Writer *HTTPWriter
	Store  *storage.Store
}

// MessageHandler serves /v1/messages: post a message, get the assistant's
// reply back over a short-lived SSE stream once the session actor replies.
type MessageHandler struct {
	deps Dependencies
}

func NewMessageHandler(deps Dependencies) *MessageHandler {
	return &MessageHandler{deps: deps}
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Peer      string `json:"peer"`
	Text      string `json:"text"`
}

// Send decodes a message, dispatches it to the session's actor, and streams
// the reply back as a single SSE "message" event once the turn completes.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "text is required")
		return
	}
	peer := req.Peer
	if peer == "" {
		peer = req.SessionID
	}
	if peer == "" {
		peer = uuid.NewString()
	}
	sessionID := fmt.Sprintf("%s:%s", gatewayChannelName, peer)

	if _, err := h.deps.Store.CreateSession(r.Context(), sessionID, gatewayChannelName, peer); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	reply, release := h.deps.Writer.await(sessionID)
	defer release()

	if err := h.deps.Hub.Dispatch(r.Context(), session.Message{SessionID: sessionID, Text: req.Text}); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	flusher, canStream := w.(http.Flusher)
	if !canStream {
		writeMessageResult(w, r.Context(), reply, sessionID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	select {
	case text := <-reply:
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", mustMarshal(map[string]string{"session_id": sessionID, "text": text}))
		flusher.Flush()
	case <-r.Context().Done():
	case <-time.After(2 * time.Minute):
		fmt.Fprintf(w, "event: timeout\ndata: {}\n\n")
		flusher.Flush()
	}
}

func writeMessageResult(w http.ResponseWriter, ctx context.Context, reply <-chan string, sessionID string) {
	select {
	case text := <-reply:
		WriteJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "text": text})
	case <-ctx.Done():
	case <-time.After(2 * time.Minute):
		WriteError(w, http.StatusRequestTimeout, ErrInternalError, "timed out waiting for reply")
	}
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// SessionHandler serves /v1/sessions.
type SessionHandler struct {
	store *storage.Store
}

func NewSessionHandler(store *storage.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// List returns every known session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, sessions)
}

// HealthHandler serves liveness/readiness checks.
type HealthHandler struct {
	store     *storage.Store
	hub       *session.Hub
	startedAt time.Time
	version   string
}

func NewHealthHandler(store *storage.Store, hub *session.Hub, version string) *HealthHandler {
	return &HealthHandler{store: store, hub: hub, startedAt: time.Now(), version: version}
}

// Liveness always succeeds once the process is serving requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthDetail is the /v1/health body: the spec names status, version, and
// uptime_secs; active_sessions and queue_depth are additions a status CLI
// can render without a second round trip.
type healthDetail struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	UptimeSecs     int64   `json:"uptime_secs"`
	ActiveSessions int     `json:"active_sessions"`
	QueueDepth     int     `json:"queue_depth"`
	TodaySpendUSD  float64 `json:"today_spend_usd"`
	MonthSpendUSD  float64 `json:"month_spend_usd"`
}

// Readiness checks that the store is reachable and reports runtime detail.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	spend, err := h.store.Spend(r.Context(), time.Now())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "store unreachable")
		return
	}
	depth, err := h.store.QueueDepth(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "store unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, healthDetail{
		Status:         "ready",
		Version:        h.version,
		UptimeSecs:     int64(time.Since(h.startedAt).Seconds()),
		ActiveSessions: h.hub.ActiveSessionCount(),
		QueueDepth:     depth,
		TodaySpendUSD:  spend.TodayUSD,
		MonthSpendUSD:  spend.MonthUSD,
	})
}
