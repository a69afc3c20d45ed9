package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/blufio/blufio/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler serves /ws: a bidirectional chat session multiplexed
// over a single connection, one peer per socket.
type WebSocketHandler struct {
	deps Dependencies
}

func NewWebSocketHandler(deps Dependencies) *WebSocketHandler {
	return &WebSocketHandler{deps: deps}
}

type wsInbound struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

type wsOutbound struct {
	Text string `json:"text"`
}

// Serve upgrades the connection and pumps messages to and from the caller's
// session for as long as the socket stays open.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Text == "" {
			continue
		}
		peer := in.Peer
		if peer == "" {
			peer = "default"
		}
		sessionID := fmt.Sprintf("ws:%s", peer)

		if _, err := h.deps.Store.CreateSession(ctx, sessionID, "ws", peer); err != nil {
			h.writeError(conn, err)
			continue
		}

		reply, release := h.deps.Writer.await(sessionID)
		if err := h.deps.Hub.Dispatch(ctx, session.Message{SessionID: sessionID, Text: in.Text}); err != nil {
			release()
			h.writeError(conn, err)
			continue
		}

		text := <-reply
		release()

		if err := conn.WriteJSON(wsOutbound{Text: text}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writeError(conn *websocket.Conn, err error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	conn.WriteMessage(websocket.TextMessage, payload)
}
