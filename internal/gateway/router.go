package gateway

import (
	"github.com/gorilla/mux"

	"github.com/blufio/blufio/internal/metrics"
)

// NewRouter wires the full HTTP surface: unauthenticated liveness/metrics,
// and a bearer-gated /v1 API plus /ws chat socket.
func NewRouter(deps Dependencies, bearerToken, version string) *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging)
	r.Use(Recovery)

	health := NewHealthHandler(deps.Store, deps.Hub, version)
	r.HandleFunc("/health", health.Liveness).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	auth := BearerAuth(bearerToken)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth)

	v1.HandleFunc("/health", health.Readiness).Methods("GET")

	messages := NewMessageHandler(deps)
	v1.HandleFunc("/messages", messages.Send).Methods("POST")

	sessions := NewSessionHandler(deps.Store)
	v1.HandleFunc("/sessions", sessions.List).Methods("GET")

	ws := NewWebSocketHandler(deps)
	wsRoute := r.PathPrefix("/ws").Subrouter()
	wsRoute.Use(auth)
	wsRoute.HandleFunc("", ws.Serve).Methods("GET")

	return r
}
