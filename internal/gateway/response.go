// Package gateway implements the HTTP/WebSocket transport: a mux.Router
// exposing /v1/messages (SSE), /v1/sessions, /v1/health, /health, /metrics,
// and /ws, bearer-token gated on every /v1/* route.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the standard API response envelope.
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
	Meta  *MetaInfo  `json:"meta,omitempty"`
}

// ErrorInfo carries a machine-readable code alongside a human message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo carries response-level metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrNotFound      = "NOT_FOUND"
	ErrInternalError = "INTERNAL_ERROR"
	ErrBudget        = "BUDGET_EXCEEDED"
)

// WriteJSON writes a successful JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data, Meta: &MetaInfo{Timestamp: time.Now()}})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: &ErrorInfo{Code: code, Message: message}, Meta: &MetaInfo{Timestamp: time.Now()}})
}
