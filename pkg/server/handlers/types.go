package handlers

import (
	"encoding/json"
	"net/http"

	"mercator-hq/aegis/pkg/router"
)

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Messages    []router.Message `json:"messages"`
	Model       string           `json:"model,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	UserID      string           `json:"userId,omitempty"`
	UserRole    string           `json:"userRole,omitempty"`
	UserEmail   string           `json:"userEmail,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// ChatResponse is the success body for /api/chat.
type ChatResponse struct {
	Content       string         `json:"content"`
	Model         string         `json:"model"`
	Provider      string         `json:"provider"`
	FinishReason  string         `json:"finishReason,omitempty"`
	Usage         *router.Usage  `json:"usage,omitempty"`
	PolicyOutcome string         `json:"policyOutcome"`
	Redacted      bool           `json:"redacted"`
	Metadata      map[string]any `json:"metadata"`
}

// EscalateResponse is the 202 body for an escalated request.
type EscalateResponse struct {
	ReviewID   string `json:"reviewId"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Reason     string `json:"reason"`
	TraceID    string `json:"traceId"`
	Checkpoint string `json:"checkpoint"`
}

// ErrorResponse is the error body for all failure codes.
type ErrorResponse struct {
	Error     string         `json:"error"`
	ErrorCode string         `json:"errorCode"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, &ErrorResponse{
		Error:     message,
		ErrorCode: code,
		Details:   details,
	})
}
