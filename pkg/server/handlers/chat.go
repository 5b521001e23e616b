package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/aegis/pkg/gateway"
	"mercator-hq/aegis/pkg/router"
)

// ChatHandler serves POST /api/chat.
type ChatHandler struct {
	orchestrator *gateway.Orchestrator
}

// NewChatHandler creates the chat handler.
func NewChatHandler(orchestrator *gateway.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON", nil)
		return
	}

	prompt, ok := lastUserMessage(req.Messages)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "messages must contain at least one user message", nil)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	result, err := h.orchestrator.ProcessRequest(r.Context(), &gateway.Request{
		Prompt:      prompt,
		UserID:      userID,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		UserRole:    req.UserRole,
		UserEmail:   req.UserEmail,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeProcessError(w, err)
		return
	}

	// The gateway's trace id wins over the middleware-minted one.
	w.Header().Set("X-Trace-Id", result.TraceID)

	writeJSON(w, http.StatusOK, &ChatResponse{
		Content:       result.Response.Content,
		Model:         result.Response.Model,
		Provider:      result.Response.Provider,
		FinishReason:  result.Response.FinishReason,
		Usage:         &result.Response.Usage,
		PolicyOutcome: string(result.OutputResult.FinalOutcome),
		Redacted:      result.OutputRedacted,
		Metadata: map[string]any{
			"traceId":             result.TraceID,
			"requestId":           result.RequestID,
			"inputPolicyOutcome":  string(result.InputResult.FinalOutcome),
			"outputPolicyOutcome": string(result.OutputResult.FinalOutcome),
			"policiesEvaluated":   result.OutputResult.EvaluatedPolicies,
			"inputRedacted":       result.InputRedacted,
		},
	})
}

// writeProcessError maps orchestrator errors onto status codes.
func (h *ChatHandler) writeProcessError(w http.ResponseWriter, err error) {
	var blocked *gateway.BlockedError
	if errors.As(err, &blocked) {
		w.Header().Set("X-Trace-Id", blocked.TraceID)
		writeError(w, http.StatusForbidden, "POLICY_BLOCKED", "request blocked by policy", map[string]any{
			"reason":     blocked.Reason,
			"checkpoint": blocked.Checkpoint,
			"traceId":    blocked.TraceID,
		})
		return
	}

	var escalated *gateway.EscalatedError
	if errors.As(err, &escalated) {
		w.Header().Set("X-Trace-Id", escalated.TraceID)
		writeJSON(w, http.StatusAccepted, &EscalateResponse{
			ReviewID:   escalated.ReviewID,
			Status:     "pending_review",
			Message:    "request is pending human review",
			Reason:     escalated.Reason,
			TraceID:    escalated.TraceID,
			Checkpoint: escalated.Checkpoint,
		})
		return
	}

	var validation *router.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", validation.Error(), nil)
		return
	}

	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
}

// lastUserMessage extracts the prompt: the newest user-role message.
func lastUserMessage(messages []router.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == router.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
