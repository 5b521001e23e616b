package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/aegis/pkg/audit"
	"mercator-hq/aegis/pkg/hitl"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/router"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// Request is one client request entering the gateway.
type Request struct {
	// Prompt is the user's text, required.
	Prompt string

	// UserID identifies the requesting user, required.
	UserID string

	// Model names the target model; empty routes to the default.
	Model string

	Temperature float64
	MaxTokens   int

	// Optional user attributes available to policies.
	UserRole           string
	UserEmail          string
	DataClassification string
	CustomerID         string
	Vertical           string

	// Metadata is a free-form bag; "trace_id" is honored if present.
	Metadata map[string]any
}

// Result is the orchestrator's answer for a request that survived
// both checkpoints.
type Result struct {
	Response     *router.Response
	InputResult  *policy.EvaluationResult
	OutputResult *policy.EvaluationResult

	RequestID string
	TraceID   string

	// InputRedacted reports whether the prompt sent to the model
	// differed from the one submitted.
	InputRedacted bool

	// OutputRedacted reports whether the returned content differs
	// from what the model produced.
	OutputRedacted bool
}

// Config tunes the orchestrator.
type Config struct {
	// BypassEnabled turns on the approved-review bypass: an
	// escalation is skipped when the exact prompt was already
	// approved for the same user and checkpoint.
	BypassEnabled bool

	// BypassMaxAge bounds how old an approved review may be to
	// grant a bypass. Default: 7 days.
	BypassMaxAge time.Duration
}

// Orchestrator runs the dual-checkpoint state machine.
type Orchestrator struct {
	engine  *policy.Engine
	router  *router.Router
	reviews *hitl.Service
	sink    audit.Sink
	config  Config
	logger  *slog.Logger
}

// NewOrchestrator wires the orchestrator to its collaborators. The
// review service may be nil when escalation is not configured; an
// ESCALATE outcome then degrades to a synthetic review id.
func NewOrchestrator(engine *policy.Engine, modelRouter *router.Router, reviews *hitl.Service, sink audit.Sink, config Config) *Orchestrator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if config.BypassMaxAge == 0 {
		config.BypassMaxAge = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		engine:  engine,
		router:  modelRouter,
		reviews: reviews,
		sink:    sink,
		config:  config,
		logger:  slog.Default().With("component", "gateway.orchestrator"),
	}
}

// ProcessRequest runs a request through input evaluation, model
// routing, and output evaluation.
//
// The returned error is a *BlockedError or *EscalatedError when a
// policy stopped the request, or a router error when the model call
// failed. Audit events for one request are emitted in state-machine
// order under a single request id and trace id.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	requestID := uuid.NewString()
	traceID := traceIDFrom(req.Metadata)

	o.sink.Log(ctx, requestID, "request_received", map[string]any{
		"trace_id":      traceID,
		"user_id":       req.UserID,
		"model":         req.Model,
		"prompt_length": len(req.Prompt),
	})

	// Input checkpoint.
	inputCtx := o.policyContext(req, requestID, traceID, policy.CheckpointInput, "", false)
	inputResult := o.engine.Evaluate(ctx, inputCtx)

	prompt := req.Prompt
	inputRedacted := false

	switch inputResult.FinalOutcome {
	case policy.OutcomeBlock:
		o.finish("blocked", start)
		o.sink.Log(ctx, requestID, "request_blocked", map[string]any{
			"trace_id": traceID,
			"policy":   inputResult.FinalResult.PolicyName,
			"reason":   inputResult.FinalResult.Reason,
		})
		return nil, &BlockedError{
			Checkpoint: string(policy.CheckpointInput),
			Reason:     inputResult.FinalResult.Reason,
			PolicyName: inputResult.FinalResult.PolicyName,
			TraceID:    traceID,
		}

	case policy.OutcomeEscalate:
		if bypassed := o.tryBypass(ctx, requestID, traceID, req.Prompt, req.UserID, policy.CheckpointInput); !bypassed {
			reviewID := o.escalate(ctx, requestID, inputCtx, inputResult.FinalResult.Reason)
			o.finish("escalated", start)
			o.sink.Log(ctx, requestID, "request_escalated", map[string]any{
				"trace_id":  traceID,
				"review_id": reviewID,
				"policy":    inputResult.FinalResult.PolicyName,
				"reason":    inputResult.FinalResult.Reason,
			})
			return nil, &EscalatedError{
				Checkpoint: string(policy.CheckpointInput),
				ReviewID:   reviewID,
				Reason:     inputResult.FinalResult.Reason,
				TraceID:    traceID,
			}
		}

	case policy.OutcomeRedact:
		// Redaction without content is advisory only.
		if inputResult.FinalResult.ModifiedContent != "" {
			prompt = inputResult.FinalResult.ModifiedContent
			inputRedacted = true
		}
	}

	// Model routing.
	llmReq := &router.Request{
		Model:       req.Model,
		Messages:    []router.Message{{Role: router.RoleUser, Content: prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		UserID:      req.UserID,
		Metadata: map[string]string{
			"trace_id":       traceID,
			"input_redacted": fmt.Sprintf("%t", inputRedacted),
		},
	}

	resp, err := o.router.Route(ctx, requestID, traceID, llmReq)
	if err != nil {
		o.finish("error", start)
		return nil, err
	}

	o.sink.Log(ctx, requestID, "llm_response_received", map[string]any{
		"trace_id":     traceID,
		"model":        resp.Model,
		"provider":     resp.Provider,
		"total_tokens": resp.Usage.TotalTokens,
	})

	// Output checkpoint. The context observes the input verdict
	// through priorOutcomes and the redaction flag.
	outputCtx := o.policyContext(req, requestID, traceID, policy.CheckpointOutput, resp.Content, inputRedacted)
	outputCtx.Prompt = prompt
	outputCtx.PriorOutcomes = []policy.Outcome{inputResult.FinalOutcome}
	outputResult := o.engine.Evaluate(ctx, outputCtx)

	outputRedacted := false

	switch outputResult.FinalOutcome {
	case policy.OutcomeBlock:
		o.finish("blocked", start)
		o.sink.Log(ctx, requestID, "response_blocked", map[string]any{
			"trace_id": traceID,
			"policy":   outputResult.FinalResult.PolicyName,
			"reason":   outputResult.FinalResult.Reason,
		})
		return nil, &BlockedError{
			Checkpoint: string(policy.CheckpointOutput),
			Reason:     outputResult.FinalResult.Reason,
			PolicyName: outputResult.FinalResult.PolicyName,
			TraceID:    traceID,
		}

	case policy.OutcomeEscalate:
		if bypassed := o.tryBypass(ctx, requestID, traceID, prompt, req.UserID, policy.CheckpointOutput); !bypassed {
			reviewID := o.escalate(ctx, requestID, outputCtx, outputResult.FinalResult.Reason)
			o.finish("escalated", start)
			o.sink.Log(ctx, requestID, "response_escalated", map[string]any{
				"trace_id":  traceID,
				"review_id": reviewID,
				"policy":    outputResult.FinalResult.PolicyName,
				"reason":    outputResult.FinalResult.Reason,
			})
			return nil, &EscalatedError{
				Checkpoint: string(policy.CheckpointOutput),
				ReviewID:   reviewID,
				Reason:     outputResult.FinalResult.Reason,
				TraceID:    traceID,
			}
		}

	case policy.OutcomeRedact:
		if outputResult.FinalResult.ModifiedContent != "" {
			resp.Content = outputResult.FinalResult.ModifiedContent
			outputRedacted = true
		}
	}

	o.finish("completed", start)
	o.sink.Log(ctx, requestID, "request_completed", map[string]any{
		"trace_id":       traceID,
		"input_outcome":  string(inputResult.FinalOutcome),
		"output_outcome": string(outputResult.FinalOutcome),
		"duration_ms":    time.Since(start).Milliseconds(),
	})

	return &Result{
		Response:       resp,
		InputResult:    inputResult,
		OutputResult:   outputResult,
		RequestID:      requestID,
		TraceID:        traceID,
		InputRedacted:  inputRedacted,
		OutputRedacted: outputRedacted,
	}, nil
}

// policyContext builds the per-checkpoint evaluation context.
func (o *Orchestrator) policyContext(req *Request, requestID, traceID string, checkpoint policy.Checkpoint, response string, inputRedacted bool) *policy.Context {
	metadata := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["trace_id"] = traceID
	if checkpoint == policy.CheckpointOutput {
		metadata["input_redacted"] = inputRedacted
	}

	return &policy.Context{
		Prompt:             req.Prompt,
		Response:           response,
		UserID:             req.UserID,
		UserRole:           req.UserRole,
		UserEmail:          req.UserEmail,
		DataClassification: req.DataClassification,
		CustomerID:         req.CustomerID,
		Vertical:           req.Vertical,
		RequestID:          requestID,
		Checkpoint:         checkpoint,
		Metadata:           metadata,
	}
}

// tryBypass consults the approved-review history before escalating.
func (o *Orchestrator) tryBypass(ctx context.Context, requestID, traceID, prompt, userID string, checkpoint policy.Checkpoint) bool {
	if !o.config.BypassEnabled || o.reviews == nil {
		return false
	}
	review, ok := o.reviews.CheckApprovedReview(ctx, prompt, userID, string(checkpoint), o.config.BypassMaxAge)
	if !ok {
		return false
	}

	o.logger.Info("escalation bypassed by prior approval",
		"request_id", requestID,
		"review_id", review.ID,
		"checkpoint", checkpoint,
	)
	o.sink.Log(ctx, requestID, "escalation_bypassed", map[string]any{
		"trace_id":    traceID,
		"review_id":   review.ID,
		"checkpoint":  string(checkpoint),
		"reviewed_by": review.ReviewedBy,
	})
	return true
}

// escalate hands the context to the review service, or synthesizes a
// failure id when no review service is wired.
func (o *Orchestrator) escalate(ctx context.Context, requestID string, pctx *policy.Context, reason string) string {
	if o.reviews == nil {
		o.logger.Error("escalation requested but no review service configured",
			"request_id", requestID,
		)
		return "review_failed_" + requestID
	}
	return o.reviews.Escalate(ctx, requestID, pctx, reason)
}

func (o *Orchestrator) finish(disposition string, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(disposition).Inc()
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
}

// traceIDFrom extracts or mints the trace id for a request.
func traceIDFrom(metadata map[string]any) string {
	if v, ok := metadata["trace_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := metadata["traceId"].(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}
