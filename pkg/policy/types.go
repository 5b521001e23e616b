package policy

// Outcome is the decision of a single policy evaluation.
//
// Outcomes form a total precedence order, most to least restrictive:
// BLOCK < ESCALATE < REDACT < ALLOW. Combining a set of outcomes
// yields the most restrictive member.
type Outcome string

const (
	// OutcomeAllow lets the request proceed unchanged.
	OutcomeAllow Outcome = "ALLOW"

	// OutcomeRedact lets the request proceed with modified content.
	OutcomeRedact Outcome = "REDACT"

	// OutcomeEscalate routes the request to human review.
	OutcomeEscalate Outcome = "ESCALATE"

	// OutcomeBlock stops the flow immediately.
	OutcomeBlock Outcome = "BLOCK"
)

// Precedence returns the outcome's rank in the restriction order.
// Lower rank means more restrictive. Unknown outcomes rank as ALLOW.
func (o Outcome) Precedence() int {
	switch o {
	case OutcomeBlock:
		return 1
	case OutcomeEscalate:
		return 2
	case OutcomeRedact:
		return 3
	default:
		return 4
	}
}

// ResolvePrecedence collapses a set of outcomes into the most
// restrictive one. An empty set resolves to ALLOW.
func ResolvePrecedence(outcomes []Outcome) Outcome {
	final := OutcomeAllow
	for _, o := range outcomes {
		if o.Precedence() < final.Precedence() {
			final = o
		}
	}
	return final
}

// Checkpoint identifies where in the request flow policies run.
type Checkpoint string

const (
	// CheckpointInput runs before the model call.
	CheckpointInput Checkpoint = "input"

	// CheckpointOutput runs after the model call.
	CheckpointOutput Checkpoint = "output"
)

// Context is the universal view passed to every policy module.
//
// It is the only data a module receives, so it is comprehensive
// upfront. Modules must treat it as read-only; the engine alone
// appends to PriorOutcomes between evaluations.
type Context struct {
	// Prompt is the user's request content.
	Prompt string `json:"prompt"`

	// Response is the model output, present only at the output checkpoint.
	Response string `json:"response,omitempty"`

	// UserID uniquely identifies the requesting user.
	UserID string `json:"user_id"`

	// UserRole is the user's role (e.g., "trader", "analyst").
	UserRole string `json:"user_role,omitempty"`

	// UserEmail is the user's email address.
	UserEmail string `json:"user_email,omitempty"`

	// DataClassification is the data sensitivity level
	// (e.g., "public", "confidential", "restricted").
	DataClassification string `json:"data_classification,omitempty"`

	// CustomerID is the customer or tenant identifier.
	CustomerID string `json:"customer_id,omitempty"`

	// Vertical is the industry vertical (e.g., "finance", "healthcare").
	Vertical string `json:"vertical,omitempty"`

	// RequestID is the unique per-request identifier.
	RequestID string `json:"request_id"`

	// Checkpoint is where this evaluation runs: input or output.
	Checkpoint Checkpoint `json:"checkpoint"`

	// PriorOutcomes holds the outcomes of the policies already run in
	// the current evaluation, in evaluation order. The engine seeds the
	// output checkpoint's slice with the input checkpoint's final outcome.
	PriorOutcomes []Outcome `json:"prior_outcomes,omitempty"`

	// Metadata carries free-form key/value context. It holds "trace_id"
	// whenever correlation is required.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TraceID returns the trace identifier from the context metadata,
// or the empty string when none is set.
func (c *Context) TraceID() string {
	if c.Metadata == nil {
		return ""
	}
	if id, ok := c.Metadata["trace_id"].(string); ok {
		return id
	}
	return ""
}

// Result is one policy's verdict.
type Result struct {
	// Outcome is the policy decision.
	Outcome Outcome `json:"outcome"`

	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason"`

	// PolicyName names the policy that produced this result.
	PolicyName string `json:"policy_name"`

	// ConfidenceScore is the decision confidence in [0, 1].
	// Zero means the policy did not report one.
	ConfidenceScore float64 `json:"confidence_score,omitempty"`

	// ModifiedContent is the rewritten text, set only when the outcome
	// is REDACT and the policy rewrote content. The orchestrator ignores
	// it for any other outcome.
	ModifiedContent string `json:"modified_content,omitempty"`

	// RedactionTokens maps placeholder tokens back to the original
	// substrings, allowing reversible redaction.
	RedactionTokens map[string]string `json:"redaction_tokens,omitempty"`
}

// EvaluationResult is the engine's verdict after running the chain.
type EvaluationResult struct {
	// FinalOutcome is the most restrictive outcome across the chain.
	FinalOutcome Outcome `json:"final_outcome"`

	// FinalResult is the result that produced FinalOutcome. Ties break
	// toward the first such result in evaluation order.
	FinalResult *Result `json:"final_result"`

	// AllResults holds every individual result in evaluation order.
	AllResults []*Result `json:"all_results"`

	// EvaluatedPolicies names the policies that ran, in order.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluationTimeMs is the wall time of the whole evaluation.
	EvaluationTimeMs float64 `json:"evaluation_time_ms"`
}

// Module is the contract every pluggable policy implements.
//
// Evaluate must be pure with respect to external state: its decision
// may depend on the context, on rules compiled at Configure time, and
// on the clock, but not on previous calls. It must not mutate the
// context, and it must not block on I/O. A failing module returns an
// error; the engine converts it to a fail-closed BLOCK result.
type Module interface {
	// Name returns the unique policy name (e.g., "pii_detection").
	Name() string

	// Configure passes the policy's option bag from configuration.
	// It is called once per load, before any Evaluate call.
	Configure(options map[string]any) error

	// Evaluate runs the policy against the context.
	Evaluate(pctx *Context) (*Result, error)
}
