package gateway

import "fmt"

// BlockedError indicates a policy refused the request outright at one
// of the two checkpoints. The HTTP adapter maps it to 403.
type BlockedError struct {
	// Checkpoint is "input" or "output"
	Checkpoint string

	// Reason is the blocking policy's explanation
	Reason string

	// PolicyName is the policy that blocked
	PolicyName string

	// TraceID correlates with the audit trail
	TraceID string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked at %s checkpoint by policy %q: %s",
		e.Checkpoint, e.PolicyName, e.Reason)
}

// EscalatedError indicates the request is paused behind a human
// review. The HTTP adapter maps it to 202 with the review id.
type EscalatedError struct {
	// Checkpoint is "input" or "output"
	Checkpoint string

	// ReviewID identifies the pending review
	ReviewID string

	// Reason is the escalating policy's explanation
	Reason string

	// TraceID correlates with the audit trail
	TraceID string
}

// Error implements the error interface.
func (e *EscalatedError) Error() string {
	return fmt.Sprintf("request escalated at %s checkpoint for review %s: %s",
		e.Checkpoint, e.ReviewID, e.Reason)
}
