package hitl

import "fmt"

// NotFoundError indicates the review id does not exist.
type NotFoundError struct {
	// ID is the review that was requested
	ID int64
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("review %d not found", e.ID)
}

// InvalidDecisionError indicates a decision other than approved or
// rejected was submitted.
type InvalidDecisionError struct {
	// Decision is the rejected decision value
	Decision string
}

// Error implements the error interface.
func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision %q: must be %q or %q", e.Decision, StatusApproved, StatusRejected)
}

// IllegalTransitionError indicates a decision was attempted on a
// review whose state no longer admits one.
type IllegalTransitionError struct {
	// ID is the review
	ID int64

	// From is the review's current status
	From ReviewStatus

	// To is the requested status
	To ReviewStatus
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("review %d: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// InvariantViolationError indicates an update that would break the
// review data model (e.g. a decision status without a timestamp).
type InvariantViolationError struct {
	// ID is the review
	ID int64

	// Message describes the violated invariant
	Message string
}

// Error implements the error interface.
func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("review %d: %s", e.ID, e.Message)
}
