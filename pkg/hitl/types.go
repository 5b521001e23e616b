package hitl

import "time"

// ReviewStatus is a review's lifecycle state.
type ReviewStatus string

// Review lifecycle states. Legal transitions are pending→assigned,
// assigned→{approved,rejected,processing}, processing→{approved,
// rejected}, pending→expired, and assigned→pending on lock
// reclamation.
const (
	StatusPending    ReviewStatus = "pending"
	StatusAssigned   ReviewStatus = "assigned"
	StatusProcessing ReviewStatus = "processing"
	StatusApproved   ReviewStatus = "approved"
	StatusRejected   ReviewStatus = "rejected"
	StatusExpired    ReviewStatus = "expired"
)

// decidable reports whether a review in this state may still receive
// a decision.
func (s ReviewStatus) decidable() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusProcessing:
		return true
	}
	return false
}

// Review is one row in the review queue.
type Review struct {
	// ID is the monotonic row key.
	ID int64 `json:"id"`

	// RequestID is the gateway request that escalated.
	RequestID string `json:"requestId"`

	// TraceID correlates the review with the audit trail.
	TraceID string `json:"traceId,omitempty"`

	// Checkpoint is "input" or "output".
	Checkpoint string `json:"checkpoint"`

	// Reason is the policy text that triggered escalation.
	Reason string `json:"reason"`

	// ContextData is the serialized policy context snapshot.
	ContextData string `json:"contextData,omitempty"`

	// Prompt is the prompt under review.
	Prompt string `json:"prompt"`

	// Response is the model output under review (output checkpoint).
	Response string `json:"response,omitempty"`

	Status   ReviewStatus `json:"status"`
	Priority int          `json:"priority"`

	// AssignedTo names the reviewer holding the row, if any.
	AssignedTo string     `json:"assignedTo,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`

	// LockedUntil bounds the assignment; past it the reaper may
	// return the row to pending.
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`

	// Decision fields, set exactly when status is approved/rejected.
	ReviewedBy        string     `json:"reviewedBy,omitempty"`
	ReviewNotes       string     `json:"reviewNotes,omitempty"`
	DecisionTimestamp *time.Time `json:"decisionTimestamp,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// Metadata is a free-form annotation bag.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ReviewCreate is the payload for enqueueing a review.
type ReviewCreate struct {
	RequestID   string
	TraceID     string
	Checkpoint  string
	Reason      string
	ContextData string
	Prompt      string
	Response    string
	Priority    int
	ExpiresAt   *time.Time
	Metadata    map[string]any
}

// ReviewUpdate is a partial patch; nil fields are left untouched.
type ReviewUpdate struct {
	Status            *ReviewStatus
	AssignedTo        *string
	LockedUntil       *time.Time
	ReviewedBy        *string
	ReviewNotes       *string
	DecisionTimestamp *time.Time
	Priority          *int
}

// ReviewQuery filters review listings. Zero values mean "any".
type ReviewQuery struct {
	Status     ReviewStatus
	RequestID  string
	TraceID    string
	Checkpoint string
	AssignedTo string

	// Prompt matches the exact prompt text, for bypass lookups.
	Prompt string

	Limit  int
	Offset int
}
