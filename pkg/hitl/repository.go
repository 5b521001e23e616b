package hitl

import (
	"context"
	"time"
)

// Repository is the durable review store. All operations are
// transactional; Dequeue in particular must assign each pending row
// to at most one concurrent caller.
type Repository interface {
	// Enqueue inserts a new pending review and returns the stored row.
	Enqueue(ctx context.Context, create *ReviewCreate) (*Review, error)

	// Dequeue atomically claims up to limit pending, unexpired
	// reviews for assignedTo, ordered by priority (descending) then
	// age (oldest first). Claimed rows move to assigned with a lock
	// that expires after lockDuration. Concurrent callers receive
	// disjoint sets; an empty queue returns an empty slice.
	Dequeue(ctx context.Context, assignedTo string, lockDuration time.Duration, limit int) ([]*Review, error)

	// GetByID returns one review or NotFoundError.
	GetByID(ctx context.Context, id int64) (*Review, error)

	// Update applies a partial patch. Setting status to approved or
	// rejected without a decision timestamp is an
	// InvariantViolationError.
	Update(ctx context.Context, id int64, patch *ReviewUpdate) (*Review, error)

	// Decide settles a review. decision must be approved or rejected
	// (InvalidDecisionError otherwise); reviews outside pending/
	// assigned/processing fail with IllegalTransitionError.
	Decide(ctx context.Context, id int64, decision ReviewStatus, reviewedBy, notes string) (*Review, error)

	// QueryByRequestID returns reviews for a request, oldest first.
	QueryByRequestID(ctx context.Context, requestID string) ([]*Review, error)

	// QueryByTraceID returns reviews for a trace, oldest first.
	QueryByTraceID(ctx context.Context, traceID string) ([]*Review, error)

	// Query returns reviews matching the filters, newest first.
	Query(ctx context.Context, query *ReviewQuery) ([]*Review, error)

	// ReclaimExpiredLocks returns assigned rows whose lock has lapsed
	// to pending, reporting how many were flipped.
	ReclaimExpiredLocks(ctx context.Context) (int64, error)

	// ExpireStale marks pending rows past their expiry as expired,
	// reporting how many were flipped.
	ExpireStale(ctx context.Context) (int64, error)

	// Close releases the underlying store.
	Close() error
}
