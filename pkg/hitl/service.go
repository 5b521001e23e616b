package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mercator-hq/aegis/pkg/audit"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// ServiceConfig configures the review service.
type ServiceConfig struct {
	// DefaultPriority is assigned to reviews created by escalation.
	DefaultPriority int

	// ReviewTTL sets each review's expiry horizon. Zero means
	// reviews never expire.
	ReviewTTL time.Duration
}

// Service layers gateway-facing operations over the Repository:
// escalation, decisions, dequeue, and the approved-review bypass
// lookup.
type Service struct {
	repo   Repository
	config ServiceConfig
	sink   audit.Sink
	logger *slog.Logger
}

// NewService creates the review service.
func NewService(repo Repository, config ServiceConfig, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{
		repo:   repo,
		config: config,
		sink:   sink,
		logger: slog.Default().With("component", "hitl.service"),
	}
}

// Repository exposes the underlying store, mainly for the HTTP
// review endpoints.
func (s *Service) Repository() Repository {
	return s.repo
}

// Escalate snapshots the policy context into a pending review and
// returns its id as a string.
//
// This path must never fail the surrounding request: any error is
// logged and a synthetic "review_failed_<requestId>" id is returned
// so the caller can still report a coherent escalation. The tradeoff
// is deliberate: an escalation that cannot be persisted still stops
// the request, it just cannot be approved later.
func (s *Service) Escalate(ctx context.Context, requestID string, pctx *policy.Context, reason string) string {
	snapshot, err := json.Marshal(pctx)
	if err != nil {
		s.logger.Error("failed to snapshot policy context for review",
			"request_id", requestID,
			"error", err,
		)
		return "review_failed_" + requestID
	}

	create := &ReviewCreate{
		RequestID:   requestID,
		TraceID:     pctx.TraceID(),
		Checkpoint:  string(pctx.Checkpoint),
		Reason:      reason,
		ContextData: string(snapshot),
		Prompt:      pctx.Prompt,
		Response:    pctx.Response,
		Priority:    s.config.DefaultPriority,
	}
	if s.config.ReviewTTL > 0 {
		expiresAt := time.Now().UTC().Add(s.config.ReviewTTL)
		create.ExpiresAt = &expiresAt
	}

	review, err := s.repo.Enqueue(ctx, create)
	if err != nil {
		s.logger.Error("failed to enqueue review, returning synthetic id",
			"request_id", requestID,
			"checkpoint", create.Checkpoint,
			"error", err,
		)
		return "review_failed_" + requestID
	}

	metrics.ReviewsEnqueued.Inc()
	s.logger.Info("review enqueued",
		"review_id", review.ID,
		"request_id", requestID,
		"checkpoint", review.Checkpoint,
		"reason", reason,
	)
	return strconv.FormatInt(review.ID, 10)
}

// Approve settles a review as approved.
func (s *Service) Approve(ctx context.Context, id int64, reviewedBy, notes string) (*Review, error) {
	return s.decide(ctx, id, StatusApproved, reviewedBy, notes)
}

// Reject settles a review as rejected.
func (s *Service) Reject(ctx context.Context, id int64, reviewedBy, notes string) (*Review, error) {
	return s.decide(ctx, id, StatusRejected, reviewedBy, notes)
}

func (s *Service) decide(ctx context.Context, id int64, decision ReviewStatus, reviewedBy, notes string) (*Review, error) {
	review, err := s.repo.Decide(ctx, id, decision, reviewedBy, notes)
	if err != nil {
		return nil, err
	}

	metrics.ReviewsDecided.WithLabelValues(string(decision)).Inc()
	s.sink.Log(ctx, review.RequestID, "review_decided", map[string]any{
		"trace_id":    review.TraceID,
		"review_id":   review.ID,
		"decision":    string(decision),
		"reviewed_by": reviewedBy,
		"checkpoint":  review.Checkpoint,
	})
	s.logger.Info("review decided",
		"review_id", id,
		"decision", decision,
		"reviewed_by", reviewedBy,
	)
	return review, nil
}

// DequeueReview claims up to limit reviews for a reviewer.
func (s *Service) DequeueReview(ctx context.Context, assignedTo string, lockDuration time.Duration, limit int) ([]*Review, error) {
	reviews, err := s.repo.Dequeue(ctx, assignedTo, lockDuration, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue reviews: %w", err)
	}
	metrics.ReviewsDequeued.Add(float64(len(reviews)))
	return reviews, nil
}

// GetByID returns one review.
func (s *Service) GetByID(ctx context.Context, id int64) (*Review, error) {
	return s.repo.GetByID(ctx, id)
}

// Query lists reviews matching the filters.
func (s *Service) Query(ctx context.Context, query *ReviewQuery) ([]*Review, error) {
	return s.repo.Query(ctx, query)
}

// CheckApprovedReview looks for a prior approved review covering the
// exact same prompt, user, and checkpoint within maxAge. A hit lets
// the caller skip re-escalation. Errors return a miss: a broken
// lookup must never grant a bypass.
func (s *Service) CheckApprovedReview(ctx context.Context, prompt, userID, checkpoint string, maxAge time.Duration) (*Review, bool) {
	// Prompt-filtered in SQL so a busy queue cannot push the matching
	// approval past the listing limit.
	reviews, err := s.repo.Query(ctx, &ReviewQuery{
		Status:     StatusApproved,
		Checkpoint: checkpoint,
		Prompt:     prompt,
	})
	if err != nil {
		s.logger.Warn("approved-review lookup failed, not bypassing",
			"user_id", userID,
			"checkpoint", checkpoint,
			"error", err,
		)
		return nil, false
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	for _, review := range reviews {
		if review.Prompt != prompt {
			continue
		}
		decidedAt := review.CreatedAt
		if review.DecisionTimestamp != nil {
			decidedAt = *review.DecisionTimestamp
		}
		if decidedAt.Before(cutoff) {
			continue
		}

		var snapshot policy.Context
		if err := json.Unmarshal([]byte(review.ContextData), &snapshot); err != nil {
			continue
		}
		if snapshot.UserID != userID {
			continue
		}
		return review, true
	}
	return nil, false
}
