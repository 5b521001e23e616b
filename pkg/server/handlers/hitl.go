package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/aegis/pkg/hitl"
)

// HITLHandler serves the /api/hitl/reviews endpoints.
type HITLHandler struct {
	reviews      *hitl.Service
	lockDuration time.Duration
}

// NewHITLHandler creates the review endpoints handler. lockDuration
// is the default dequeue lock when the caller does not specify one.
func NewHITLHandler(reviews *hitl.Service, lockDuration time.Duration) *HITLHandler {
	if lockDuration <= 0 {
		lockDuration = 5 * time.Minute
	}
	return &HITLHandler{reviews: reviews, lockDuration: lockDuration}
}

// List serves GET /api/hitl/reviews.
func (h *HITLHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &hitl.ReviewQuery{
		Status:     hitl.ReviewStatus(q.Get("status")),
		RequestID:  q.Get("requestId"),
		TraceID:    q.Get("traceId"),
		Checkpoint: q.Get("checkpoint"),
		AssignedTo: q.Get("assignedTo"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Offset = n
		}
	}

	reviews, err := h.reviews.Query(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews, "count": len(reviews)})
}

// Get serves GET /api/hitl/reviews/{id}.
func (h *HITLHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	review, err := h.reviews.GetByID(r.Context(), id)
	if err != nil {
		h.writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Approve serves POST /api/hitl/reviews/{id}/approve.
func (h *HITLHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, hitl.StatusApproved)
}

// Reject serves POST /api/hitl/reviews/{id}/reject.
func (h *HITLHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, hitl.StatusRejected)
}

func (h *HITLHandler) decide(w http.ResponseWriter, r *http.Request, decision hitl.ReviewStatus) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	reviewedBy := r.URL.Query().Get("reviewedBy")
	if reviewedBy == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "reviewedBy is required", nil)
		return
	}
	notes := r.URL.Query().Get("reviewNotes")

	var (
		review *hitl.Review
		err    error
	)
	if decision == hitl.StatusApproved {
		review, err = h.reviews.Approve(r.Context(), id, reviewedBy, notes)
	} else {
		review, err = h.reviews.Reject(r.Context(), id, reviewedBy, notes)
	}
	if err != nil {
		h.writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Dequeue serves POST /api/hitl/reviews/dequeue.
func (h *HITLHandler) Dequeue(w http.ResponseWriter, r *http.Request) {
	assignedTo := r.URL.Query().Get("assignedTo")
	if assignedTo == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "assignedTo is required", nil)
		return
	}

	limit := 1
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	lockDuration := h.lockDuration
	if v := r.URL.Query().Get("lockSeconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lockDuration = time.Duration(n) * time.Second
		}
	}

	reviews, err := h.reviews.DequeueReview(r.Context(), assignedTo, lockDuration, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews, "count": len(reviews)})
}

// writeReviewError maps repository errors onto status codes.
func (h *HITLHandler) writeReviewError(w http.ResponseWriter, err error) {
	var notFound *hitl.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "REVIEW_NOT_FOUND", err.Error(), nil)
		return
	}

	var illegal *hitl.IllegalTransitionError
	if errors.As(err, &illegal) {
		writeError(w, http.StatusConflict, "ILLEGAL_TRANSITION", err.Error(), nil)
		return
	}

	var invalid *hitl.InvalidDecisionError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, "INVALID_DECISION", err.Error(), nil)
		return
	}

	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
}

func reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "review id must be an integer", nil)
		return 0, false
	}
	return id, true
}
