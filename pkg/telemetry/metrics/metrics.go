// Package metrics exposes the gateway's Prometheus collectors.
//
// Collectors are registered on the default registerer; Handler serves
// them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts gateway requests by terminal disposition
	// (completed, blocked, escalated, error).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Gateway requests by terminal disposition.",
	}, []string{"disposition"})

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aegis",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request processing latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// PolicyOutcomes counts individual policy verdicts.
	PolicyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "policy",
		Name:      "outcomes_total",
		Help:      "Policy evaluation outcomes by policy and outcome.",
	}, []string{"policy", "outcome"})

	// RouterAttempts counts provider generate attempts by provider
	// and result.
	RouterAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "router",
		Name:      "attempts_total",
		Help:      "Provider generate attempts by provider and result.",
	}, []string{"provider", "result"})

	// RouterFallbacks counts fallback-model activations.
	RouterFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "router",
		Name:      "fallbacks_total",
		Help:      "Times the fallback model was tried.",
	})

	// ReviewsEnqueued counts reviews entering the HITL queue.
	ReviewsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "hitl",
		Name:      "reviews_enqueued_total",
		Help:      "Reviews enqueued for human judgment.",
	})

	// ReviewsDequeued counts reviews handed to reviewers.
	ReviewsDequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "hitl",
		Name:      "reviews_dequeued_total",
		Help:      "Reviews assigned to reviewers.",
	})

	// ReviewsDecided counts review decisions by disposition.
	ReviewsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "hitl",
		Name:      "reviews_decided_total",
		Help:      "Review decisions by disposition.",
	}, []string{"decision"})

	// AuditDropped counts audit events dropped on buffer overflow.
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "audit",
		Name:      "events_dropped_total",
		Help:      "Audit events dropped because the buffer was full.",
	})
)

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
