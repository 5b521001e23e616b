package audit

import (
	"context"
	"time"
)

// Event is an audit record as stored and returned from the store.
type Event struct {
	// ID is the store primary key.
	ID int64 `json:"id"`

	// TraceID correlates all events of one end-to-end request.
	TraceID string `json:"trace_id,omitempty"`

	// RequestID identifies the gateway request that emitted the event.
	RequestID string `json:"request_id"`

	// EventType names the event (e.g., "request_received",
	// "policy_evaluation_complete", "routing_success").
	EventType string `json:"event_type"`

	// EventData is the arbitrary structured payload.
	EventData map[string]any `json:"event_data"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// EventQuery filters stored events. Zero-valued fields are ignored.
type EventQuery struct {
	TraceID   string
	RequestID string

	// UserID matches events whose payload carries a "user_id" field.
	UserID string

	EventType string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Sink is the append-only event logger every component emits to.
//
// Implementations must be safe for concurrent use and must never
// propagate failures: audit loss is logged, not surfaced.
type Sink interface {
	// Log records one event for the given request. The data map may
	// carry "trace_id" for correlation.
	Log(ctx context.Context, requestID, eventType string, data map[string]any)
}

// Store is the durable backend behind the audit Service.
type Store interface {
	// Insert appends one event.
	Insert(ctx context.Context, event *Event) error

	// Query returns events matching the filters, oldest first.
	Query(ctx context.Context, query *EventQuery) ([]*Event, error)

	// Close releases the backing resources.
	Close() error
}

// NopSink discards all events. It stands in wherever auditing is
// disabled.
type NopSink struct{}

// Log implements Sink.
func (NopSink) Log(context.Context, string, string, map[string]any) {}
