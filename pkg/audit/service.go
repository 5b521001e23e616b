package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// ServiceConfig configures the audit service buffer.
type ServiceConfig struct {
	// BufferSize is the capacity of the pending-event buffer.
	// Default: 1024 entries. When the buffer is full, new events are
	// dropped; the service never applies backpressure to requests.
	BufferSize int

	// WriteTimeout bounds each store write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// Service is the fire-and-forget Sink in front of a Store.
//
// Events flow through a single background writer, so events for one
// request reach the store in emission order. Store failures and
// buffer overflows are logged and counted, never surfaced.
type Service struct {
	store   Store
	logger  *slog.Logger
	events  chan *Event
	timeout time.Duration
	dropped atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates an audit service writing to store and starts its
// background writer.
func NewService(store Store, config *ServiceConfig) *Service {
	bufferSize := 1024
	timeout := 5 * time.Second
	if config != nil {
		if config.BufferSize > 0 {
			bufferSize = config.BufferSize
		}
		if config.WriteTimeout > 0 {
			timeout = config.WriteTimeout
		}
	}

	s := &Service{
		store:   store,
		logger:  slog.Default().With("component", "audit.service"),
		events:  make(chan *Event, bufferSize),
		timeout: timeout,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.runWriter()
	return s
}

// Log implements Sink. The data map may carry "trace_id"; it is
// lifted into the event's trace column for indexed correlation.
func (s *Service) Log(_ context.Context, requestID, eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	traceID, _ := data["trace_id"].(string)

	event := &Event{
		TraceID:   traceID,
		RequestID: requestID,
		EventType: eventType,
		EventData: data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case s.events <- event:
	default:
		// Drop on overflow rather than blocking the request path.
		metrics.AuditDropped.Inc()
		n := s.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			s.logger.Warn("audit buffer full, dropping events",
				"dropped_total", n,
				"event_type", eventType,
			)
		}
	}
}

// runWriter is the single background writer goroutine.
func (s *Service) runWriter() {
	defer close(s.doneCh)

	for {
		select {
		case event := <-s.events:
			s.write(event)
		case <-s.stopCh:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case event := <-s.events:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.Insert(ctx, event); err != nil {
		s.logger.Error("audit event write failed",
			"request_id", event.RequestID,
			"event_type", event.EventType,
			"error", err,
		)
	}
}

// DroppedCount returns the number of events dropped on overflow.
func (s *Service) DroppedCount() int64 {
	return s.dropped.Load()
}

// EventsByTraceID returns all events for a trace, oldest first.
func (s *Service) EventsByTraceID(ctx context.Context, traceID string) ([]*Event, error) {
	return s.store.Query(ctx, &EventQuery{TraceID: traceID})
}

// EventsByRequestID returns all events for a request, oldest first.
func (s *Service) EventsByRequestID(ctx context.Context, requestID string) ([]*Event, error) {
	return s.store.Query(ctx, &EventQuery{RequestID: requestID})
}

// EventsByUserID returns events whose payload names the user, within
// the optional time range.
func (s *Service) EventsByUserID(ctx context.Context, userID string, start, end time.Time) ([]*Event, error) {
	return s.store.Query(ctx, &EventQuery{UserID: userID, StartTime: start, EndTime: end})
}

// Query runs an arbitrary filtered query against the store.
func (s *Service) Query(ctx context.Context, query *EventQuery) ([]*Event, error) {
	return s.store.Query(ctx, query)
}

// Shutdown stops the background writer after draining the buffer.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
