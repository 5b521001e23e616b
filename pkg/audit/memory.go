package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and in deployments
// that run without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *event
	stored.ID = s.nextID
	s.nextID++
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, &stored)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, query *EventQuery) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.events {
		if !matches(e, query) {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func matches(e *Event, q *EventQuery) bool {
	if q == nil {
		return true
	}
	if q.TraceID != "" && e.TraceID != q.TraceID {
		return false
	}
	if q.RequestID != "" && e.RequestID != q.RequestID {
		return false
	}
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if q.UserID != "" {
		uid, _ := e.EventData["user_id"].(string)
		if uid != q.UserID {
			return false
		}
	}
	if !q.StartTime.IsZero() && e.Timestamp.Before(q.StartTime) {
		return false
	}
	if !q.EndTime.IsZero() && e.Timestamp.After(q.EndTime) {
		return false
	}
	return true
}
