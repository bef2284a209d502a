package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory EventStore for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	errors []*ErrorEvent
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.ID = s.nextID
	s.nextID++
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, &cp)
	event.ID = cp.ID
	event.Timestamp = cp.Timestamp
	return nil
}

func (s *MemoryStore) AppendError(ctx context.Context, event *ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.ID = s.nextID
	s.nextID++
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	s.errors = append(s.errors, &cp)
	event.ID = cp.ID
	event.Timestamp = cp.Timestamp
	return nil
}

func (s *MemoryStore) CountSince(ctx context.Context, handle string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if e.Handle == handle && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DecisionCountsSince(ctx context.Context, handle string, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.events {
		if e.Handle == handle && !e.Timestamp.Before(since) {
			counts[e.Decision]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) TotalCount(ctx context.Context, handle string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if e.Handle == handle {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RecentErrors(ctx context.Context, limit int) ([]*ErrorEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.errors) {
		limit = len(s.errors)
	}
	out := make([]*ErrorEvent, 0, limit)
	for i := len(s.errors) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.errors[i]
		out = append(out, &cp)
	}
	return out, nil
}
