package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trafficwatch/internal/violation/models"
	"trafficwatch/pkg/platform/sentinel"
)

// snapshot is an immutable view of the table. items[i] has id i+1.
type snapshot struct {
	items []models.Violation
}

// InMemory keeps records in process memory.
//
// Writers are serialized by mu and publish a new snapshot when done; readers
// load the current snapshot and never wait for writers. Inserts append past
// the length visible to older snapshots, so they can share the backing
// array; transitions copy the table before changing an element.
type InMemory struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	s := &InMemory{}
	s.snap.Store(&snapshot{})
	return s
}

func (s *InMemory) Insert(_ context.Context, v models.Violation, now time.Time) (models.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	v.ID = int64(len(cur.items)) + 1
	v.Status = models.StatusDetected
	v.CreatedAt = now
	v.UpdatedAt = now

	s.snap.Store(&snapshot{items: append(cur.items, v)})
	return v, nil
}

func (s *InMemory) Get(_ context.Context, id int64) (models.Violation, error) {
	cur := s.snap.Load()
	if id < 1 || id > int64(len(cur.items)) {
		return models.Violation{}, fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
	}
	return cur.items[id-1], nil
}

func (s *InMemory) List(_ context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error) {
	cur := s.snap.Load()

	matched := cur.items
	if !filter.IsEmpty() {
		matched = make([]models.Violation, 0)
		for _, v := range cur.items {
			if filter.Matches(v) {
				matched = append(matched, v)
			}
		}
	}

	start, end := page.Bounds(len(matched))
	items := make([]models.Violation, end-start)
	copy(items, matched[start:end])
	return items, len(matched), nil
}

func (s *InMemory) Transition(_ context.Context, id int64, to models.Status, now time.Time) (models.Violation, models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if id < 1 || id > int64(len(cur.items)) {
		return models.Violation{}, "", fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
	}

	v := cur.items[id-1]
	from := v.Status
	if !from.CanTransitionTo(to) {
		return models.Violation{}, "", fmt.Errorf("violation %d %s -> %s: %w", id, from, to, sentinel.ErrInvalidState)
	}
	v.ApplyTransition(to, now)

	items := make([]models.Violation, len(cur.items), cap(cur.items))
	copy(items, cur.items)
	items[id-1] = v
	s.snap.Store(&snapshot{items: items})
	return v, from, nil
}

// Count returns the number of records ever inserted.
func (s *InMemory) Count(_ context.Context) (int, error) {
	return len(s.snap.Load().items), nil
}

func (s *InMemory) Ping(_ context.Context) error {
	if s.snap.Load() == nil {
		return sentinel.ErrUnavailable
	}
	return nil
}
