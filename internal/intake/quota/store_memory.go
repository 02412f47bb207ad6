package quota

import (
	"context"
	"sync"
)

// InMemoryStore keeps reserved counts under one mutex so check-and-increment
// is atomic.
type InMemoryStore struct {
	mu     sync.Mutex
	counts map[ResKey]int
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{counts: make(map[ResKey]int)}
}

func (s *InMemoryStore) Increment(_ context.Context, key ResKey, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && s.counts[key] >= limit {
		return false, nil
	}
	s.counts[key]++
	return true, nil
}

func (s *InMemoryStore) Decrement(_ context.Context, key ResKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[key] > 0 {
		s.counts[key]--
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context, key ResKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *InMemoryStore) Seed(_ context.Context, key ResKey, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[key] < count {
		s.counts[key] = count
	}
	return nil
}
