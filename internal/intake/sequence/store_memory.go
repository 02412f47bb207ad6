package sequence

import (
	"context"
	"sync"
)

// InMemoryStore keeps counters under a single mutex. Single-process
// deployments and tests use this; read-modify-write stays atomic because
// the lock spans both.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[Key]int
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{counters: make(map[Key]int)}
}

func (s *InMemoryStore) Next(_ context.Context, key Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *InMemoryStore) Seed(_ context.Context, key Key, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] < max {
		s.counters[key] = max
	}
	return nil
}

// Current returns the last issued value. Test helper.
func (s *InMemoryStore) Current(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}
