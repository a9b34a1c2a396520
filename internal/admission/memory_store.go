package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is an in-process CounterStore. Buckets live only as
// long as their window: the first increment of a new window sweeps every
// bucket from earlier windows, so idle identities do not accumulate.
type MemoryCounterStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	windowStart time.Time
	count       int
}

// NewMemoryCounterStore creates an empty in-process counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{buckets: make(map[string]*bucket)}
}

// Increment atomically bumps the counter for (key, windowStart) and returns
// the new count. A bucket from an earlier window is replaced, and the first
// increment of each new window drops every expired bucket.
func (s *MemoryCounterStore) Increment(_ context.Context, key string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if windowStart.After(s.lastSweep) {
		s.pruneLocked(windowStart)
		s.lastSweep = windowStart
	}

	b, ok := s.buckets[key]
	if !ok || b.windowStart.Before(windowStart) {
		b = &bucket{windowStart: windowStart}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// Prune drops buckets whose window started before cutoff.
func (s *MemoryCounterStore) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(cutoff)
}

func (s *MemoryCounterStore) pruneLocked(cutoff time.Time) {
	for key, b := range s.buckets {
		if b.windowStart.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}
