package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// MemoryStore keeps counters in a process-local map. It is the fallback when
// no shared backend is reachable, so limits are enforced per instance only.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	now    func() time.Time
	sweepP float64
	rnd    func() float64
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithSweepProbability sets the chance that a Put also sweeps expired entries.
func WithSweepProbability(p float64) MemoryOption {
	return func(s *MemoryStore) { s.sweepP = p }
}

// WithRandom overrides the [0,1) source used for sweep sampling.
func WithRandom(f func() float64) MemoryOption {
	return func(s *MemoryStore) { s.rnd = f }
}

// NewMemoryStore returns an empty store sweeping on 1% of writes.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
		sweepP:  0.01,
		rnd:     rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements CounterStore.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !ent.expiresAt.After(s.now()) {
		return 0, false, nil
	}
	return ent.count, true, nil
}

// Put implements CounterStore.
func (s *MemoryStore) Put(_ context.Context, key string, count int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = &memoryEntry{count: count, expiresAt: now.Add(ttl)}
	s.maybeSweepLocked(now)
	return nil
}

// Increment implements Incrementer.
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ent, ok := s.entries[key]
	if !ok || !ent.expiresAt.After(now) {
		s.entries[key] = &memoryEntry{count: 1, expiresAt: now.Add(ttl)}
		s.maybeSweepLocked(now)
		return 1, nil
	}
	ent.count++
	return ent.count, nil
}

// SweepExpired implements Sweeper.
func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

// Len reports how many entries are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) maybeSweepLocked(now time.Time) {
	if s.sweepP > 0 && s.rnd() < s.sweepP {
		s.sweepLocked(now)
	}
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for k, ent := range s.entries {
		if !ent.expiresAt.After(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
