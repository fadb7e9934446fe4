package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type stateEntry struct {
	state     string
	expiresAt time.Time
}

// MemoryStore implements Store on in-process maps with the same TTL and
// sliding-window semantics as the Redis backend. All operations on a single
// key are serialized under one mutex, which gives the atomic
// check-and-increment the rate limiter requires.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]stateEntry
	rates  map[string][]time.Time
	clock  clockwork.Clock
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	slog.Debug("Creating MemoryStore")
	return &MemoryStore{
		states: make(map[int64]stateEntry),
		rates:  make(map[string][]time.Time),
		clock:  clock,
	}
}

// SetUserState stores the funnel state with an expiry.
func (s *MemoryStore) SetUserState(ctx context.Context, userID int64, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = stateEntry{state: state, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// GetUserState returns the stored state, treating expired entries as absent.
func (s *MemoryStore) GetUserState(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[userID]
	if !ok {
		return StateNormal, nil
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.states, userID)
		return StateNormal, nil
	}
	return entry.state, nil
}

// CheckRateLimit records the attempt and admits iff the resulting count for
// the trailing window is within limit.
func (s *MemoryStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cutoff := now.Add(-window)

	kept := s.rates[key][:0]
	for _, t := range s.rates[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.rates[key] = kept

	if len(kept) > limit {
		slog.Warn("MemoryStore rate limit exceeded", "key", key, "count", len(kept), "limit", limit)
		return false, nil
	}
	return true, nil
}

// CleanupRateWindows drops entries older than the retention horizon and
// removes empty keys and expired states.
func (s *MemoryStore) CleanupRateWindows(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cutoff := now.Add(-rateRetention)

	for key, entries := range s.rates {
		kept := entries[:0]
		for _, t := range entries {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(s.rates, key)
		} else {
			s.rates[key] = kept
		}
	}

	for userID, entry := range s.states {
		if now.After(entry.expiresAt) {
			delete(s.states, userID)
		}
	}
	return nil
}

// Ping always succeeds for the in-process store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
