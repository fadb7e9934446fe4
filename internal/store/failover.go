package store

import (
	"context"
	"log/slog"
	"time"
)

// FailoverStore wraps a primary backend (Redis) with an in-process fallback.
// Backend failures never propagate to callers: reads return StateNormal,
// writes land in the fallback, and rate-limit checks fall back before
// failing open. The fallback is only consulted when the primary errors, so
// it never contradicts the primary while the primary is reachable.
type FailoverStore struct {
	primary  Store
	fallback Store
}

// NewFailoverStore wraps primary with fallback.
func NewFailoverStore(primary, fallback Store) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback}
}

// SetUserState writes to the primary, degrading to the fallback on error.
func (s *FailoverStore) SetUserState(ctx context.Context, userID int64, state string, ttl time.Duration) error {
	if err := s.primary.SetUserState(ctx, userID, state, ttl); err != nil {
		slog.Warn("FailoverStore degrading state write to memory", "error", err, "userID", userID, "state", state)
		return s.fallback.SetUserState(ctx, userID, state, ttl)
	}
	return nil
}

// GetUserState reads from the primary, degrading to the fallback on error.
// It never returns an error to the caller.
func (s *FailoverStore) GetUserState(ctx context.Context, userID int64) (string, error) {
	state, err := s.primary.GetUserState(ctx, userID)
	if err == nil {
		return state, nil
	}
	slog.Warn("FailoverStore degrading state read to memory", "error", err, "userID", userID)

	state, err = s.fallback.GetUserState(ctx, userID)
	if err != nil {
		return StateNormal, nil
	}
	return state, nil
}

// CheckRateLimit consults the primary, then the fallback, and finally fails
// open: availability is preferred over strict enforcement.
func (s *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, err := s.primary.CheckRateLimit(ctx, key, limit, window)
	if err == nil {
		return allowed, nil
	}
	slog.Warn("FailoverStore degrading rate limit to memory", "error", err, "key", key)

	allowed, err = s.fallback.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		slog.Warn("FailoverStore rate limit failing open", "error", err, "key", key)
		return true, nil
	}
	return allowed, nil
}

// CleanupRateWindows cleans both backends.
func (s *FailoverStore) CleanupRateWindows(ctx context.Context) error {
	if err := s.primary.CleanupRateWindows(ctx); err != nil {
		slog.Warn("FailoverStore primary rate cleanup failed", "error", err)
	}
	return s.fallback.CleanupRateWindows(ctx)
}

// Ping reports primary backend reachability.
func (s *FailoverStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}
