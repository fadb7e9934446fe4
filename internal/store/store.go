// Package store provides the keyed state and rate-limit storage backends
// for MaryCall.
//
// It includes a Redis-backed store for production, an in-process store with
// the same TTL semantics, and a failover wrapper that degrades from Redis to
// memory without surfacing backend errors to callers.
package store

import (
	"context"
	"time"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// StateNormal is the default funnel state returned when no state is
// persisted for a user or the persisted state has expired.
const StateNormal = models.StateNormal

// Store is the contract the funnel engine depends on for per-user state and
// sliding-window rate admission.
type Store interface {
	// SetUserState persists the funnel state for a user with an expiry.
	SetUserState(ctx context.Context, userID int64, state string, ttl time.Duration) error

	// GetUserState returns the persisted state for a user, or StateNormal
	// when absent or expired.
	GetUserState(ctx context.Context, userID int64) (string, error)

	// CheckRateLimit records an admission attempt under key and reports
	// whether it is within limit for the trailing window.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// CleanupRateWindows evicts rate-limit entries older than the retention
	// horizon and drops empty keys.
	CleanupRateWindows(ctx context.Context) error

	// Ping reports backend reachability.
	Ping(ctx context.Context) error
}
