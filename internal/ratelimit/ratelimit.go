// Package ratelimit gates inbound events with per-(action, user) sliding
// windows backed by the keyed store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AtividadeNgk/MaryCall/internal/config"
	"github.com/AtividadeNgk/MaryCall/internal/store"
)

// Action names an admission-controlled inbound event class.
type Action string

const (
	// ActionStart covers /start commands.
	ActionStart Action = "start"
	// ActionMessages covers plain text messages.
	ActionMessages Action = "messages"
	// ActionWebhook covers call-ended webhook deliveries.
	ActionWebhook Action = "webhook"
)

// Limiter applies the configured admission policy for each action. Backend
// errors fail open: the request is admitted and a warning logged.
type Limiter struct {
	store  store.Store
	limits config.RateLimits
}

// New creates a Limiter over the given store and policy table.
func New(st store.Store, limits config.RateLimits) *Limiter {
	return &Limiter{store: st, limits: limits}
}

// Allow reports whether the event is admitted for the user.
func (l *Limiter) Allow(ctx context.Context, action Action, userID int64) bool {
	policy, ok := l.policy(action)
	if !ok {
		slog.Warn("Limiter unknown action, admitting", "action", action, "userID", userID)
		return true
	}

	key := fmt.Sprintf("rate:%s:%d", action, userID)
	allowed, err := l.store.CheckRateLimit(ctx, key, policy.Limit, policy.Window)
	if err != nil {
		slog.Warn("Limiter backend error, admitting", "error", err, "action", action, "userID", userID)
		return true
	}
	if !allowed {
		slog.Warn("Limiter rejected event", "action", action, "userID", userID, "limit", policy.Limit, "window", policy.Window)
	}
	return allowed
}

func (l *Limiter) policy(action Action) (config.RateLimitPolicy, bool) {
	switch action {
	case ActionStart:
		return l.limits.Start, true
	case ActionMessages:
		return l.limits.Messages, true
	case ActionWebhook:
		return l.limits.Webhook, true
	default:
		return config.RateLimitPolicy{}, false
	}
}
