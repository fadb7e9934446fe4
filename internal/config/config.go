// Package config loads MaryCall configuration from the environment.
//
// Values come from environment variables (optionally via a .env file loaded
// by the caller) and carry defaults matching the production deployment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Default configuration constants
const (
	// DefaultRedisURL is the Redis backend used for state and rate limiting.
	DefaultRedisURL = "redis://localhost:6379/0"
	// DefaultAPIAddr is the listen address for the webhook/admin HTTP server.
	DefaultAPIAddr = ":5000"
	// DefaultAssetsDir holds the audio/ and video/ media directories.
	DefaultAssetsDir = "."
	// DefaultStateTTL is how long a persisted funnel state survives without
	// activity before expiring back to normal.
	DefaultStateTTL = time.Hour
	// DefaultSessionIdleTimeout is how long an in-process session record is
	// kept after its last activity.
	DefaultSessionIdleTimeout = 2 * time.Hour
)

// RateLimitPolicy bounds admissions for one action within a sliding window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimits holds the per-action admission policies.
type RateLimits struct {
	Start    RateLimitPolicy
	Messages RateLimitPolicy
	Webhook  RateLimitPolicy
}

// DefaultRateLimits returns the production admission policies.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Start:    RateLimitPolicy{Limit: 3, Window: 5 * time.Minute},
		Messages: RateLimitPolicy{Limit: 10, Window: time.Minute},
		Webhook:  RateLimitPolicy{Limit: 5, Window: time.Hour},
	}
}

// Config holds environment configuration for the service.
type Config struct {
	BotToken           string
	AdminChannelID     int64
	CallLinkBase       string
	RedisURL           string
	APIAddr            string
	AssetsDir          string
	LogLevel           string
	StateTTL           time.Duration
	SessionIdleTimeout time.Duration
	RateLimits         RateLimits
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	cfg := Config{
		BotToken:           os.Getenv("BOT_TOKEN"),
		CallLinkBase:       os.Getenv("CALL_LINK"),
		RedisURL:           os.Getenv("REDIS_URL"),
		APIAddr:            os.Getenv("API_ADDR"),
		AssetsDir:          os.Getenv("ASSETS_DIR"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		StateTTL:           DefaultStateTTL,
		SessionIdleTimeout: DefaultSessionIdleTimeout,
		RateLimits:         DefaultRateLimits(),
	}

	if raw := os.Getenv("ADMIN_CHANNEL_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("config: invalid ADMIN_CHANNEL_ID, proof review disabled", "value", raw, "error", err)
		} else {
			cfg.AdminChannelID = id
		}
	}

	if cfg.RedisURL == "" {
		cfg.RedisURL = DefaultRedisURL
		slog.Debug("config: no REDIS_URL set, using default", "redis_url", cfg.RedisURL)
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = DefaultAPIAddr
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = DefaultAssetsDir
	}
	if cfg.CallLinkBase == "" {
		cfg.CallLinkBase = "https://video-call-peach-five.vercel.app/"
	}

	slog.Debug("config loaded",
		"bot_token_set", cfg.BotToken != "",
		"admin_channel_set", cfg.AdminChannelID != 0,
		"redis_url_set", cfg.RedisURL != "",
		"api_addr", cfg.APIAddr,
		"assets_dir", cfg.AssetsDir)

	return cfg
}
