package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BOT_TOKEN", "ADMIN_CHANNEL_ID", "CALL_LINK", "REDIS_URL", "API_ADDR", "ASSETS_DIR", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RedisURL != DefaultRedisURL {
		t.Errorf("RedisURL = %q, want %q", cfg.RedisURL, DefaultRedisURL)
	}
	if cfg.APIAddr != DefaultAPIAddr {
		t.Errorf("APIAddr = %q, want %q", cfg.APIAddr, DefaultAPIAddr)
	}
	if cfg.StateTTL != time.Hour {
		t.Errorf("StateTTL = %v, want 1h", cfg.StateTTL)
	}
	if cfg.RateLimits.Start.Limit != 3 || cfg.RateLimits.Start.Window != 5*time.Minute {
		t.Errorf("Start policy = %+v, want 3 per 5m", cfg.RateLimits.Start)
	}
	if cfg.RateLimits.Messages.Limit != 10 || cfg.RateLimits.Messages.Window != time.Minute {
		t.Errorf("Messages policy = %+v, want 10 per 1m", cfg.RateLimits.Messages)
	}
	if cfg.RateLimits.Webhook.Limit != 5 || cfg.RateLimits.Webhook.Window != time.Hour {
		t.Errorf("Webhook policy = %+v, want 5 per 1h", cfg.RateLimits.Webhook)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_CHANNEL_ID", "-100987")
	t.Setenv("REDIS_URL", "redis://redis.internal:6379/2")
	t.Setenv("API_ADDR", ":8080")

	cfg := Load()
	if cfg.BotToken != "123:abc" {
		t.Errorf("BotToken = %q", cfg.BotToken)
	}
	if cfg.AdminChannelID != -100987 {
		t.Errorf("AdminChannelID = %d, want -100987", cfg.AdminChannelID)
	}
	if cfg.RedisURL != "redis://redis.internal:6379/2" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.APIAddr != ":8080" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
}

func TestLoadInvalidAdminChannel(t *testing.T) {
	t.Setenv("ADMIN_CHANNEL_ID", "not-a-number")

	cfg := Load()
	if cfg.AdminChannelID != 0 {
		t.Errorf("AdminChannelID = %d, want 0 for invalid value", cfg.AdminChannelID)
	}
}
