package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// rateRetention is how far back rate-limit entries are kept by the periodic
// cleanup job, independent of each key's own window.
const rateRetention = time.Hour

// RedisStore implements Store on a Redis backend.
type RedisStore struct {
	client *redis.Client
	clock  clockwork.Clock
}

// NewRedisStore connects to Redis using the given URL (redis://...).
func NewRedisStore(url string, clock clockwork.Clock) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	slog.Debug("RedisStore created", "addr", opts.Addr, "db", opts.DB)
	return &RedisStore{client: client, clock: clock}, nil
}

func stateKey(userID int64) string {
	return "state:" + strconv.FormatInt(userID, 10)
}

// SetUserState persists the funnel state with a TTL.
func (s *RedisStore) SetUserState(ctx context.Context, userID int64, state string, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, stateKey(userID), state, ttl).Err(); err != nil {
		slog.Error("RedisStore SetUserState error", "error", err, "userID", userID, "state", state)
		return fmt.Errorf("redis set state: %w", err)
	}
	slog.Debug("RedisStore SetUserState succeeded", "userID", userID, "state", state, "ttl", ttl)
	return nil
}

// GetUserState returns the persisted state or StateNormal when the key is
// absent or expired.
func (s *RedisStore) GetUserState(ctx context.Context, userID int64) (string, error) {
	state, err := s.client.Get(ctx, stateKey(userID)).Result()
	if err == redis.Nil {
		return StateNormal, nil
	}
	if err != nil {
		slog.Error("RedisStore GetUserState error", "error", err, "userID", userID)
		return StateNormal, fmt.Errorf("redis get state: %w", err)
	}
	return state, nil
}

// CheckRateLimit implements sliding-window admission on a sorted set. The
// eviction, insertion, and count run in a single MULTI/EXEC pipeline so two
// concurrent callers cannot both observe the pre-insert count.
func (s *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := s.clock.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("RedisStore CheckRateLimit error", "error", err, "key", key)
		return false, fmt.Errorf("redis rate limit: %w", err)
	}

	count := card.Val()
	if count > int64(limit) {
		slog.Warn("RedisStore rate limit exceeded", "key", key, "count", count, "limit", limit)
		return false, nil
	}
	return true, nil
}

// CleanupRateWindows trims old entries from every rate:* key and deletes
// keys that end up empty.
func (s *RedisStore) CleanupRateWindows(ctx context.Context) error {
	horizon := strconv.FormatInt(s.clock.Now().Add(-rateRetention).UnixNano(), 10)
	iter := s.client.Scan(ctx, 0, "rate:*", 0).Iterator()

	var cleaned int
	for iter.Next(ctx) {
		key := iter.Val()
		if err := s.client.ZRemRangeByScore(ctx, key, "0", horizon).Err(); err != nil {
			slog.Error("RedisStore cleanup trim error", "error", err, "key", key)
			continue
		}
		n, err := s.client.ZCard(ctx, key).Result()
		if err == nil && n == 0 {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				slog.Error("RedisStore cleanup delete error", "error", err, "key", key)
			}
		}
		cleaned++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis rate cleanup scan: %w", err)
	}

	slog.Info("RedisStore rate window cleanup finished", "keys", cleaned)
	return nil
}

// Ping reports Redis reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
