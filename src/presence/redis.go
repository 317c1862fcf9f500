package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds connection settings for the Redis presence store.
type Config struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Key prefix, default "harbor:presence:"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "harbor:presence:",
	}
}

// RedisTracker keeps online flags and last-seen timestamps in Redis.
type RedisTracker struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisTracker creates a Redis-backed presence tracker.
func NewRedisTracker(cfg Config, logger zerolog.Logger) *RedisTracker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisTracker{
		client: client,
		prefix: cfg.Prefix,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// Start verifies the Redis connection.
func (t *RedisTracker) Start(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	t.logger.Info().Msg("presence store connected")
	return nil
}

// Stop closes the Redis connection.
func (t *RedisTracker) Stop() error {
	return t.client.Close()
}

func (t *RedisTracker) onlineKey(userID int64) string {
	return t.prefix + "online:" + strconv.FormatInt(userID, 10)
}

func (t *RedisTracker) lastSeenKey(userID int64) string {
	return t.prefix + "last_seen:" + strconv.FormatInt(userID, 10)
}

// MarkOnline flags the user as online.
func (t *RedisTracker) MarkOnline(ctx context.Context, userID int64) error {
	if err := t.client.Set(ctx, t.onlineKey(userID), "1", 0).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

// MarkOffline clears the online flag and stamps the last-seen time.
func (t *RedisTracker) MarkOffline(ctx context.Context, userID int64) error {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, t.onlineKey(userID))
	pipe.Set(ctx, t.lastSeenKey(userID), now, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// Status reports the user's online flag and last-seen time.
func (t *RedisTracker) Status(ctx context.Context, userID int64) (bool, time.Time, error) {
	online, err := t.client.Exists(ctx, t.onlineKey(userID)).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("online lookup: %w", err)
	}

	raw, err := t.client.Get(ctx, t.lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return online > 0, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("last-seen lookup: %w", err)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("parse last-seen: %w", err)
	}
	return online > 0, time.UnixMilli(millis).UTC(), nil
}
