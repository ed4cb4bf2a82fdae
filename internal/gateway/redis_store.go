package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rategate/internal/config"
)

const defaultRedisTimeout = 2 * time.Second

// RedisStore counts request windows in Redis so the limit is shared across
// gateway replicas. Each window is seeded with SET NX EX and consumed with
// DECR, mirroring a fixed-window counter with automatic expiry.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisStore opens a pooled client for the configured Redis instance.
func NewRedisStore(cfg config.RedisSettings) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   2,
	})
	return &RedisStore{client: client, timeout: timeout}, nil
}

// Take seeds the window when absent and decrements it, returning the
// remaining allowance. The commands run sequentially so a counter is never
// decremented without an expiry set on it.
func (s *RedisStore) Take(ctx context.Context, key string, tokens int, window time.Duration) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.SetNX(opCtx, key, tokens, window).Err(); err != nil {
		return 0, fmt.Errorf("seed window %s: %w", key, err)
	}
	remaining, err := s.client.Decr(opCtx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("consume window %s: %w", key, err)
	}
	return remaining, nil
}

// Ping verifies connectivity for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(opCtx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
