package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

type limiter struct {
	s         *Store
	configKey string
	logKey    string
}

// RateLimiter implements sharedstore.Store. Both keys share a hash tag so
// the scripts work on Redis Cluster.
func (s *Store) RateLimiter(key string) sharedstore.Limiter {
	base := s.key("rl:{" + key + "}")
	return &limiter{s: s, configKey: base + ":config", logKey: base + ":log"}
}

func (l *limiter) Configure(ctx context.Context, rate int, window time.Duration) error {
	_, err := l.s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, l.configKey, "rate", rate)
		pipe.HSetNX(ctx, l.configKey, "interval", window.Milliseconds())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis limiter configure: %w", err)
	}
	return nil
}

func (l *limiter) TryAcquire(ctx context.Context, permits int) (bool, error) {
	keys := []string{l.configKey, l.logKey}
	n, err := limiterAcquireScript.Run(ctx, l.s.client, keys, permits, ulid.Make().String()).Int()
	if err != nil {
		return false, fmt.Errorf("redis limiter acquire: %w", err)
	}
	if n < 0 {
		return false, sharedstore.ErrNotConfigured
	}
	return n == 1, nil
}

func (l *limiter) Available(ctx context.Context) (int, error) {
	n, err := limiterAvailableScript.Run(ctx, l.s.client, []string{l.configKey, l.logKey}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis limiter available: %w", err)
	}
	if n < 0 {
		return 0, sharedstore.ErrNotConfigured
	}
	return n, nil
}

func (l *limiter) Expire(ctx context.Context, ttl time.Duration) error {
	_, err := l.s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.PExpire(ctx, l.configKey, ttl)
		pipe.PExpire(ctx, l.logKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis limiter expire: %w", err)
	}
	return nil
}
