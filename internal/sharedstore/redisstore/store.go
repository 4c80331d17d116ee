package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// KeyPrefix is prepended to every key and channel name.
	KeyPrefix string
	// ChannelSize is the per-subscription buffer in the client.
	ChannelSize int
	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

// Store is a Redis-backed sharedstore.Store.
type Store struct {
	client      redis.UniversalClient
	prefix      string
	channelSize int
	log         logger.Logger
}

var _ sharedstore.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		TLSConfig:    cfg.TLS,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client, cfg.KeyPrefix, cfg.ChannelSize, log), nil
}

// NewFromClient wraps an existing client. The Store takes ownership and
// closes it on Close.
func NewFromClient(client redis.UniversalClient, prefix string, channelSize int, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	if channelSize <= 0 {
		channelSize = 256
	}
	return &Store{
		client:      client,
		prefix:      prefix,
		channelSize: channelSize,
		log:         log.With("component", "sharedstore.redis"),
	}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get implements sharedstore.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sharedstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set implements sharedstore.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements sharedstore.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete implements sharedstore.Store.
func (s *Store) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndSwap implements sharedstore.Store.
func (s *Store) CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	n, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(key)}, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap %s: %w", key, err)
	}
	return n == 1, nil
}

// Ping implements sharedstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client and every subscription opened through it.
func (s *Store) Close() error {
	return s.client.Close()
}
