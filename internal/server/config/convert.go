package config

import (
	"fmt"

	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/chatmesh-go/internal/sharedstore/redisstore"
	"github.com/yndnr/chatmesh-go/internal/storage"
)

// ToRedisConfig maps the shared store section onto the Redis client config.
// It fails when the TLS files cannot be loaded.
func ToRedisConfig(cfg *ServerConfig) (redisstore.Config, error) {
	r := cfg.SharedStore.Redis
	out := redisstore.Config{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		KeyPrefix:    r.KeyPrefix,
	}
	if r.TLS.Enabled {
		tlsCfg, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
			CAFile:     r.TLS.CAFile,
			CertFile:   r.TLS.CertFile,
			KeyFile:    r.TLS.KeyFile,
			ServerName: r.TLS.ServerName,
		})
		if err != nil {
			return redisstore.Config{}, fmt.Errorf("shared_store.redis.tls: %w", err)
		}
		out.TLS = tlsCfg
	}
	return out, nil
}

// ToSessionConfig maps the session section onto the coordinator config.
func ToSessionConfig(cfg *ServerConfig) service.SessionConfig {
	s := cfg.Session
	return service.SessionConfig{
		TTL:             s.TTL,
		IdleTimeout:     s.IdleTimeout,
		RefreshInterval: s.RefreshInterval,
		LockWait:        s.LockWait,
		LockLease:       s.LockLease,
	}
}

// ToMessageLimits maps the message rate limit onto the service limits.
func ToMessageLimits(cfg *ServerConfig) service.MessageLimits {
	return service.MessageLimits{
		MaxRequests: cfg.RateLimit.Message.Max,
		Window:      cfg.RateLimit.Message.Window,
	}
}

// ToStorageConfig maps the storage section onto the Badger config.
func ToStorageConfig(cfg *ServerConfig) storage.Config {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.InMemory = cfg.Storage.InMemory
	sc.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Storage.GCInterval > 0 {
		sc.GCInterval = cfg.Storage.GCInterval
	}
	return sc
}
