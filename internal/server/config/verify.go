package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// Verify validates the configuration. It creates the storage directory
// when it does not exist.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifySharedStore(&cfg.SharedStore); err != nil {
		return err
	}
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyLimit("rate_limit.message", cfg.RateLimit.Message); err != nil {
		return err
	}
	if err := verifyLimit("rate_limit.http", cfg.RateLimit.HTTP); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if _, ok := logger.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format %q must be json or text", cfg.Log.Format)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("server.http_addr %q: %w", cfg.HTTPAddr, err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("server.tls.cert_file and key_file must be set together")
	}
	for _, entry := range cfg.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.admin_allow_list: %w", err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.admin_allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifySharedStore(cfg *SharedStoreSection) error {
	switch cfg.Driver {
	case DriverRedis:
		if cfg.Redis.Addr == "" {
			return errors.New("shared_store.redis.addr is required")
		}
		if cfg.Redis.DB < 0 {
			return errors.New("shared_store.redis.db must not be negative")
		}
		if t := cfg.Redis.TLS; (t.CertFile == "") != (t.KeyFile == "") {
			return errors.New("shared_store.redis.tls.cert_file and key_file must be set together")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("shared_store.driver %q must be redis or memory", cfg.Driver)
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if cfg.IdleTimeout < 0 || cfg.IdleTimeout > cfg.TTL {
		return errors.New("session.idle_timeout must be between 0 and session.ttl")
	}
	if cfg.RefreshInterval <= 0 || cfg.RefreshInterval >= cfg.TTL {
		return errors.New("session.refresh_interval must be positive and shorter than session.ttl")
	}
	if cfg.LockWait <= 0 || cfg.LockLease <= 0 {
		return errors.New("session.lock_wait and session.lock_lease must be positive")
	}
	return nil
}

func verifyLimit(name string, cfg LimitConfig) error {
	if cfg.Max < 0 {
		return fmt.Errorf("%s.max must not be negative", name)
	}
	if cfg.Max > 0 && cfg.Window <= 0 {
		return fmt.Errorf("%s.window must be positive", name)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.InMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	return nil
}
