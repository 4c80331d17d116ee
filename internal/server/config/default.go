package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultSharedStoreDriver = DriverRedis
	DefaultRedisAddr         = "127.0.0.1:6379"
	DefaultRedisPoolSize     = 20
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisIOTimeout    = 3 * time.Second

	DefaultSessionTTL             = 30 * time.Minute
	DefaultSessionRefreshInterval = 60 * time.Second
	DefaultSessionLockWait        = 5 * time.Second
	DefaultSessionLockLease       = 10 * time.Second

	DefaultMessageRateMax    = 100
	DefaultMessageRateWindow = time.Minute
	DefaultHTTPRateMax       = 600
	DefaultHTTPRateWindow    = time.Minute

	DefaultDataDir    = "/var/lib/chatmesh/data"
	DefaultGCInterval = 10 * time.Minute
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

// Shared store drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTPAddr:        DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		SharedStore: SharedStoreSection{
			Driver: DefaultSharedStoreDriver,
			Redis: RedisConfig{
				Addr:         DefaultRedisAddr,
				PoolSize:     DefaultRedisPoolSize,
				DialTimeout:  DefaultRedisDialTimeout,
				ReadTimeout:  DefaultRedisIOTimeout,
				WriteTimeout: DefaultRedisIOTimeout,
			},
		},
		Session: SessionSection{
			TTL:             DefaultSessionTTL,
			RefreshInterval: DefaultSessionRefreshInterval,
			LockWait:        DefaultSessionLockWait,
			LockLease:       DefaultSessionLockLease,
		},
		RateLimit: RateLimitSection{
			Message: LimitConfig{Max: DefaultMessageRateMax, Window: DefaultMessageRateWindow},
			HTTP:    LimitConfig{Max: DefaultHTTPRateMax, Window: DefaultHTTPRateWindow},
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
