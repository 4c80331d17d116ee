package config

import "time"

// ServerConfig is the root configuration for chatmesh-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	SharedStore SharedStoreSection `koanf:"shared_store"`
	Session     SessionSection     `koanf:"session"`
	RateLimit   RateLimitSection   `koanf:"rate_limit"`
	Storage     StorageSection     `koanf:"storage"`
	Log         LogSection         `koanf:"log"`
}

// ServerSection configures the HTTP endpoint and instance identity.
type ServerSection struct {
	HTTPAddr string `koanf:"http_addr"`
	// InstanceID names this instance in rate limiter keys. Empty means
	// $HOSTNAME or the OS host name.
	InstanceID      string        `koanf:"instance_id"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// AdminToken guards the session and room event endpoints. Empty
	// disables them.
	AdminToken string `koanf:"admin_token"`
	// AdminAllowList restricts the admin routes to these IPs or CIDR
	// blocks. Empty allows any address.
	AdminAllowList []string `koanf:"admin_allow_list"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`
	// TLS serves HTTPS when both files are set. The pair is reloaded when
	// either file changes.
	TLS ServerTLS `koanf:"tls"`
}

// ServerTLS names the HTTPS key pair.
type ServerTLS struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// Enabled reports whether HTTPS is configured.
func (t ServerTLS) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// SharedStoreSection selects and configures the coordination store.
type SharedStoreSection struct {
	// Driver is "redis" or "memory". The memory store does not coordinate
	// between processes.
	Driver string      `koanf:"driver"`
	Redis  RedisConfig `koanf:"redis"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	KeyPrefix    string        `koanf:"key_prefix"`
	TLS          RedisTLS      `koanf:"tls"`
}

// RedisTLS configures TLS to Redis. CAFile adds private roots to the
// system pool; CertFile and KeyFile present a client certificate.
type RedisTLS struct {
	Enabled    bool   `koanf:"enabled"`
	CAFile     string `koanf:"ca_file"`
	CertFile   string `koanf:"cert_file"`
	KeyFile    string `koanf:"key_file"`
	ServerName string `koanf:"server_name"`
}

// SessionSection configures the session coordinator.
type SessionSection struct {
	TTL             time.Duration `koanf:"ttl"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	LockWait        time.Duration `koanf:"lock_wait"`
	LockLease       time.Duration `koanf:"lock_lease"`
}

// RateLimitSection configures the per-user message limit and the per-IP
// HTTP limit.
type RateLimitSection struct {
	Message LimitConfig `koanf:"message"`
	HTTP    LimitConfig `koanf:"http"`
}

// LimitConfig is a request budget per window. Max 0 disables the limit.
type LimitConfig struct {
	Max    int           `koanf:"max"`
	Window time.Duration `koanf:"window"`
}

// StorageSection configures the message database.
type StorageSection struct {
	DataDir    string        `koanf:"data_dir"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
