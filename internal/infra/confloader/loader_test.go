package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTPAddr string `koanf:"http_addr"`
	} `koanf:"server"`
	SharedStore struct {
		Driver string `koanf:"driver"`
		Redis  struct {
			Addr string `koanf:"addr"`
			DB   int    `koanf:"db"`
		} `koanf:"redis"`
	} `koanf:"shared_store"`
	Session struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"session"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatmesh.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoader_FileEnvOverridePriority(t *testing.T) {
	path := writeFile(t, `
server:
  http_addr: ":8080"
shared_store:
  driver: redis
  redis:
    addr: "redis:6379"
    db: 2
session:
  ttl: 45m
`)
	t.Setenv("CHATMESH_SHARED_STORE__REDIS__ADDR", "10.0.0.5:6379")

	var cfg testConfig
	cfg.SharedStore.Driver = "memory"
	l := NewLoader(WithConfigFile(path), WithOverrides(map[string]any{"server.http_addr": ":9090"}))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("http_addr = %q, override should win", cfg.Server.HTTPAddr)
	}
	if cfg.SharedStore.Redis.Addr != "10.0.0.5:6379" {
		t.Errorf("redis.addr = %q, env should beat the file", cfg.SharedStore.Redis.Addr)
	}
	if cfg.SharedStore.Driver != "redis" || cfg.SharedStore.Redis.DB != 2 {
		t.Errorf("shared_store = %+v", cfg.SharedStore)
	}
	if cfg.Session.TTL != 45*time.Minute {
		t.Errorf("session.ttl = %v", cfg.Session.TTL)
	}
}

func TestLoader_DefaultsSurvive(t *testing.T) {
	var cfg testConfig
	cfg.Server.HTTPAddr = ":8080"
	cfg.Session.TTL = 30 * time.Minute

	if err := NewLoader(WithEnvPrefix("CHATMESH_TEST_EMPTY_")).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" || cfg.Session.TTL != 30*time.Minute {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := NewLoader(WithConfigFile("/nonexistent/chatmesh.yaml")).Load(&cfg); err == nil {
		t.Error("Load() with missing file should fail")
	}
}

func TestLoader_EnvKey(t *testing.T) {
	l := NewLoader()
	tests := map[string]string{
		"CHATMESH_LOG__LEVEL":               "log.level",
		"CHATMESH_SESSION__LOCK_WAIT":       "session.lock_wait",
		"CHATMESH_SHARED_STORE__REDIS__DB":  "shared_store.redis.db",
		"CHATMESH_RATE_LIMIT__MESSAGE__MAX": "rate_limit.message.max",
	}
	for in, want := range tests {
		if got := l.envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoader_GetString(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\n")
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if got := l.GetString("log.level"); got != "debug" {
		t.Errorf("GetString(log.level) = %q", got)
	}
}
