package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging surface every ChatMesh component depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	// Slog exposes the underlying handler chain for libraries that take a
	// *slog.Logger.
	Slog() *slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer

	// Instance is attached to every record as "instance". Several
	// chatmesh-server processes usually write into one log pipeline.
	Instance  string
	AddSource bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var levelNames = []struct {
	name  string
	level slog.Level
}{
	{"debug", slog.LevelDebug},
	{"info", slog.LevelInfo},
	{"warn", slog.LevelWarn},
	{"warning", slog.LevelWarn},
	{"error", slog.LevelError},
}

// level is shared by every logger built with New, so SetLevel reaches
// loggers already handed out to services.
var level = new(slog.LevelVar)

// New builds a logger writing cfg.Format records to cfg.Output.
func New(cfg Config) (Logger, error) {
	lvl, ok := ParseLevel(cfg.Level)
	if !ok && cfg.Level != "" {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level.Set(lvl)
	sl := slog.New(h)
	if cfg.Instance != "" {
		sl = sl.With("instance", cfg.Instance)
	}
	return &slogLogger{sl: sl}, nil
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return &slogLogger{sl: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))}
}

// SetLevel changes the level of every logger created by New. Unknown
// names fall back to info.
func SetLevel(name string) {
	lvl, _ := ParseLevel(name)
	level.Set(lvl)
}

// GetLevel returns the current level name.
func GetLevel() string {
	cur := level.Level()
	for _, ln := range levelNames {
		if ln.level == cur {
			return ln.name
		}
	}
	return "info"
}

// ParseLevel maps a level name to its slog.Level; ok is false for unknown
// names, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, ln := range levelNames {
		if ln.name == name {
			return ln.level, true
		}
	}
	return slog.LevelInfo, false
}

type slogLogger struct {
	sl *slog.Logger
}

func (l *slogLogger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.sl.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.sl.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{sl: l.sl.With(args...)}
}

func (l *slogLogger) Slog() *slog.Logger { return l.sl }

var defaultLogger atomic.Pointer[slogLogger]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*slogLogger))
}

// SetDefault replaces the process-wide logger returned by Default and used
// by FromContext when ctx carries none.
func SetDefault(l Logger) {
	if sl, ok := l.(*slogLogger); ok {
		defaultLogger.Store(sl)
		return
	}
	if l != nil {
		defaultLogger.Store(&slogLogger{sl: l.Slog()})
	}
}

// Default returns the process-wide logger.
func Default() Logger {
	return defaultLogger.Load()
}
