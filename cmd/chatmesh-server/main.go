package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/delivery"
	"github.com/yndnr/chatmesh-go/internal/eventbus"
	"github.com/yndnr/chatmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/chatmesh-go/internal/infra/confloader"
	"github.com/yndnr/chatmesh-go/internal/infra/shutdown"
	"github.com/yndnr/chatmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/chatmesh-go/internal/server/config"
	"github.com/yndnr/chatmesh-go/internal/server/httpserver"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/sharedstore/memory"
	"github.com/yndnr/chatmesh-go/internal/sharedstore/redisstore"
	"github.com/yndnr/chatmesh-go/internal/storage"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		watchConfig = flag.Bool("watch", true, "Reload log level when the configuration file changes")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatmesh-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hostID := service.ResolveHostID(cfg.Server.InstanceID)
	log, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   os.Stdout,
		Instance: hostID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting chatmesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"shared_store", cfg.SharedStore.Driver)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sd := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)
	metrics := metric.NewRegistry()

	// Shared store
	store, err := openSharedStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init shared store: %w", err)
	}
	sd.OnShutdown("shared store", func(context.Context) error { return store.Close() })
	if ms, ok := store.(*memory.Store); ok {
		if err := metrics.GaugeFunc("sharedstore", "memory_dropped_messages_total",
			"Pub/sub messages dropped because a subscriber queue was full.",
			func() float64 { return float64(ms.Dropped()) }); err != nil {
			return fmt.Errorf("register shared store metrics: %w", err)
		}
	}
	if cfg.Server.AdminToken == "" {
		log.Warn("server.admin_token is empty; session and room event routes are disabled")
	}

	// Message storage
	db, err := storage.Open(config.ToStorageConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	sd.OnShutdown("storage", func(context.Context) error { return db.Close() })
	if err := db.RegisterMetrics(metrics.Registerer()); err != nil {
		return fmt.Errorf("register storage metrics: %w", err)
	}

	// Services
	publisher := eventbus.NewPublisher(store, metrics, log)
	limiter := service.NewRateLimiter(store, hostID,
		service.WithRateLimiterMetrics(metrics),
		service.WithRateLimiterLogger(log),
	)
	sessions := service.NewSessionCoordinator(store, config.ToSessionConfig(cfg),
		service.WithSessionPublisher(publisher),
		service.WithSessionMetrics(metrics),
		service.WithSessionLogger(log),
	)
	messages := service.NewMessageService(storage.NewMessageStore(db), limiter, publisher, config.ToMessageLimits(cfg), log)

	// Local delivery
	hub := delivery.NewHub(delivery.WithMetrics(metrics), delivery.WithLogger(log))
	listener := eventbus.NewListener(store, hub, metrics, log)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start event listener: %w", err)
	}
	sd.OnShutdown("event listener", func(context.Context) error { return listener.Close() })

	// HTTP
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Sessions:       sessions,
		Messages:       messages,
		Limiter:        limiter,
		Hub:            hub,
		Store:          store,
		Metrics:        metrics,
		Logger:         log,
		HTTPRateMax:    cfg.RateLimit.HTTP.Max,
		HTTPRateWindow: cfg.RateLimit.HTTP.Window,
		AdminToken:     cfg.Server.AdminToken,
		AdminAllowList: cfg.Server.AdminAllowList,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})
	httpServer := httpserver.New(cfg.Server.HTTPAddr, router)
	if cfg.Server.TLS.Enabled() {
		certs, err := tlsroots.NewKeyPairWatcher(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return fmt.Errorf("load server certificate: %w", err)
		}
		if err := certs.Start(); err != nil {
			log.Warn("certificate reload disabled", "error", err)
		}
		sd.OnShutdown("certificate watcher", func(context.Context) error { return certs.Stop() })
		httpServer.WithTLS(certs.ServerConfig())
	}
	sd.OnShutdown("http server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	if *watchConfig && *configFile != "" {
		w, err := watchLogLevel(*configFile, log)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			sd.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr, "tls", cfg.Server.TLS.Enabled())
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sd.Wait(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers defaults, the optional file and CHATMESH_* variables,
// then validates the result.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSharedStore(ctx context.Context, cfg *config.ServerConfig, log logger.Logger) (sharedstore.Store, error) {
	switch cfg.SharedStore.Driver {
	case config.DriverMemory:
		log.Warn("using the in-process shared store; sessions and events are not shared between instances")
		return memory.New(0, memory.WithLogger(log)), nil
	default:
		rc, err := config.ToRedisConfig(cfg)
		if err != nil {
			return nil, err
		}
		return redisstore.New(ctx, rc, log)
	}
}

// watchLogLevel reloads the file on change and applies a new log.level.
// Other settings need a restart.
func watchLogLevel(path string, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		reloadLogLevel(path, log)
	})
	w.StartAsync()
	return w, nil
}

func reloadLogLevel(path string, log logger.Logger) {
	cfg, err := loadConfig(path)
	if err != nil {
		log.Warn("config reload rejected", "path", path, "error", err)
		return
	}
	if cfg.Log.Level == logger.GetLevel() {
		return
	}
	logger.SetLevel(cfg.Log.Level)
	log.Info("log level changed", "level", cfg.Log.Level)
}
