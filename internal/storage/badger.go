package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("storage: database closed")

// DB wraps a Badger database with background GC.
type DB struct {
	db  *badger.DB
	cfg Config
	log logger.Logger

	lastGCTime atomic.Int64
	gcRuns     atomic.Uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

// Open opens (or creates) the database.
func Open(cfg Config, log logger.Logger) (*DB, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("storage: dir is required")
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "storage")

	def := DefaultConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.ValueLogFileSize <= 0 {
		cfg.ValueLogFileSize = def.ValueLogFileSize
	}
	if cfg.NumMemtables <= 0 {
		cfg.NumMemtables = def.NumMemtables
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{log: log}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumMemtables = cfg.NumMemtables
	opts.SyncWrites = cfg.SyncWrites

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	d := &DB{
		db:     bdb,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
	}

	// Value-log GC is not supported in memory mode.
	if !cfg.InMemory {
		d.wg.Add(1)
		go d.gcLoop()
	}

	log.Info("badger opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "gc_interval", cfg.GCInterval)
	return d, nil
}

// GC rewrites value-log files until none exceeds the discard threshold.
// It returns the number of files rewritten.
func (d *DB) GC(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}
	if d.cfg.InMemory {
		return 0, nil
	}

	start := time.Now()
	runs := 0
	for ctx.Err() == nil {
		err := d.db.RunValueLogGC(d.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return runs, fmt.Errorf("storage: value log gc: %w", err)
		}
		runs++
	}

	d.lastGCTime.Store(time.Now().UnixMilli())
	d.gcRuns.Add(uint64(runs))
	d.log.Debug("gc completed", "rewritten", runs, "elapsed", time.Since(start))
	return runs, nil
}

// Stats returns current statistics.
func (d *DB) Stats() Stats {
	lsm, vlog := d.db.Size()
	return Stats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   d.lastGCTime.Load(),
		GCRuns:       d.gcRuns.Load(),
	}
}

// RegisterMetrics registers size and GC collectors on reg. The values are
// read at scrape time.
func (d *DB) RegisterMetrics(reg prometheus.Registerer) error {
	gauge := func(name, help string, fn func(Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chatmesh",
			Subsystem: "badger",
			Name:      name,
			Help:      help,
		}, func() float64 {
			if d.closed.Load() {
				return 0
			}
			return fn(d.Stats())
		})
	}

	collectors := []prometheus.Collector{
		gauge("lsm_size_bytes", "Badger LSM tree size in bytes.", func(s Stats) float64 { return float64(s.LSMSize) }),
		gauge("value_log_size_bytes", "Badger value log size in bytes.", func(s Stats) float64 { return float64(s.ValueLogSize) }),
		gauge("last_gc_timestamp_seconds", "Unix time of the last value log GC.", func(s Stats) float64 { return float64(s.LastGCTime) / 1000 }),
		gauge("gc_rewrites", "Value log files rewritten by GC since start.", func(s Stats) float64 { return float64(s.GCRuns) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("storage: register metrics: %w", err)
		}
	}
	return nil
}

// Close stops the GC loop and closes the database.
func (d *DB) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stopCh)
		d.wg.Wait()
		if cerr := d.db.Close(); cerr != nil {
			err = fmt.Errorf("storage: close badger: %w", cerr)
		}
		d.log.Info("badger closed")
	})
	return err
}

func (d *DB) gcLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := d.GC(ctx); err != nil {
				d.log.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-d.stopCh:
			return
		}
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
