package storage

import "time"

// Config configures the Badger database.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Data is lost on Close.
	InMemory bool

	// GCInterval is the interval between value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio a value-log file must exceed to be
	// rewritten (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value-log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		ValueLogFileSize: 256 << 20,
		NumMemtables:     2,
	}
}

// Stats contains database statistics.
type Stats struct {
	// LSMSize is the LSM tree size in bytes.
	LSMSize uint64
	// ValueLogSize is the value-log size in bytes.
	ValueLogSize uint64
	// LastGCTime is the last GC run (Unix milliseconds), zero if none.
	LastGCTime int64
	// GCRuns counts value-log files rewritten by GC.
	GCRuns uint64
}
