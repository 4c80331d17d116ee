package tlsroots

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// KeyPairWatcher serves a certificate and reloads it when the cert or key
// file changes, so certificates can be rotated without a restart.
type KeyPairWatcher struct {
	certFile string
	keyFile  string
	log      logger.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	reloadMu   sync.Mutex
	lastReload time.Time
}

// WatcherOption configures a KeyPairWatcher.
type WatcherOption func(*KeyPairWatcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *KeyPairWatcher) { w.log = l }
}

// WithDebounce sets the minimum time between reloads.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *KeyPairWatcher) { w.debounce = d }
}

// NewKeyPairWatcher loads the key pair. Watching starts with Start.
func NewKeyPairWatcher(certFile, keyFile string, opts ...WatcherOption) (*KeyPairWatcher, error) {
	w := &KeyPairWatcher{
		certFile: certFile,
		keyFile:  keyFile,
		log:      logger.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "tls")

	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// Start watches the directories holding the files. Directories rather
// than files are watched so that rename-based replacement is seen.
func (w *KeyPairWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, dir := range uniqueDirs(w.certFile, w.keyFile) {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.watcher = fw
	go w.loop()
	w.log.Info("certificate watcher started", "cert_file", w.certFile)
	return nil
}

func (w *KeyPairWatcher) loop() {
	certBase, keyBase := filepath.Base(w.certFile), filepath.Base(w.keyFile)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(ev.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := w.debouncedReload(); err != nil {
				// The previous certificate stays in use.
				w.log.Error("certificate reload failed", "cert_file", w.certFile, "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("certificate watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Stop stops watching. It is idempotent.
func (w *KeyPairWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *KeyPairWatcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

// ServerConfig returns a server tls.Config backed by the watcher.
func (w *KeyPairWatcher) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (w *KeyPairWatcher) debouncedReload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(w.lastReload) < w.debounce {
		return nil
	}
	w.lastReload = now

	// Writers often truncate then write; give them a moment.
	time.Sleep(100 * time.Millisecond)
	return w.reload()
}

func (w *KeyPairWatcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()
	w.log.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}

func uniqueDirs(paths ...string) []string {
	seen := make(map[string]struct{}, len(paths))
	var dirs []string
	for _, p := range paths {
		d := filepath.Dir(p)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	return dirs
}
