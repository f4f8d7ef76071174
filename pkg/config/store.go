package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/groutine"
)

// DefaultWatchInterval is how often Watch checks the file for changes.
const DefaultWatchInterval = 2 * time.Second

// Store holds the last good configuration loaded from a file and serves the user preferences
// to the link supervisor and the action pipeline. All methods are safe for concurrent use.
type Store struct {
	path   string
	logger *logrus.Logger

	mu      sync.RWMutex
	cfg     *Config
	modTime time.Time
	size    int64
}

// NewStore loads the file. The initial load must succeed.
// A nil logger is replaced by one configured from the file.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	s := &Store{path: path, logger: logger, cfg: cfg}
	s.modTime, s.size = s.stat()
	return s, nil
}

// NewStaticStore serves cfg without a backing file. Reload is a no-op.
func NewStaticStore(cfg *Config, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{cfg: cfg, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Enabled
}

func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Mode
}

// Reload re-reads the file. On failure the last good values stay in effect and the error is
// returned. changed reports whether the preferences the daemon reacts to differ.
func (s *Store) Reload() (changed bool, err error) {
	if s.path == "" {
		return false, nil
	}
	modTime, size := s.stat()
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Failed to reload configuration, keeping last good values")
		return false, err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.modTime, s.size = modTime, size
	s.mu.Unlock()

	changed = old.Enabled != cfg.Enabled || old.Mode != cfg.Mode
	s.logger.WithFields(logrus.Fields{
		"path":    s.path,
		"enabled": cfg.Enabled,
		"mode":    cfg.Mode,
		"changed": changed,
	}).Info("Configuration reloaded")
	return changed, nil
}

// Watch polls the file and reloads it when its size or modification time changes.
// onChange runs after every successful reload that changed a preference.
func (s *Store) Watch(ctx context.Context, interval time.Duration, onChange func(Config)) {
	if s.path == "" {
		return
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	groutine.GoSafe(ctx, "penlink-config-watch", s.logger, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.modified() {
					continue
				}
				changed, err := s.Reload()
				if err != nil {
					// Remember the broken file so it is not re-read every tick.
					s.mu.Lock()
					s.modTime, s.size = s.stat()
					s.mu.Unlock()
					continue
				}
				if changed && onChange != nil {
					onChange(s.Config())
				}
			}
		}
	}, nil)
}

func (s *Store) modified() bool {
	modTime, size := s.stat()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !modTime.Equal(s.modTime) || size != s.size
}

func (s *Store) stat() (time.Time, int64) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, -1
	}
	return fi.ModTime(), fi.Size()
}
