package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/errors"
)

const reloadDebounce = 100 * time.Millisecond

// Store serves the current configuration snapshot and optionally reloads it
// when the backing file changes. It implements downgrade.Flags and the
// per-resource render switches used by the player.
type Store struct {
	path    string
	environ map[string]string
	cur     atomic.Pointer[Config]
	logger  *slog.Logger

	mu       sync.Mutex
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	closeCh chan struct{}
	done    chan struct{}
	closed  bool
	once    sync.Once
}

var _ downgrade.Flags = (*Store)(nil)

// NewStore serves a fixed configuration. A nil cfg means Default().
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{logger: slog.Default().With(slog.String("component", "config"))}
	s.cur.Store(cfg)
	return s
}

// Open loads path and returns a store that can reload it.
func Open(path string) (*Store, error) {
	return OpenWith(path, nil)
}

// OpenWith is Open with an explicit environment.
func OpenWith(path string, environ map[string]string) (*Store, error) {
	cfg, err := LoadWith(path, environ)
	if err != nil {
		return nil, err
	}
	s := NewStore(cfg)
	s.path = path
	s.environ = environ
	return s, nil
}

// Current returns the active snapshot. Callers must not modify it.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// OnChange registers fn to run after every successful reload.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Reload re-reads the file. On failure the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := LoadWith(s.path, s.environ)
	if err != nil {
		errors.Report(&errors.Error{Op: "config.Reload", Kind: errors.KindConfig, Source: s.path, Err: err})
		return err
	}
	s.cur.Store(cfg)
	s.logger.Debug("configuration reloaded", slog.String("path", s.path))

	s.mu.Lock()
	handlers := append([]func(*Config){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range handlers {
		errors.Guard("config.OnChange", func() { fn(cfg) })
	}
	return nil
}

// Watch reloads the configuration whenever its file is written, created or
// renamed. Bursts of events within 100ms collapse into one reload.
// Calling Watch again, or after Close, does nothing.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil || s.closed {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	s.closeCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(w, s.closeCh, s.done)
	return nil
}

func (s *Store) run(w *fsnotify.Watcher, closeCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	target := filepath.Clean(s.path)
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, func() { _ = s.Reload() })
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", slog.Any("error", err))
		case <-closeCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		w, closeCh, done := s.watcher, s.closeCh, s.done
		s.mu.Unlock()
		if w == nil {
			return
		}
		close(closeCh)
		err = w.Close()
		<-done
	})
	return err
}

func (s *Store) ForceDowngrade() bool {
	return s.Current().Downgrade.Force
}

func (s *Store) ForceDowngradeByResourceID(resourceID string) bool {
	return resourceID != "" && contains(s.Current().Downgrade.ResourceIDs, resourceID)
}

func (s *Store) ForceDowngradeByScene(sceneCode string) bool {
	return sceneCode != "" && contains(s.Current().Downgrade.Scenes, sceneCode)
}

// PolicySettings returns the remote policy part of the current snapshot.
func (s *Store) PolicySettings() downgrade.PolicySettings {
	return s.Current().PolicySettings()
}

// RenderLevel maps a device tier to an engine render level.
func (s *Store) RenderLevel(level downgrade.DeviceLevel) int {
	return s.Current().RenderLevel(level)
}

// SurfaceScale reports whether surface scaling is enabled for resourceID.
func (s *Store) SurfaceScale(resourceID string) bool {
	return contains(s.Current().Render.SurfaceScale, resourceID)
}

// VideoHardDecode reports whether video for resourceID decodes in hardware.
func (s *Store) VideoHardDecode(resourceID string) bool {
	return contains(s.Current().Render.VideoHardDecode, resourceID)
}

// FixTick reports the default fixed-tick setting.
func (s *Store) FixTick() bool {
	return s.Current().Render.FixTick
}
