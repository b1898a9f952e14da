package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is invoked after a watched config file changes on disk.
type ChangeHandler func(filename string, features *Features)

// Manager watches the config directory and hot-reloads the features file,
// notifying registered handlers. Editors often write via rename, so Create
// events count as changes too.
type Manager struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.RWMutex
	features *Features
	handlers []ChangeHandler

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a manager for the given config directory.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Manager{
		dir:     dir,
		watcher: watcher,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start performs the initial load and begins watching.
func (m *Manager) Start(ctx context.Context) error {
	f, err := LoadOrDefaults()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.features = f
	m.mu.Unlock()

	if err := m.watcher.Add(m.dir); err != nil {
		m.logger.Warn("Config watch unavailable, hot-reload disabled",
			zap.String("dir", m.dir), zap.Error(err))
		return nil
	}
	go m.watchLoop(ctx)
	return nil
}

// Stop closes the watcher.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		_ = m.watcher.Close()
	})
}

// Features returns the most recently loaded configuration.
func (m *Manager) Features() *Features {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.features
}

// OnChange registers a handler called after each successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) watchLoop(ctx context.Context) {
	// Debounce bursts of writes from editors and mounted-volume updates.
	var pending string
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			pending = filepath.Base(event.Name)
			if timer == nil {
				timer = time.NewTimer(250 * time.Millisecond)
				timerCh = timer.C
			} else {
				timer.Reset(250 * time.Millisecond)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			m.reload(pending)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload(filename string) {
	f, err := LoadOrDefaults()
	if err != nil {
		// Keep the previous config; a bad edit should never take the
		// process down.
		m.logger.Error("Config reload failed, keeping previous",
			zap.String("file", filename), zap.Error(err))
		return
	}
	m.mu.Lock()
	m.features = f
	handlers := make([]ChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.logger.Info("Config reloaded", zap.String("file", filename))
	for _, h := range handlers {
		h(filename, f)
	}
}
