package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher hot-reloads the registry when its file changes on disk. Events
// are debounced because editors and atomic renames emit bursts.
type Watcher struct {
	storage  *Storage
	logger   *zap.Logger
	debounce time.Duration
}

// NewWatcher builds a watcher over the given storage.
func NewWatcher(storage *Storage, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		storage:  storage,
		logger:   logger.Named("registry-watcher"),
		debounce: reloadDebounce,
	}
}

// Run watches until ctx is canceled. The registry file's directory is
// watched rather than the file itself so atomic replaces keep being seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.storage.Path())
	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching registry file", zap.String("path", w.storage.Path()))

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcher.Errors:
			if err != nil {
				w.logger.Warn("registry watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if !w.isRegistryEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			if err := w.storage.Reload(); err != nil {
				w.logger.Warn("registry hot reload failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) isRegistryEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.storage.Path())
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
