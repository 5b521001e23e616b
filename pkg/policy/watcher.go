package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the engine when its configuration document changes
// on disk. Editors typically fire several events per save, so reloads
// are debounced.
type Watcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the engine's configuration file.
func NewWatcher(engine *Engine, path string) *Watcher {
	return &Watcher{
		engine:   engine,
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   slog.Default().With("component", "policy.watcher"),
	}
}

// Watch blocks until ctx is cancelled, reloading the engine after
// each (debounced) change to the configuration file. A reload failure
// keeps the previous chain active.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which would
	// drop a watch on the file itself.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("policy configuration watcher started", "path", w.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := w.engine.Reload(); err != nil {
				w.logger.Error("policy reload failed, keeping previous chain",
					"path", w.path,
					"error", err,
				)
				continue
			}
			w.logger.Info("policy chain reloaded", "path", w.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}
