package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/desktide/desktide/pkg/telemetry"
)

// Watcher re-reads a desired-state file whenever it changes on disk.
type Watcher struct {
	log     *telemetry.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for one configuration file.
func NewWatcher(log *telemetry.Logger) *Watcher {
	return &Watcher{log: log.WithField("component", "config-watcher")}
}

// Watch observes path and invokes reloadFn with each freshly loaded
// document. Events are debounced so editors that write in bursts
// trigger a single reload. Watch returns once the watcher is running;
// it stops when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, path string, reloadFn func(*Document) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = watcher

	// Watch the parent directory: editors commonly replace the file via
	// rename, which drops a watch held on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, path, reloadFn)

	w.log.WithField("path", path).Info("watching configuration")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, path string, reloadFn func(*Document) error) {
	var reloadTimer *time.Timer
	const reloadDelay = 500 * time.Millisecond

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.WithField("path", event.Name).WithField("op", event.Op.String()).Debug("configuration changed")
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				doc, err := Load(path)
				if err != nil {
					w.log.WithError(err).Error("reload failed")
					return
				}
				if err := reloadFn(doc); err != nil {
					w.log.WithError(err).Error("reload handler failed")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}
