package daq

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of fsnotify events an editor emits for
// one save into a single reload request.
const debounceDelay = 500 * time.Millisecond

// ConfigWatcher watches the device configuration files and emits one reload
// request per edit burst. The orchestrator consumes Reloads and decides
// when a reload is actually safe.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	reloads chan string
	log     *slog.Logger
}

// NewConfigWatcher watches the directories holding the given files.
// Watching directories instead of files survives the rename-over-save most
// editors do.
func NewConfigWatcher(files []string, logger *slog.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating config watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("error watching %q: %w", dir, err)
		}
	}

	cw := &ConfigWatcher{
		watcher: w,
		reloads: make(chan string, 1),
		log:     logger,
	}
	go cw.run(files)
	return cw, nil
}

// Reloads emits the path of a changed configuration file, debounced.
func (c *ConfigWatcher) Reloads() <-chan string { return c.reloads }

func (c *ConfigWatcher) run(files []string) {
	watched := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		watched[abs] = true
	}

	var pending string
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				abs = event.Name
			}
			if !watched[abs] {
				continue
			}
			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case <-timerC:
			c.log.Info(fmt.Sprintf("Configuration file changed: %s", pending), "module", "watcher")
			select {
			case c.reloads <- pending:
			default:
				// A reload is already queued; the orchestrator re-reads
				// every file anyway.
			}
			timer = nil
			timerC = nil

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn(fmt.Sprintf("Config watcher error: %v", err), "module", "watcher")
		}
	}
}

// Close stops the watcher.
func (c *ConfigWatcher) Close() error {
	return c.watcher.Close()
}

// WatchAndReload consumes reload requests until the context ends, invoking
// the orchestrator's reload for each.
func (c *ConfigWatcher) WatchAndReload(ctx context.Context, o *Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-c.reloads:
			if !ok {
				return
			}
			c.log.Info(fmt.Sprintf("Reloading after change to %s", path), "module", "watcher")
			if err := o.Reload(ctx); err != nil {
				c.log.Error(fmt.Sprintf("Reload failed: %v", err), "module", "watcher")
			}
		}
	}
}
