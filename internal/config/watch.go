package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the configuration whenever the config file changes, until
// ctx is cancelled. The directory is watched so atomic replacements are seen.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(m.paths.ConfigDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}

	slog.Info("Watching config file for changes", "path", m.paths.ConfigFile)

	go m.watchLoop(ctx, watcher, debounce)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(m.paths.ConfigFile)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Config watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			slog.Debug("Config file changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := m.Reload(); err != nil {
				slog.Error("Automatic config reload failed", "error", err)
				continue
			}
			slog.Info("Configuration reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
