package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the reloaded, validated Config
// each time the file changes. It runs until ctx is cancelled.
//
// A reload that fails to parse or validate is logged and skipped; the
// previous config stays active. The parent directory is watched so editors
// that save by rename are picked up.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("config_watch_started", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadAndValidate(path)
			if err != nil {
				logger.Error("config_reload_failed", "path", abs, "error", err)
				continue
			}
			logger.Info("config_reloaded", "path", abs, "streams", len(cfg.Streams))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config_watch_error", "error", err)
		}
	}
}
