package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch re-resolves the configuration every time the file at opts.ConfigPath
// changes and hands the result to onChange. The parent directory is watched
// so atomic renames and files created after startup are both seen. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, opts ResolveOptions, debounce time.Duration, logger *zap.Logger, onChange func(ResolvedConfig, error)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath()
	}
	opts.ConfigPath = path
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching config", zap.String("path", path), zap.Duration("debounce", debounce))

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := ResolveConfig(opts)
		if err != nil {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("config reloaded", zap.String("path", path))
		}
		onChange(cfg, err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", zap.Error(err))
		}
	}
}
