package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	minTimeBetweenReloadAttempts = 500 * time.Millisecond
	delayBetweenEventAndReload   = 50 * time.Millisecond
)

// watchConfigFile posts to reload whenever the config file is written or
// replaced. The parent directory is watched because editors commonly save
// by renaming a temp file over the original.
func watchConfigFile(ctx context.Context, path string, reload chan<- struct{}, logger *slog.Logger) error {
	path = filepath.Clean(ExpandPath(path))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Debug("watching config file", "path", path)

	var lastAttemptedReload time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopping config file watcher")
			return nil

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			now := time.Now()
			if !lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				continue
			}
			lastAttemptedReload = now
			logger.Debug("config file modified, requesting reload", "event", event.String())

			// Let the writer finish before the file is read back.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delayBetweenEventAndReload):
			}

			select {
			case reload <- struct{}{}:
			default:
				// A reload is already pending.
			}
		}
	}
}
