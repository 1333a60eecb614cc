// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/vinefeeder/envied/internal/log"
)

// Watcher reloads configPath whenever it changes on disk and delivers the
// freshly-loaded AppConfig to onChange. A zero-value configPath makes
// Watch a no-op, since there is nothing to observe.
type Watcher struct {
	configPath string
	onChange   func(AppConfig)
}

// NewWatcher constructs a Watcher for configPath, invoking onChange after
// every successful reload.
func NewWatcher(configPath string, onChange func(AppConfig)) *Watcher {
	return &Watcher{configPath: configPath, onChange: onChange}
}

// Watch blocks, reloading configPath on every write/create event until ctx
// is cancelled or the underlying filesystem watcher fails to start.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.configPath == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return err
	}

	logger := log.WithComponent("config-watcher")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.configPath)
			if err != nil {
				logger.Error().Err(err).Str("path", w.configPath).Msg("config reload failed")
				continue
			}
			logger.Info().Str("path", w.configPath).Msg("configuration reloaded")
			w.onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
