package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 250 * time.Millisecond

// setLogLevel applies a level name to the global logger
func setLogLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// reloadLogLevel re-reads the config file and applies its log level. LOG_LEVEL in the
// environment still wins.
func reloadLogLevel(path string) error {
	cfg := defaultConfig()
	if err := readConfigFile(path, cfg); err != nil {
		return err
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("log level reloaded")
	return nil
}

// watchConfigFile reloads the log level whenever the config file changes. The parent
// directory is watched so editors that replace the file are picked up.
func watchConfigFile(ctx context.Context, path string) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsW.Add(dir); err != nil {
		fsW.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer fsW.Close()

		target := filepath.Clean(path)
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return

			case event, ok := <-fsW.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := reloadLogLevel(path); err != nil {
						log.Warn().Err(err).Str("path", path).Msg("failed to reload config")
					}
				})

			case err, ok := <-fsW.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	log.Info().Str("path", path).Msg("watching config file")
	return nil
}
