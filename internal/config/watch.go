package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch monitors the config file and invokes onChange with the freshly
// loaded configuration after every successful reload. A reload that fails to
// parse or validate is logged and skipped; the previous configuration stays
// in effect. The returned stop function releases the watcher.
//
// The watch is on the containing directory, not the file itself, so that
// editors and config-map style atomic renames are picked up.
func Watch(path string, logger *logrus.Logger, onChange func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				cfg, err := Load(path)
				if err != nil {
					logger.WithError(err).Warn("Config reload failed, keeping previous configuration")
					continue
				}

				logger.WithFields(logrus.Fields{
					"path":      path,
					"log_level": cfg.LogLevel,
				}).Info("Config reloaded")
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Config watcher error")
			}
		}
	}()

	return watcher.Close, nil
}
