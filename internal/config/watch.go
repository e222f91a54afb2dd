package config

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/logging"
)

// Watch reloads configuration when a config file in the project directory
// changes and publishes config.updated with the fresh Config. It returns
// once the watcher is installed; watching stops when ctx is done.
func Watch(ctx context.Context, directory string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(directory); err != nil {
		watcher.Close()
		return nil, err
	}
	// Best effort: the project config dir may not exist yet.
	_ = watcher.Add(filepath.Join(directory, ".cadenza"))

	log := logging.Component("config")

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigFile(ev.Name) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				cfg, err := Load(directory)
				if err != nil {
					log.Warn().Err(err).Str("file", ev.Name).Msg("config reload failed")
					continue
				}
				log.Info().Str("file", ev.Name).Msg("config reloaded")
				event.Publish(event.Event{Type: event.ConfigUpdated, Data: cfg})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

func isConfigFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, "cadenza.json") || name == ".env"
}
