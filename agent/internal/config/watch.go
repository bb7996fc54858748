package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// WatchDevices monitors path and calls onChange with the new device list
// whenever a reload yields a list different from the last one. It runs until
// ctx is cancelled.
//
// Other agent settings are read once at startup; changing them needs a restart.
// A reload that fails to parse or validate is logged and skipped.
func WatchDevices(ctx context.Context, path string, current []Device, onChange func([]Device)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so rename-based saves keep being seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)
	last := slices.Clone(current)

	slog.Info("config: watching device list", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous devices",
					"path", path, "err", err)
				continue
			}
			if slices.Equal(cfg.Agent.Devices, last) {
				continue
			}

			last = slices.Clone(cfg.Agent.Devices)
			slog.Info("config: device list reloaded", "devices", len(last))
			onChange(slices.Clone(last))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
