package config

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ProfileHolder serves the current profile to concurrent runs. A run reads
// the profile once and keeps it, so reloads never affect a run in flight.
type ProfileHolder struct {
	p atomic.Pointer[Profile]
}

func NewProfileHolder(p *Profile) *ProfileHolder {
	h := &ProfileHolder{}
	h.p.Store(p)
	return h
}

func (h *ProfileHolder) Load() *Profile { return h.p.Load() }

func (h *ProfileHolder) Store(p *Profile) { h.p.Store(p) }

// Watch reloads the profile at path on every write and passes valid results
// to onChange. An invalid profile is logged and the previous one stays
// active. It runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Profile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("Watching profile for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves arrive as create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			p, err := LoadProfile(path)
			if err != nil {
				slog.Error("Profile reload failed, keeping previous profile", "path", path, "error", err)
				continue
			}

			slog.Info("Profile reloaded", "path", path, "name", p.Name)
			onChange(p)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Profile watcher error", "error", err)
		}
	}
}
