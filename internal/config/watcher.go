package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent is emitted whenever a watched file changes.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches the small set of hot-reloadable files: the safety policy
// and the registered-groups document. The bulk of Config is loaded once at
// startup; only these two documents are expected to change while running.
type Watcher struct {
	dataDir string
	logger  *slog.Logger
	events  chan ReloadEvent
}

func NewWatcher(dataDir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dataDir: dataDir, logger: logger, events: make(chan ReloadEvent, 16)}
}

func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start watches policy.yaml and registered_groups.json for changes until ctx
// is cancelled. Missing files are tolerated; fsnotify reports nothing for
// them until they are created.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	files := []string{
		filepath.Join(w.dataDir, "policy.yaml"),
		filepath.Join(w.dataDir, "registered_groups.json"),
	}
	for _, f := range files {
		_ = fsw.Add(f)
	}
	// Watching the containing directory catches create-after-delete/rename,
	// which a direct file watch on some filesystems misses.
	_ = fsw.Add(w.dataDir)

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				base := filepath.Base(ev.Name)
				if base != "policy.yaml" && base != "registered_groups.json" {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
					w.logger.Warn("config watcher: reload event dropped, channel full", "path", ev.Name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
