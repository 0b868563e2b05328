package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the store whenever a .tmpl file in the override directory
// changes. It blocks until ctx is cancelled. A store without an override
// directory returns immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating prompt watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watching prompt dir %s: %w", s.dir, err)
	}
	slog.Info("watching prompt overrides", "dir", s.dir)

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

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("prompt watcher events channel closed")
			}
			if event.Has(fsnotify.Chmod) || filepath.Ext(event.Name) != ".tmpl" {
				continue
			}
			slog.Debug("prompt file changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := s.Reload(); err != nil {
					slog.Error("prompt reload failed, keeping previous templates", "error", err)
					return
				}
				slog.Info("prompts reloaded", "dir", s.dir)
			})

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("prompt watcher errors channel closed")
			}
			slog.Error("prompt watcher error", "error", err)
		}
	}
}
