package settingsstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 200 * time.Millisecond

// Watch reloads the store whenever the backing file is changed by another
// process, until ctx is cancelled. Writes made through the store itself are
// recognised by checksum and do not produce a second notification.
//
// The parent directory is watched rather than the file, since atomic
// replacement swaps the inode on every write.
func Watch(ctx context.Context, s *Store, logger *slog.Logger) error {
	path, err := s.Path()
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settingsstore: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("settingsstore: watch %s: %w", filepath.Dir(path), err)
	}
	logger.Info("settings watcher: started", slog.String("path", path))

	// reloadTimer coalesces the create/write/chmod burst of one save.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDelay)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("settings watcher: stopped")
			return nil

		case <-reloadCh:
			changed, err := s.Reload()
			if err != nil {
				logger.Warn("settings watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Debug("settings watcher: reloaded external change", slog.String("path", path))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("settings watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
