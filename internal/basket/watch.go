package basket

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Invalidator is anything whose cache can be marked stale.
type Invalidator interface {
	Invalidate()
}

// DefaultDebounce collapses bursts of events from a single save.
const DefaultDebounce = 200 * time.Millisecond

// Watch invalidates target whenever the file at path is written, created,
// renamed or removed. The parent directory is watched because atomic saves
// replace the file. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, target Invalidator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Debug("watching store file", zap.String("path", path))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if pending == nil {
				pending = time.After(DefaultDebounce)
			}
		case <-pending:
			pending = nil
			logger.Debug("store file changed; invalidating cache", zap.String("path", path))
			target.Invalidate()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
