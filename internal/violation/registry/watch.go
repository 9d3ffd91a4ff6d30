package registry

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry file at path into h whenever it changes.
// A reload that fails to parse is logged and the previous registry stays
// active. Runs until ctx is cancelled.
//
// The parent directory is watched rather than the file: an atomic save
// renames a new file over path, which would silently drop a watch held on
// the old inode. The rename arrives as Create for path.
func Watch(ctx context.Context, path string, h *Holder, logger *slog.Logger) error {
	target := filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.InfoContext(ctx, "registry: watching for changes", "path", target)

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

			next, err := Load(target)
			if err != nil {
				logger.ErrorContext(ctx, "registry: reload failed, keeping previous version",
					"path", target, "error", err)
				continue
			}

			prev := h.Swap(next)
			logger.InfoContext(ctx, "registry: reloaded",
				"path", target,
				"previous_version", prev.Version(),
				"version", next.Version(),
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorContext(ctx, "registry: watcher error", "error", err)
		}
	}
}
