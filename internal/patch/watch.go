package patch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the patch at path into in whenever the file is written,
// ramping changed values over length frames. It watches the containing
// directory so that editors replacing the file are noticed. Load and reload
// failures are logged and do not stop the watch. Watch returns when ctx is
// done.
func Watch(ctx context.Context, path string, in *Instance, length uint32) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("patch: watch: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("patch: watch %s: %w", path, err)
	}

	logger := in.logger.With().Str("path", path).Logger()
	logger.Debug().Msg("Watching patch")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			next, err := Load(path)
			if err != nil {
				logger.Warn().Err(err).Msg("Patch reload skipped")
				continue
			}

			_, err = in.Reload(next, length)
			switch {
			case errors.Is(err, ErrStructureChanged):
				logger.Warn().Err(err).Msg("Patch structure changed, restart to apply")
			case err != nil:
				logger.Warn().Err(err).Msg("Patch reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn().Err(err).Msg("Patch watcher error")
		}
	}
}
