package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchedOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

// Watcher calls onChange whenever the credentials file is created, replaced or removed.
// It watches the parent directory so atomic renames are seen.
type Watcher struct {
	path     string
	onChange func()
	logger   *zap.Logger
}

func NewWatcher(path string, onChange func(), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: filepath.Clean(path), onChange: onChange, logger: logger}
}

// Serve blocks until ctx is done. It satisfies suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	directory := filepath.Dir(w.path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("credentials: create %s: %w", directory, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(directory); err != nil {
		return fmt.Errorf("failed to watch credentials directory %s: %w", directory, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&watchedOps == 0 {
				continue
			}
			w.logger.Info("credentials file changed", zap.String("op", event.Op.String()))
			if w.onChange != nil {
				w.onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("credentials watcher error", zap.Error(err))
		}
	}
}
