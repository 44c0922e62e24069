// Package hostfile persists the editable host-list text format to a file and
// watches it for external edits, so the list can be maintained with any text
// editor while the daemon runs.
package hostfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/kdelane/faultgate/internal/fault/common/log"
	"github.com/kdelane/faultgate/internal/fault/metrics"
)

// Store reads and writes the delimited host list at a fixed path.
type Store struct {
	path   string
	logger log.Logger
}

// New constructs a Store for path. A nil logger falls back to the noop logger.
func New(path string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the host list. A missing file is not an error: it loads as the
// empty list, matching a freshly started policy.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading host list %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether the backing file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes the host list, creating parent directories as needed. The write
// goes through a temp file and rename so watchers never observe a torn list.
func (s *Store) Save(list string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".hostlist-*")
	if err != nil {
		return fmt.Errorf("writing host list: %w", err)
	}
	if _, err := tmp.WriteString(list + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing host list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing host list: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing host list %s: %w", s.path, err)
	}
	return nil
}

// Watch applies external edits of the backing file until ctx is cancelled.
// Each relevant filesystem event reloads the file and hands its contents to
// apply; apply failures (malformed lists) are logged and skipped, leaving the
// policy on its prior state. The parent directory is watched so editor
// rename-on-save is seen.
func (s *Store) Watch(ctx context.Context, apply func(raw string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	s.logger.Info(map[string]any{"path": s.path}, "Watching host list file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.reload(apply)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(map[string]any{"error": werr}, "Host list watcher error")
		}
	}
}

func (s *Store) reload(apply func(raw string) error) {
	raw, err := s.Load()
	if err != nil {
		metrics.HostListReloads.WithLabelValues("file", "error").Inc()
		s.logger.Warn(map[string]any{"path": s.path, "error": err}, "Failed to reload host list")
		return
	}
	if err := apply(raw); err != nil {
		metrics.HostListReloads.WithLabelValues("file", "rejected").Inc()
		s.logger.Warn(map[string]any{"path": s.path, "error": err}, "Rejected host list edit, keeping previous list")
		return
	}
	metrics.HostListReloads.WithLabelValues("file", "applied").Inc()
	s.logger.Info(map[string]any{"path": s.path}, "Host list reloaded")
}
