// Package watcher turns new recordings in the watch directory into intake
// events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"meetsync/internal/config"
	"meetsync/internal/logging"
)

var partialSuffixes = []string{".part", ".crdownload", ".tmp", ".download"}

// Watcher emits paths of video files created in or moved into a directory.
type Watcher struct {
	dir        string
	extensions map[string]struct{}
	logger     *slog.Logger
}

// New constructs a Watcher for cfg.Paths.WatchDir.
func New(cfg *config.Config, logger *slog.Logger) *Watcher {
	exts := make(map[string]struct{}, len(cfg.Workflow.Extensions))
	for _, ext := range cfg.Workflow.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Watcher{
		dir:        cfg.Paths.WatchDir,
		extensions: exts,
		logger:     logging.NewComponentLogger(logger, "watcher"),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Matches reports whether path names a video the pipeline should pick up.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	if base == "" || strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	lower := strings.ToLower(base)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	_, ok := w.extensions[filepath.Ext(lower)]
	return ok
}

// Scan lists matching files already present, oldest name first.
func (w *Watcher) Scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("scan watch dir: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.Matches(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Run watches the directory until ctx is cancelled, sending each matching
// path to out. A send blocks until the consumer is ready or ctx ends.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("ensure watch dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for recordings", logging.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !w.Matches(event.Name) {
				w.logger.Debug("ignoring file", logging.String("path", event.Name))
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || !info.Mode().IsRegular() {
				continue
			}
			w.logger.Info("recording detected",
				logging.String(logging.FieldEventType, "recording_detected"),
				logging.String("path", event.Name),
			)
			select {
			case out <- event.Name:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			logging.WarnWithContext(w.logger, "watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some file events may have been missed"),
				logging.String(logging.FieldErrorHint, "run 'meetsync add <file>' for recordings that were not picked up"),
			)
		}
	}
}
