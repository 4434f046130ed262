// Package watch triggers runs when images appear under the photo root.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/vinitshetty/phototagger/internal/imagefmt"
)

// TriggerFunc runs one reconciliation pass. Calls never overlap.
type TriggerFunc func(ctx context.Context) error

// Config contains configuration for the watcher.
type Config struct {
	// Debounce is the quiet period after the last event before triggering.
	// Default: 2s
	Debounce time.Duration

	// Interval triggers a run periodically even without events, so a
	// backlog larger than one batch keeps draining. Zero disables it.
	Interval time.Duration

	// RunOnStart triggers once before waiting for events.
	RunOnStart bool

	// Exclude holds doublestar patterns relative to the root.
	Exclude []string

	// Known reports images that are already catalogued. Events for them are
	// ignored, so a run's own metadata write-back never triggers another
	// run. Nil treats every image as new.
	Known func(path string) bool

	Logger *slog.Logger
}

// Watcher watches a directory tree for new or changed images.
type Watcher struct {
	root    string
	cfg     Config
	trigger TriggerFunc
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// New creates a watcher for root.
func New(root string, trigger TriggerFunc, cfg Config) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:    absRoot,
		cfg:     cfg,
		trigger: trigger,
		logger:  cfg.Logger,
		watcher: fsWatcher,
	}, nil
}

// Run watches until ctx is cancelled, then closes the underlying watcher.
// Trigger errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add watch paths: %w", err)
	}
	w.logger.Info("watching", "root", w.root, "dirs", len(w.watcher.WatchList()))

	if w.cfg.RunOnStart {
		w.fire(ctx, "start")
	}

	debounce := time.NewTimer(w.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	var tick <-chan time.Time
	if w.cfg.Interval > 0 {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				debounce.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-debounce.C:
			w.fire(ctx, "change")

		case <-tick:
			w.fire(ctx, "interval")
		}
	}
}

func (w *Watcher) fire(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	w.logger.Debug("triggering run", "reason", reason)
	if err := w.trigger(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("triggered run failed", "reason", reason, "error", err)
	}
}

// relevant reports whether event may add work: an uncatalogued image, or a
// new directory. New directories are watched
// and count, since files may land in them before the watch is
// in place.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	if w.excluded(event.Name) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return true
		}
	}
	if !imagefmt.Supported(event.Name) {
		return false
	}
	return w.cfg.Known == nil || !w.cfg.Known(event.Name)
}

// addRecursive adds dir and its subdirectories to the watcher.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("cannot watch directory", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.cfg.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
