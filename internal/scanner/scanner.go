// Package scanner walks the photo tree and yields candidate work items.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vinitshetty/phototagger/internal/identity"
	"github.com/vinitshetty/phototagger/internal/imagefmt"
	"github.com/vinitshetty/phototagger/internal/state"
)

// Config configures a Scanner.
type Config struct {
	Normalizer identity.Normalizer

	// Exclude holds doublestar patterns matched against the slash-separated
	// path relative to the scan root. A matching directory is not descended.
	Exclude []string

	Logger *slog.Logger
	Now    func() time.Time
}

// Scanner discovers allow-listed image files.
type Scanner struct {
	normalizer identity.Normalizer
	exclude    []string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Scanner. Invalid exclude patterns are dropped with a warning.
func New(cfg Config) *Scanner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	exclude := make([]string, 0, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			cfg.Logger.Warn("ignoring invalid exclude pattern", "pattern", p)
			continue
		}
		exclude = append(exclude, p)
	}

	return &Scanner{
		normalizer: cfg.Normalizer,
		exclude:    exclude,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Scan walks root and returns the accepted items in lexical path order.
//
// In backlog mode every allow-listed file is accepted; in incremental mode
// only files modified strictly after cursor.LastScan. Unreadable directories
// are logged and skipped, and files that vanish mid-walk are simply absent.
// The result is not merged with any prior catalog.
//
// A non-nil error is returned only when ctx is cancelled; the items
// collected so far are still returned.
func (s *Scanner) Scan(ctx context.Context, root string, cursor state.Cursor, mode state.ScanMode) (*state.Catalog, error) {
	found := state.NewCatalog()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	addedAt := s.now().UTC()
	var seen, skippedDirs int

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() {
				skippedDirs++
				s.logger.Error("directory read failed, skipping", "path", path, "error", err)
				if path == absRoot {
					return filepath.SkipAll
				}
				return filepath.SkipDir
			}
			s.logger.Debug("entry vanished during scan", "path", path, "error", err)
			return nil
		}

		if path != absRoot && s.excluded(absRoot, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !imagefmt.Supported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Debug("entry vanished during scan", "path", path, "error", err)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		seen++

		modTime := info.ModTime().UTC()
		if mode == state.ModeIncremental && !modTime.After(cursor.LastScan) {
			return nil
		}

		found.Add(state.WorkItem{
			Identity:  s.normalizer.Normalize(path),
			FullPath:  path,
			ModTime:   modTime,
			AddedTime: addedAt,
		})
		return nil
	})

	s.logger.Info("scan complete",
		"root", absRoot,
		"mode", mode,
		"seen", seen,
		"accepted", found.Len(),
		"skipped_dirs", skippedDirs)

	if walkErr != nil && (errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded)) {
		return found, walkErr
	}
	if walkErr != nil {
		s.logger.Error("scan stopped early", "root", absRoot, "error", walkErr)
	}
	return found, nil
}

func (s *Scanner) excluded(root, path string) bool {
	if len(s.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
