// Package batch drives a bounded, paced pass over the pending delta.
package batch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vinitshetty/phototagger/internal/state"
)

// DefaultWindow is the pause taken after every RateLimit classify calls.
const DefaultWindow = 60 * time.Second

// Hooks are the per-item collaborators.
type Hooks struct {
	// Classify returns the tag string for the item.
	Classify func(ctx context.Context, item state.WorkItem) (string, error)

	// WriteMetadata embeds tags into the file.
	WriteMetadata func(item state.WorkItem, tags string) error

	// RecordDone marks the item complete.
	RecordDone func(ctx context.Context, item state.WorkItem) error

	// Exists reports whether the item's file is still on disk.
	// Defaults to an os.Stat check.
	Exists func(path string) bool
}

// Config configures a Scheduler.
type Config struct {
	Limit     int           // items per run; <= 0 means the whole delta
	RateLimit int           // classify calls per pacing window; <= 0 disables pacing
	Window    time.Duration // default DefaultWindow
	Logger    *slog.Logger

	// Sleep blocks for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler processes the delta one item at a time.
type Scheduler struct {
	limit     int
	rateLimit int
	window    time.Duration
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Scheduler{
		limit:     cfg.Limit,
		rateLimit: cfg.RateLimit,
		window:    cfg.Window,
		logger:    cfg.Logger,
		sleep:     cfg.Sleep,
	}
}

// Summary reports what a run did.
type Summary struct {
	Selected       int `json:"selected" yaml:"selected"`
	Tagged         int `json:"tagged" yaml:"tagged"`
	Vanished       int `json:"vanished" yaml:"vanished"`
	ClassifyFailed int `json:"classify_failed" yaml:"classify_failed"`
	WriteFailed    int `json:"write_failed" yaml:"write_failed"`
	RecordFailed   int `json:"record_failed" yaml:"record_failed"`
	Pauses         int `json:"pauses" yaml:"pauses"`

	// Remaining is len(delta) minus the selected prefix, not recomputed
	// from the ledger.
	Remaining int `json:"remaining" yaml:"remaining"`
}

// Run processes the first Limit items of delta in order.
//
// A vanished file is recorded without classification. A classify failure
// leaves the item pending for the next run. A metadata write failure is
// logged and the item is still recorded.
//
// Pacing counts successful classify calls, whether or not the completion
// was recorded, since each one is a provider request. A pause follows every
// RateLimit-th call. The only error returned is ctx's,
// when the run is interrupted; the summary covers the items handled so far.
func (s *Scheduler) Run(ctx context.Context, delta []state.WorkItem, hooks Hooks) (Summary, error) {
	if hooks.Exists == nil {
		hooks.Exists = fileExists
	}

	batch := delta
	if s.limit > 0 && len(batch) > s.limit {
		batch = batch[:s.limit]
	}
	sum := Summary{Selected: len(batch), Remaining: len(delta) - len(batch)}
	s.logger.Info("starting batch", "items", len(batch), "pending", len(delta))

	calls := 0
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := s.logger.With("identity", item.Identity)

		if !hooks.Exists(item.FullPath) {
			log.Warn("file vanished, marking complete", "full_path", item.FullPath)
			sum.Vanished++
			if err := hooks.RecordDone(ctx, item); err != nil {
				log.Error("failed to record completion", "error", err)
				sum.RecordFailed++
			}
			continue
		}

		tags, err := hooks.Classify(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			log.Error("classification failed", "file", filepath.Base(item.FullPath), "error", err)
			sum.ClassifyFailed++
			continue
		}
		log.Info("tagged", "file", filepath.Base(item.FullPath), "tags", tags)

		if err := hooks.WriteMetadata(item, tags); err != nil {
			lvl := slog.LevelError
			if isUnsupported(err) {
				lvl = slog.LevelWarn
			}
			log.Log(ctx, lvl, "metadata not written", "file", filepath.Base(item.FullPath), "error", err)
			sum.WriteFailed++
		}

		if err := hooks.RecordDone(ctx, item); err != nil {
			log.Error("failed to record completion", "error", err)
			sum.RecordFailed++
		} else {
			sum.Tagged++
		}

		calls++
		if s.rateLimit > 0 && calls%s.rateLimit == 0 {
			sum.Pauses++
			s.logger.Info("pausing for rate limit", "requests", calls, "pause", s.window)
			if err := s.sleep(ctx, s.window); err != nil {
				return sum, err
			}
		}
	}

	s.logger.Info("batch done", "tagged", sum.Tagged, "remaining", sum.Remaining)
	return sum, nil
}

// unsupported is implemented by errors that mark a format as intentionally skipped.
type unsupported interface {
	Unsupported() bool
}

func isUnsupported(err error) bool {
	var u unsupported
	return errors.As(err, &u) && u.Unsupported()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
