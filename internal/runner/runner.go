// Package runner wires reconciliation, the batch scheduler and the
// collaborators into one bounded run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinitshetty/phototagger/internal/batch"
	"github.com/vinitshetty/phototagger/internal/blobstore"
	"github.com/vinitshetty/phototagger/internal/config"
	"github.com/vinitshetty/phototagger/internal/identity"
	"github.com/vinitshetty/phototagger/internal/imagefmt"
	"github.com/vinitshetty/phototagger/internal/metadata"
	"github.com/vinitshetty/phototagger/internal/providers"
	"github.com/vinitshetty/phototagger/internal/reconcile"
	"github.com/vinitshetty/phototagger/internal/scanner"
	"github.com/vinitshetty/phototagger/internal/state"
)

// ErrRootNotFound is returned when the photo root is missing or not a directory.
var ErrRootNotFound = errors.New("photo root not found")

// Options configures a Runner.
type Options struct {
	Params config.RunParams

	// StateDir holds the three tables; Backend selects the blob store.
	StateDir string
	Backend  string

	// Classifier is required for Run. Scan, Status and ImportLegacy work
	// without one.
	Classifier providers.Classifier
	Writer     metadata.Writer

	Logger *slog.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Runner owns the state store for one photo root.
type Runner struct {
	params     config.RunParams
	root       string
	normalizer identity.Normalizer
	store      blobstore.Store
	classifier providers.Classifier
	writer     metadata.Writer
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	known map[string]struct{} // catalog and ledger identities; nil until loaded
}

// New validates the root and opens the state store.
func New(opts Options) (*Runner, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Writer == nil {
		opts.Writer = metadata.NewFileWriter(opts.Logger)
	}

	root, err := filepath.Abs(opts.Params.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	normalizer := identity.ForRoot(root)
	if opts.Params.Anchor != "" {
		normalizer = identity.New(opts.Params.Anchor)
	}

	store, err := blobstore.Open(opts.Backend, opts.StateDir)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("state store opened", "backend", opts.Backend, "location", store.Location())

	return &Runner{
		params:     opts.Params,
		root:       root,
		normalizer: normalizer,
		store:      store,
		classifier: opts.Classifier,
		writer:     opts.Writer,
		logger:     opts.Logger,
		now:        opts.Now,
		sleep:      opts.Sleep,
	}, nil
}

// Close releases the state store.
func (r *Runner) Close() error {
	return r.store.Close()
}

// Root returns the absolute photo root.
func (r *Runner) Root() string {
	return r.root
}

// engine builds a reconciliation engine over fresh table handles, so every
// run rereads persisted state.
func (r *Runner) engine(logger *slog.Logger) *reconcile.Engine {
	ledger := state.NewLedgerTable(r.store, r.normalizer, logger)
	ledger.SetClock(r.now)
	return reconcile.New(reconcile.Config{
		Root: r.root,
		Mode: r.params.Mode,
		Scanner: scanner.New(scanner.Config{
			Normalizer: r.normalizer,
			Exclude:    r.params.Exclude,
			Logger:     logger,
			Now:        r.now,
		}),
		Cursor:  state.NewCursorTable(r.store, logger),
		Catalog: state.NewCatalogTable(r.store, logger),
		Ledger:  ledger,
		Logger:  logger,
		Now:     r.now,
	})
}

// Run performs one bounded pass: reconcile, then classify, write back and
// record each item of the selected prefix.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	defer r.forget()
	if r.classifier == nil {
		return nil, providers.ErrNotConfigured
	}
	if _, err := os.Stat(r.root); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, r.root)
	}

	runID := uuid.New().String()
	logger := r.logger.With("run_id", runID)
	started := r.now()

	banner := strings.Repeat("=", 60)
	logger.Info(banner)
	logger.Info("image tagging started",
		"root", r.root,
		"mode", string(r.params.Mode),
		"classifier", classifierName(r.classifier),
		"model", providers.ModelName(r.classifier),
		"state", r.store.Location(),
	)
	logger.Info(banner)

	engine := r.engine(logger)
	plan, err := engine.Plan(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("totals",
		"found", plan.CatalogSize,
		"already_completed", plan.Completed,
		"to_process", len(plan.Delta),
	)

	report := &Report{
		RunID:     runID,
		State:     plan.State,
		Scanned:   plan.Scanned,
		Added:     plan.Added,
		Catalog:   plan.CatalogSize,
		Completed: plan.Completed,
		Pending:   len(plan.Delta),
		StartedAt: started,
	}
	if len(plan.Delta) == 0 {
		logger.Info("nothing to do")
		report.Duration = r.now().Sub(started)
		return report, nil
	}

	sched := batch.New(batch.Config{
		Limit:     r.params.BatchLimit,
		RateLimit: r.params.RateLimit,
		Window:    r.params.PacingWindow,
		Logger:    logger,
		Sleep:     r.sleep,
	})
	summary, err := sched.Run(ctx, plan.Delta, batch.Hooks{
		Classify:      r.classify,
		WriteMetadata: func(item state.WorkItem, tags string) error { return r.writer.Write(item.FullPath, tags) },
		RecordDone:    engine.RecordDone,
	})
	report.Batch = summary
	report.Duration = r.now().Sub(started)
	if err != nil {
		logger.Warn("run interrupted", "tagged", summary.Tagged, "error", err)
		return report, err
	}

	logger.Info("run complete", "tagged", summary.Tagged, "remaining", summary.Remaining, "duration", report.Duration)
	return report, nil
}

func (r *Runner) classify(ctx context.Context, item state.WorkItem) (string, error) {
	data, err := os.ReadFile(item.FullPath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return r.classifier.Classify(ctx, data, imagefmt.FromPath(item.FullPath).MimeType())
}

// Scan refreshes the catalog without classifying. With rebuild the catalog
// is replaced by a full walk.
func (r *Runner) Scan(ctx context.Context, rebuild bool) (int, error) {
	defer r.forget()
	engine := r.engine(r.logger)
	if rebuild {
		return engine.Rebuild(ctx)
	}
	return engine.Refresh(ctx)
}

// Status reports persisted table sizes without scanning.
func (r *Runner) Status(ctx context.Context) Status {
	return Status{
		Snapshot: r.engine(r.logger).Status(ctx),
		State:    r.store.Location(),
		now:      r.now(),
	}
}

// ImportLegacy merges a one-path-per-line completion log into the ledger.
// Identities already recorded keep their record. It returns the number of
// identities added.
func (r *Runner) ImportLegacy(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read legacy ledger: %w", err)
	}
	legacy := state.ParseLegacyLedger(data, r.normalizer)
	defer r.forget()

	table := state.NewLedgerTable(r.store, r.normalizer, r.logger)
	ledger := table.Load(ctx)
	added := 0
	for _, rec := range legacy.Records() {
		if ledger.Has(rec.Identity) {
			continue
		}
		ledger.Put(rec)
		added++
	}
	if err := table.Save(ctx, ledger); err != nil {
		return 0, err
	}
	r.logger.Info("imported legacy ledger", "file", path, "lines", legacy.Len(), "added", added)
	return added, nil
}

// Known reports whether path is already in the work catalog or the
// completion ledger. Files rewritten by the metadata writer are always
// known, so watchers use this to skip their own write-back.
func (r *Runner) Known(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known == nil {
		r.known = r.loadKnown(context.Background())
	}
	_, ok := r.known[r.normalizer.Normalize(path)]
	return ok
}

func (r *Runner) loadKnown(ctx context.Context) map[string]struct{} {
	catalog := state.NewCatalogTable(r.store, r.logger).Load(ctx)
	ledger := state.NewLedgerTable(r.store, r.normalizer, r.logger).Load(ctx)

	known := make(map[string]struct{}, catalog.Len()+ledger.Len())
	for _, id := range catalog.Keys() {
		known[id] = struct{}{}
	}
	for _, rec := range ledger.Records() {
		known[rec.Identity] = struct{}{}
	}
	return known
}

// forget drops the cached identity set after state changes.
func (r *Runner) forget() {
	r.mu.Lock()
	r.known = nil
	r.mu.Unlock()
}

func classifierName(c providers.Classifier) string {
	if n, ok := c.(providers.NamedClassifier); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
