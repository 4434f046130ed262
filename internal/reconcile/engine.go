// Package reconcile decides what work is pending and when the tree must be
// rescanned.
//
// Each run lands in one of three states:
//
//   - Bootstrap: the catalog is empty, so the tree is scanned first.
//   - Draining: catalog minus ledger is non-empty; work from it directly.
//   - Replenishing: everything catalogued is complete; rescan once,
//     merge, and recompute.
//
// The engine owns the catalog and the ledger. Scanners and schedulers go
// through it to read or append.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vinitshetty/phototagger/internal/state"
)

// State is the reconciliation state chosen for a run.
type State string

const (
	Bootstrap    State = "bootstrap"
	Draining     State = "draining"
	Replenishing State = "replenishing"
)

// Scanner produces candidate items for one walk of the tree.
type Scanner interface {
	Scan(ctx context.Context, root string, cursor state.Cursor, mode state.ScanMode) (*state.Catalog, error)
}

// Config configures an Engine.
type Config struct {
	Root    string
	Mode    state.ScanMode
	Scanner Scanner

	Cursor  *state.CursorTable
	Catalog *state.CatalogTable
	Ledger  *state.LedgerTable

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine computes the pending delta between catalog and ledger.
type Engine struct {
	root    string
	mode    state.ScanMode
	scanner Scanner
	cursor  *state.CursorTable
	catalog *state.CatalogTable
	ledger  *state.LedgerTable
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mode == "" {
		cfg.Mode = state.ModeBacklog
	}
	return &Engine{
		root:    cfg.Root,
		mode:    cfg.Mode,
		scanner: cfg.Scanner,
		cursor:  cfg.Cursor,
		catalog: cfg.Catalog,
		ledger:  cfg.Ledger,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Plan is the outcome of reconciliation for one run.
type Plan struct {
	State State

	// Delta is the pending work in catalog order.
	Delta []state.WorkItem

	// Scanned is true when this run walked the tree; Added counts the
	// identities the walk contributed to the catalog.
	Scanned bool
	Added   int

	CatalogSize int
	Completed   int
}

// Plan loads catalog and ledger and returns the pending delta, scanning at
// most once: on an empty catalog, or when the existing delta is empty.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	catalog := e.catalog.Load(ctx)
	ledger := e.ledger.Load(ctx)

	p := &Plan{}
	switch {
	case catalog.Len() == 0:
		p.State = Bootstrap
	default:
		p.Delta = Delta(catalog, ledger)
		if len(p.Delta) > 0 {
			p.State = Draining
		} else {
			p.State = Replenishing
		}
	}

	if p.State != Draining {
		added, err := e.scanInto(ctx, catalog)
		if err != nil {
			return nil, err
		}
		p.Scanned = true
		p.Added = added
		p.Delta = Delta(catalog, ledger)
	}

	p.CatalogSize = catalog.Len()
	p.Completed = ledger.Len()

	e.logger.Info("reconciled",
		"state", string(p.State),
		"catalog", p.CatalogSize,
		"completed", p.Completed,
		"pending", len(p.Delta),
		"added", p.Added,
	)
	return p, nil
}

// Refresh scans the tree and merges new items into the existing catalog.
// It returns the number of identities added.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	return e.scanInto(ctx, e.catalog.Load(ctx))
}

// Rebuild replaces the catalog with a fresh backlog walk of the tree, which
// drops identities whose files are gone. The ledger is untouched.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	start := e.now()
	found, err := e.scanner.Scan(ctx, e.root, state.Cursor{}, state.ModeBacklog)
	if err != nil {
		return 0, fmt.Errorf("rebuild scan: %w", err)
	}
	if err := e.catalog.Save(ctx, found); err != nil {
		return 0, err
	}
	if err := e.advanceCursor(ctx, start); err != nil {
		return 0, err
	}
	e.logger.Info("catalog rebuilt", "items", found.Len())
	return found.Len(), nil
}

// RecordDone marks item complete in the ledger.
func (e *Engine) RecordDone(ctx context.Context, item state.WorkItem) error {
	return e.ledger.Record(ctx, item.Identity, item.FullPath)
}

// Snapshot summarises persisted state without scanning.
type Snapshot struct {
	Root      string         `json:"root" yaml:"root"`
	Mode      state.ScanMode `json:"mode" yaml:"mode"`
	Cursor    state.Cursor   `json:"cursor" yaml:"cursor"`
	Catalog   int            `json:"catalog" yaml:"catalog"`
	Completed int            `json:"completed" yaml:"completed"`
	Pending   int            `json:"pending" yaml:"pending"`
}

// Status loads the three tables and reports their sizes.
func (e *Engine) Status(ctx context.Context) Snapshot {
	catalog := e.catalog.Load(ctx)
	ledger := e.ledger.Load(ctx)
	return Snapshot{
		Root:      e.root,
		Mode:      e.mode,
		Cursor:    e.cursor.Load(ctx),
		Catalog:   catalog.Len(),
		Completed: ledger.Len(),
		Pending:   len(Delta(catalog, ledger)),
	}
}

// scanInto walks the tree, merges into catalog, saves it and advances the
// cursor. The cursor moves to the scan start time even when nothing new was
// found.
func (e *Engine) scanInto(ctx context.Context, catalog *state.Catalog) (int, error) {
	start := e.now()
	cursor := e.cursor.Load(ctx)

	found, err := e.scanner.Scan(ctx, e.root, cursor, e.mode)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", e.root, err)
	}

	added := catalog.Merge(found)
	if err := e.catalog.Save(ctx, catalog); err != nil {
		return 0, err
	}
	if err := e.advanceCursor(ctx, start); err != nil {
		return 0, err
	}
	return added, nil
}

func (e *Engine) advanceCursor(ctx context.Context, ts time.Time) error {
	if e.mode != state.ModeIncremental {
		return nil
	}
	if err := e.cursor.Save(ctx, ts, e.mode); err != nil {
		return fmt.Errorf("advance scan cursor: %w", err)
	}
	return nil
}

// Delta returns the catalog items whose identity is not in the ledger, in
// catalog order.
func Delta(catalog *state.Catalog, ledger *state.Ledger) []state.WorkItem {
	var out []state.WorkItem
	for _, item := range catalog.Items() {
		if !ledger.Has(item.Identity) {
			out = append(out, item)
		}
	}
	return out
}
