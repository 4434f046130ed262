package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vinitshetty/phototagger/internal/blobstore"
)

// ScanMode selects how the scanner filters candidates.
type ScanMode string

const (
	// ModeBacklog accepts every discovered file regardless of the cursor.
	ModeBacklog ScanMode = "backlog"
	// ModeIncremental accepts only files modified after the cursor.
	ModeIncremental ScanMode = "incremental"
)

// ParseScanMode accepts "backlog" or "incremental" (case-insensitive).
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBacklog:
		return ModeBacklog, nil
	case ModeIncremental:
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("invalid scan mode %q (want %q or %q)", s, ModeBacklog, ModeIncremental)
	}
}

// Cursor records when the tree was last scanned.
// The zero Cursor means "never scanned".
type Cursor struct {
	LastScan time.Time `json:"last_scan"`
	Mode     ScanMode  `json:"mode,omitempty"`
}

// IsZero reports whether no scan has been recorded.
func (c Cursor) IsZero() bool {
	return c.LastScan.IsZero()
}

// CursorTable persists the scan cursor.
type CursorTable struct {
	store  blobstore.Store
	logger *slog.Logger
}

// NewCursorTable creates a cursor table over store.
func NewCursorTable(store blobstore.Store, logger *slog.Logger) *CursorTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &CursorTable{store: store, logger: logger}
}

// Load returns the persisted cursor. Missing, unreadable or malformed state
// yields the zero cursor; it is never an error.
func (t *CursorTable) Load(ctx context.Context) Cursor {
	data, err := t.store.Read(ctx, CursorBlob)
	if errors.Is(err, blobstore.ErrNotFound) {
		return Cursor{}
	}
	if err != nil {
		t.logger.Warn("scan state unreadable, treating as never scanned", "error", err)
		return Cursor{}
	}

	var c Cursor
	if err := decodeValidated(cursorSchema, data, &c); err != nil {
		t.logger.Warn("scan state corrupt, treating as never scanned", "error", err)
		return Cursor{}
	}
	return c
}

// Save persists ts as the new cursor.
func (t *CursorTable) Save(ctx context.Context, ts time.Time, mode ScanMode) error {
	data, err := json.MarshalIndent(Cursor{LastScan: ts.UTC(), Mode: mode}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scan state: %w", err)
	}
	if err := t.store.Write(ctx, CursorBlob, data); err != nil {
		return fmt.Errorf("save scan state: %w", err)
	}
	return nil
}
