package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vinitshetty/phototagger/internal/blobstore"
	"github.com/vinitshetty/phototagger/internal/identity"
)

// CompletionRecord marks an identity as done. Presence of the identity in the
// ledger is authoritative; the other fields are informational.
type CompletionRecord struct {
	Identity      string    `json:"identity"`
	FullPath      string    `json:"full_path"`
	CompletedTime time.Time `json:"completed_time"`
}

// Ledger is an insertion-ordered map of completion records.
type Ledger struct {
	order   []string
	records map[string]CompletionRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]CompletionRecord)}
}

// Len returns the number of completed identities.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Has reports whether identity is complete.
func (l *Ledger) Has(identity string) bool {
	_, ok := l.records[identity]
	return ok
}

// Get returns the record for identity.
func (l *Ledger) Get(identity string) (CompletionRecord, bool) {
	rec, ok := l.records[identity]
	return rec, ok
}

// Put inserts or overwrites rec. An overwritten record keeps its position.
func (l *Ledger) Put(rec CompletionRecord) {
	if _, ok := l.records[rec.Identity]; !ok {
		l.order = append(l.order, rec.Identity)
	}
	l.records[rec.Identity] = rec
}

// Records returns the records in ledger order.
func (l *Ledger) Records() []CompletionRecord {
	out := make([]CompletionRecord, len(l.order))
	for i, id := range l.order {
		out[i] = l.records[id]
	}
	return out
}

type ledgerBlob struct {
	Version int                `json:"version"`
	Records []CompletionRecord `json:"records"`
}

// LedgerTable persists the completion ledger. Every Record call rewrites the
// whole table, so cost per item grows with ledger size.
type LedgerTable struct {
	store      blobstore.Store
	normalizer identity.Normalizer
	logger     *slog.Logger
	now        func() time.Time

	ledger *Ledger
}

// NewLedgerTable creates a ledger table. The normalizer is used to derive
// identities when migrating a legacy one-path-per-line ledger.
func NewLedgerTable(store blobstore.Store, normalizer identity.Normalizer, logger *slog.Logger) *LedgerTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerTable{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the completion timestamp source.
func (t *LedgerTable) SetClock(now func() time.Time) {
	t.now = now
}

// Load reads the persisted ledger and caches it for Record. A blob that is
// not JSON is treated as a legacy list of raw paths; a JSON blob that fails
// validation is treated as empty.
func (t *LedgerTable) Load(ctx context.Context) *Ledger {
	t.ledger = t.read(ctx)
	return t.ledger
}

func (t *LedgerTable) read(ctx context.Context) *Ledger {
	data, err := t.store.Read(ctx, LedgerBlob)
	if errors.Is(err, blobstore.ErrNotFound) {
		return NewLedger()
	}
	if err != nil {
		t.logger.Warn("completion ledger unreadable, starting empty", "error", err)
		return NewLedger()
	}

	if !json.Valid(data) {
		l := ParseLegacyLedger(data, t.normalizer)
		t.logger.Info("migrated legacy completion ledger", "records", l.Len())
		return l
	}

	var blob ledgerBlob
	if err := decodeValidated(ledgerSchema, data, &blob); err != nil {
		t.logger.Warn("completion ledger corrupt, starting empty", "error", err)
		return NewLedger()
	}

	l := NewLedger()
	for _, rec := range blob.Records {
		l.Put(rec)
	}
	return l
}

// Ledger returns the cached ledger, loading it on first use.
func (t *LedgerTable) Ledger(ctx context.Context) *Ledger {
	if t.ledger == nil {
		return t.Load(ctx)
	}
	return t.ledger
}

// Record marks identity complete and persists the full table. Recording an
// identity twice leaves exactly one entry for it.
func (t *LedgerTable) Record(ctx context.Context, id, fullPath string) error {
	l := t.Ledger(ctx)
	l.Put(CompletionRecord{
		Identity:      id,
		FullPath:      fullPath,
		CompletedTime: t.now().UTC(),
	})
	return t.Save(ctx, l)
}

// Save rewrites the whole ledger and makes l the cached copy.
func (t *LedgerTable) Save(ctx context.Context, l *Ledger) error {
	t.ledger = l
	data, err := json.MarshalIndent(ledgerBlob{Version: tableVersion, Records: l.Records()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal completion ledger: %w", err)
	}
	if err := t.store.Write(ctx, LedgerBlob, data); err != nil {
		return fmt.Errorf("save completion ledger: %w", err)
	}
	return nil
}

// ParseLegacyLedger reads one raw path per line. Records get a zero
// CompletedTime and identity normalizer.Normalize(line).
func ParseLegacyLedger(data []byte, normalizer identity.Normalizer) *Ledger {
	l := NewLedger()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id := normalizer.Normalize(line)
		if l.Has(id) {
			continue
		}
		l.Put(CompletionRecord{Identity: id, FullPath: line})
	}
	return l
}
