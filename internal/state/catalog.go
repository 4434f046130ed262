package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vinitshetty/phototagger/internal/blobstore"
)

// WorkItem is a file discovered as a candidate for tagging.
// It is never mutated after creation.
type WorkItem struct {
	Identity  string    `json:"identity"`
	FullPath  string    `json:"full_path"`
	ModTime   time.Time `json:"mod_time"`
	AddedTime time.Time `json:"added_time"`
}

// Catalog is an insertion-ordered set of work items keyed by identity.
// Iteration order is first-seen order and survives a save/load round trip.
type Catalog struct {
	order []string
	items map[string]WorkItem
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]WorkItem)}
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Has reports whether identity is catalogued.
func (c *Catalog) Has(identity string) bool {
	_, ok := c.items[identity]
	return ok
}

// Get returns the item for identity.
func (c *Catalog) Get(identity string) (WorkItem, bool) {
	item, ok := c.items[identity]
	return item, ok
}

// Add inserts item unless its identity is already present.
// It reports whether the item was added.
func (c *Catalog) Add(item WorkItem) bool {
	if _, ok := c.items[item.Identity]; ok {
		return false
	}
	c.items[item.Identity] = item
	c.order = append(c.order, item.Identity)
	return true
}

// Merge adds every item of other whose identity is not yet present,
// keeping the existing entry (and its AddedTime) for known identities.
// It returns the number of new items.
func (c *Catalog) Merge(other *Catalog) int {
	if other == nil {
		return 0
	}
	added := 0
	for _, id := range other.order {
		if c.Add(other.items[id]) {
			added++
		}
	}
	return added
}

// Items returns the items in catalog order.
func (c *Catalog) Items() []WorkItem {
	out := make([]WorkItem, len(c.order))
	for i, id := range c.order {
		out[i] = c.items[id]
	}
	return out
}

// Keys returns the identities in catalog order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}

type catalogBlob struct {
	Version int        `json:"version"`
	Items   []WorkItem `json:"items"`
}

// CatalogTable persists the work catalog as one ordered blob.
type CatalogTable struct {
	store  blobstore.Store
	logger *slog.Logger
}

// NewCatalogTable creates a catalog table over store.
func NewCatalogTable(store blobstore.Store, logger *slog.Logger) *CatalogTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogTable{store: store, logger: logger}
}

// Load returns the persisted catalog, or an empty one when the blob is
// missing, unreadable or malformed.
func (t *CatalogTable) Load(ctx context.Context) *Catalog {
	data, err := t.store.Read(ctx, CatalogBlob)
	if errors.Is(err, blobstore.ErrNotFound) {
		return NewCatalog()
	}
	if err != nil {
		t.logger.Warn("work catalog unreadable, starting empty", "error", err)
		return NewCatalog()
	}

	var blob catalogBlob
	if err := decodeValidated(catalogSchema, data, &blob); err != nil {
		t.logger.Warn("work catalog corrupt, starting empty", "error", err)
		return NewCatalog()
	}

	c := NewCatalog()
	for _, item := range blob.Items {
		c.Add(item)
	}
	return c
}

// Save rewrites the whole catalog.
func (t *CatalogTable) Save(ctx context.Context, c *Catalog) error {
	data, err := json.MarshalIndent(catalogBlob{Version: tableVersion, Items: c.Items()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal work catalog: %w", err)
	}
	if err := t.store.Write(ctx, CatalogBlob, data); err != nil {
		return fmt.Errorf("save work catalog: %w", err)
	}
	return nil
}
