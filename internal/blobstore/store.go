// Package blobstore persists named opaque blobs.
//
// The tagger keeps three independent tables (scan cursor, work catalog,
// completion ledger). Each is serialized by its owner and handed to a Store
// as one blob; the store only guarantees that a Write either fully replaces
// the previous blob or leaves it untouched.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNotFound is returned by Read when no blob with that name exists.
var ErrNotFound = errors.New("blob not found")

// Store reads and replaces named blobs.
type Store interface {
	// Read returns the blob contents, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the blob atomically.
	Write(ctx context.Context, name string, data []byte) error

	// Location names where the blobs live, for logs and status.
	Location() string

	// Close releases any underlying resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// SQLiteFileName is the database file used by the sqlite backend.
const SQLiteFileName = "state.db"

// Open creates the store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewDirStore(dir)
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown state backend %q (want %q or %q)", backend, BackendFile, BackendSQLite)
	}
}
