// Package store defines the persistence contracts mocify's engine reads from.
//
// The engine never writes persisted state: it only needs the current routes
// of a collection on every request, and the collection list to resolve ports
// and names. Writers (the seed loader, an eventual administrative layer) use
// the Writer interface.
//
// Two backends ship with mocify:
//   - internal/storage: thread-safe in-memory maps (tests, --storage memory)
//   - pkg/store/sqlite: a SQLite database file (default)
package store

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrClosed    = errors.New("store is closed")
)

// Backend represents a storage backend type.
type Backend string

const (
	// BackendSQLite uses an embedded SQLite database file
	BackendSQLite Backend = "sqlite"
	// BackendMemory uses in-memory storage (no persistence)
	BackendMemory Backend = "memory"
)

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendSQLite, "":
		return BackendSQLite, nil
	case BackendMemory:
		return BackendMemory, nil
	}
	return "", fmt.Errorf("unknown storage backend %q (want sqlite or memory)", s)
}
