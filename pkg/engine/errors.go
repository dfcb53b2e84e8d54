package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Test with errors.Is; read the context with errors.As on
// *ServerError.
var (
	// ErrAlreadyRunning means the port already has a listener in this engine.
	ErrAlreadyRunning = errors.New("server already running")

	// ErrNotRunning means the port has no listener in this engine.
	ErrNotRunning = errors.New("server not running")

	// ErrCollectionNotFound means the collection does not exist in the store.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrBind means the OS refused the port. The caller should pick another
	// port; the engine never retries on its own.
	ErrBind = errors.New("port unavailable")

	// ErrInvalidPort means the port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
)

// ServerError carries the operation, port and collection of a failure.
type ServerError struct {
	Op           string
	Port         int
	CollectionID string
	Err          error
}

func (e *ServerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Port != 0 {
		fmt.Fprintf(&b, " port %d", e.Port)
	}
	if e.CollectionID != "" {
		fmt.Fprintf(&b, " (collection %s)", e.CollectionID)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	return b.String()
}

func (e *ServerError) Unwrap() error { return e.Err }

func opError(op string, port int, collectionID string, err error) error {
	return &ServerError{Op: op, Port: port, CollectionID: collectionID, Err: err}
}

// bindError marks err as an OS-level bind failure while keeping the
// original *net.OpError reachable.
func bindError(err error) error {
	return fmt.Errorf("%w: %w", ErrBind, err)
}
