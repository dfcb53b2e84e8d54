package store

import (
	"context"

	"github.com/mocify/mocify/pkg/route"
)

// RouteStore supplies the routes of a collection. Implementations must be
// safe for concurrent use: the engine calls ListRoutes once per request,
// from many goroutines at once.
type RouteStore interface {
	// ListRoutes returns the current routes of a collection, newest first.
	// Returned routes are snapshots; callers may not mutate shared state
	// through them.
	ListRoutes(ctx context.Context, collectionID string) ([]*route.Route, error)
}

// CollectionStore resolves collections.
type CollectionStore interface {
	// GetCollection returns ErrNotFound if no collection has the given ID.
	GetCollection(ctx context.Context, id string) (*route.Collection, error)

	// ListCollections returns every collection, newest first.
	ListCollections(ctx context.Context) ([]*route.Collection, error)
}

// Reader is everything the engine reads.
type Reader interface {
	RouteStore
	CollectionStore
}

// Writer mutates stored definitions. The engine does not use it.
type Writer interface {
	// PutCollection creates or replaces a collection. Returns ErrDuplicate if
	// another collection already owns the port.
	PutCollection(ctx context.Context, c *route.Collection) error

	// DeleteCollection removes a collection and all of its routes.
	DeleteCollection(ctx context.Context, id string) error

	// PutRoute creates or replaces a route. Returns ErrNotFound if the
	// collection does not exist and ErrDuplicate if another route of the
	// collection already answers the same (method, path).
	PutRoute(ctx context.Context, r *route.Route) error

	// DeleteRoute removes a route by ID.
	DeleteRoute(ctx context.Context, id string) error
}

// Store is a full read/write backend.
type Store interface {
	Reader
	Writer

	// Close releases backend resources.
	Close() error
}
