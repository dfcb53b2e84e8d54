package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// ServerStatus describes a collection's mock server.
type ServerStatus struct {
	Port           int    `json:"port"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName,omitempty"`
	IsRunning      bool   `json:"isRunning"`
	BaseURL        string `json:"baseUrl"`
}

// Engine starts and stops mock servers for stored collections. It only
// reads from the store.
type Engine struct {
	store      store.Reader
	registry   *Registry
	publicHost string
	log        *slog.Logger

	// startMu makes the per-collection check and the bind in StartServer
	// one step.
	startMu sync.Mutex
}

// New creates an Engine over st. Pass the root logger: the engine and its
// registry each add their own component attribute.
func New(st store.Reader, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		store:      st,
		registry:   NewRegistry(st, opts...),
		publicHost: o.publicHost,
		log:        o.log.With("component", "engine"),
	}
}

// Registry exposes the underlying registry.
func (e *Engine) Registry() *Registry { return e.registry }

// BaseURL returns the URL clients use to reach a mock server on port.
func (e *Engine) BaseURL(port int) string {
	return "http://" + net.JoinHostPort(e.publicHost, strconv.Itoa(port))
}

// StartServer starts the mock server of a collection on the collection's port.
func (e *Engine) StartServer(ctx context.Context, collectionID string) (*ServerStatus, error) {
	c, err := e.store.GetCollection(ctx, collectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, opError("start", 0, collectionID, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, opError("start", 0, collectionID, fmt.Errorf("load collection: %w", err))
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()

	// A collection whose port was edited while it was serving keeps its old
	// listener until it is stopped; it never gets a second one.
	if ports := e.registry.CollectionPorts(c.ID); len(ports) > 0 && ports[0] != c.Port {
		return nil, opError("start", c.Port, c.ID,
			fmt.Errorf("%w: collection is serving on port %d", ErrAlreadyRunning, ports[0]))
	}

	if _, err := e.registry.Start(ctx, c.ID, c.Port); err != nil {
		return nil, err
	}
	e.log.Info("server started", "collection", c.ID, "port", c.Port)
	return e.status(c, c.Port, true), nil
}

// StopServer stops the mock server on port.
func (e *Engine) StopServer(port int) error {
	if err := e.registry.Stop(port); err != nil {
		return err
	}
	e.log.Info("server stopped", "port", port)
	return nil
}

// ListRunningServers joins every stored collection against the registry by
// collection ID. A running collection is reported on the port its listener
// is bound to, which differs from the stored port after a port edit.
// Collections without a listener are reported with IsRunning false.
func (e *Engine) ListRunningServers(ctx context.Context) ([]ServerStatus, error) {
	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	live := make(map[string]int)
	for _, info := range e.registry.Snapshot() {
		if _, seen := live[info.CollectionID]; !seen {
			live[info.CollectionID] = info.Port
		}
	}

	out := make([]ServerStatus, 0, len(collections))
	for _, c := range collections {
		if port, ok := live[c.ID]; ok {
			out = append(out, *e.status(c, port, true))
			continue
		}
		out = append(out, *e.status(c, c.Port, false))
	}
	return out, nil
}

// ReleaseCollection stops every listener serving collectionID. Call it
// before deleting a collection.
func (e *Engine) ReleaseCollection(_ context.Context, collectionID string) error {
	var errs []error
	for _, port := range e.registry.CollectionPorts(collectionID) {
		if err := e.registry.Stop(port); err != nil && !errors.Is(err, ErrNotRunning) {
			errs = append(errs, err)
			continue
		}
		e.log.Info("collection released", "collection", collectionID, "port", port)
	}
	return errors.Join(errs...)
}

// StartAll starts a server for every stored collection that is not already
// running. Failures are logged and returned together; they do not stop the
// remaining collections from starting.
func (e *Engine) StartAll(ctx context.Context) error {
	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	var errs []error
	for _, c := range collections {
		if port, ok := e.registry.CollectionPort(c.ID); ok {
			if port != c.Port {
				e.log.Warn("collection port changed while serving; stop the server to move it",
					"collection", c.ID, "serving", port, "stored", c.Port)
			}
			continue
		}
		if _, err := e.StartServer(ctx, c.ID); err != nil {
			e.log.Warn("failed to start server", "collection", c.ID, "port", c.Port, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops every server and waits for in-flight requests to drain,
// or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.registry.StopAll(ctx)
}

// Requests returns the journal of the server on port, newest first.
func (e *Engine) Requests(port int, filter *requestlog.Filter) ([]*requestlog.Entry, error) {
	l, ok := e.registry.Listener(port)
	if !ok {
		return nil, opError("requests", port, "", ErrNotRunning)
	}
	return l.Journal().List(filter), nil
}

func (e *Engine) status(c *route.Collection, port int, running bool) *ServerStatus {
	return &ServerStatus{
		Port:           port,
		CollectionID:   c.ID,
		CollectionName: c.Name,
		IsRunning:      running,
		BaseURL:        e.BaseURL(port),
	}
}
