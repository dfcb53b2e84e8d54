package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mocify/mocify/pkg/metrics"
	"github.com/mocify/mocify/pkg/store"
)

// ListenerInfo is a point-in-time view of one registered listener.
type ListenerInfo struct {
	Port         int       `json:"port"`
	CollectionID string    `json:"collectionId"`
	State        State     `json:"state"`
	StartedAt    time.Time `json:"startedAt"`
	InFlight     int64     `json:"inFlight"`
}

// Registry maps ports to running listeners and is the only place listeners
// are started or stopped. An entry's presence is what "running" means.
type Registry struct {
	routes store.RouteStore
	opts   options
	log    *slog.Logger

	mu      sync.Mutex
	entries map[int]*handle
	// pending holds ports whose bind is in progress.
	pending map[int]string
}

type handle struct {
	listener *Listener
	cancel   context.CancelFunc
}

// NewRegistry creates an empty registry whose listeners read routes from
// routes.
func NewRegistry(routes store.RouteStore, opts ...Option) *Registry {
	o := newOptions(opts)
	return &Registry{
		routes:  routes,
		opts:    o,
		log:     o.log.With("component", "registry"),
		entries: make(map[int]*handle),
		pending: make(map[int]string),
	}
}

// Start binds a listener for collectionID on port and begins serving.
// It fails with ErrAlreadyRunning when the port already has a listener (or
// one is being bound) and with ErrBind when the OS refuses the port; in
// both cases the registry is unchanged.
func (r *Registry) Start(ctx context.Context, collectionID string, port int) (*Listener, error) {
	if port < 1 || port > 65535 {
		r.opts.metrics.RecordStart(metrics.StartError)
		return nil, opError("start", port, collectionID, ErrInvalidPort)
	}

	r.mu.Lock()
	_, running := r.entries[port]
	_, binding := r.pending[port]
	if running || binding {
		r.mu.Unlock()
		r.opts.metrics.RecordStart(metrics.StartAlreadyRunning)
		return nil, opError("start", port, collectionID, ErrAlreadyRunning)
	}
	r.pending[port] = collectionID
	r.mu.Unlock()

	l := newListener(port, collectionID, r.routes, &r.opts)
	bindErr := l.bind(ctx)

	r.mu.Lock()
	delete(r.pending, port)
	if bindErr != nil {
		r.mu.Unlock()
		r.opts.metrics.RecordStart(metrics.StartBindError)
		r.log.Warn("listener bind failed", "port", port, "collection", collectionID, "error", bindErr)
		return nil, opError("start", port, collectionID, bindErr)
	}
	serveCtx, cancel := context.WithCancel(context.Background())
	if err := l.serve(serveCtx, func() { r.forget(port, l) }); err != nil {
		r.mu.Unlock()
		cancel()
		_ = l.ln.Close()
		r.opts.metrics.RecordStart(metrics.StartError)
		return nil, opError("start", port, collectionID, err)
	}
	r.entries[port] = &handle{listener: l, cancel: cancel}
	r.opts.metrics.SetListenersRunning(len(r.entries))
	r.mu.Unlock()

	r.opts.metrics.RecordStart(metrics.StartOK)
	r.log.Info("listener started", "port", port, "collection", collectionID, "addr", l.Addr().String())
	return l, nil
}

// Stop removes the listener on port and signals it to shut down. It returns
// once the port no longer accepts connections; in-flight requests keep
// draining for up to the grace period afterwards.
func (r *Registry) Stop(port int) error {
	r.mu.Lock()
	h, ok := r.entries[port]
	if !ok {
		r.mu.Unlock()
		return opError("stop", port, "", ErrNotRunning)
	}
	delete(r.entries, port)
	r.opts.metrics.SetListenersRunning(len(r.entries))
	r.mu.Unlock()

	h.cancel()
	<-h.listener.socketClosed()
	r.log.Info("listener stopping", "port", port, "collection", h.listener.CollectionID())
	return nil
}

// StopAll stops every listener and waits until each has fully stopped or
// ctx ends.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.entries))
	for port, h := range r.entries {
		handles = append(handles, h)
		delete(r.entries, port)
	}
	r.opts.metrics.SetListenersRunning(0)
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	var errs []error
	for _, h := range handles {
		select {
		case <-h.listener.Done():
		case <-ctx.Done():
			errs = append(errs, opError("stop", h.listener.Port(), h.listener.CollectionID(),
				fmt.Errorf("waiting for shutdown: %w", ctx.Err())))
		}
	}
	return errors.Join(errs...)
}

// StatusOf reports whether port has a running listener.
func (r *Registry) StatusOf(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[port]
	return ok
}

// Listener returns the running listener on port.
func (r *Registry) Listener(port int) (*Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[port]
	if !ok {
		return nil, false
	}
	return h.listener, true
}

// CollectionPort returns the lowest port serving collectionID, if any.
func (r *Registry) CollectionPort(collectionID string) (int, bool) {
	ports := r.CollectionPorts(collectionID)
	if len(ports) == 0 {
		return 0, false
	}
	return ports[0], true
}

// CollectionPorts returns every port with a listener for collectionID, in
// ascending order. Registry.Start keys on ports only, so direct callers can
// put one collection on several ports.
func (r *Registry) CollectionPorts(collectionID string) []int {
	r.mu.Lock()
	var ports []int
	for port, h := range r.entries {
		if h.listener.CollectionID() == collectionID {
			ports = append(ports, port)
		}
	}
	r.mu.Unlock()
	sort.Ints(ports)
	return ports
}

// Snapshot returns the registered listeners ordered by port.
func (r *Registry) Snapshot() []ListenerInfo {
	r.mu.Lock()
	infos := make([]ListenerInfo, 0, len(r.entries))
	for port, h := range r.entries {
		infos = append(infos, ListenerInfo{
			Port:         port,
			CollectionID: h.listener.CollectionID(),
			State:        h.listener.State(),
			StartedAt:    h.listener.StartedAt(),
			InFlight:     h.listener.InFlight(),
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Port < infos[j].Port })
	return infos
}

// forget drops the entry for a listener that exited on its own.
func (r *Registry) forget(port int, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.entries[port]; ok && h.listener == l {
		h.cancel()
		delete(r.entries, port)
		r.opts.metrics.SetListenersRunning(len(r.entries))
	}
}
