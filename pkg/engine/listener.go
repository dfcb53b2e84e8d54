package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mocify/mocify/pkg/httputil"
	"github.com/mocify/mocify/pkg/metrics"
	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// State is a listener lifecycle state.
type State int32

// Listener states, in lifecycle order. Stopped is terminal.
const (
	StateCreated State = iota
	StateBound
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	StateCreated:      {StateBound, StateStopped},
	StateBound:        {StateServing, StateStopped},
	StateServing:      {StateShuttingDown, StateStopped},
	StateShuttingDown: {StateStopped},
}

// Messages written by the listener itself.
const (
	notFoundMessage      = "Route not found"
	internalErrorMessage = "Internal server error"
)

// Listener owns one bound port and answers every request on it from the
// routes of a single collection.
type Listener struct {
	port         int
	collectionID string
	addr         string

	routes  store.RouteStore
	synth   *Synthesizer
	journal *requestlog.MemoryStore
	metrics *metrics.Collector
	log     *slog.Logger
	grace   time.Duration

	srv *http.Server
	ln  *trackedListener

	inFlight atomic.Int64

	mu        sync.Mutex
	state     State
	startedAt time.Time
	done      chan struct{}
}

func newListener(port int, collectionID string, routes store.RouteStore, o *options) *Listener {
	l := &Listener{
		port:         port,
		collectionID: collectionID,
		addr:         net.JoinHostPort(o.bindHost, strconv.Itoa(port)),
		routes:       routes,
		synth:        NewSynthesizer(o.log),
		journal:      requestlog.NewMemoryStore(o.maxLogEntries),
		metrics:      o.metrics,
		log:          o.log.With("port", port, "collection", collectionID),
		grace:        o.gracePeriod,
		state:        StateCreated,
		done:         make(chan struct{}),
	}
	l.srv = &http.Server{
		Handler:           NewCORSMiddleware(http.HandlerFunc(l.handle), l),
		ReadHeaderTimeout: o.readHeaderTimeout,
		WriteTimeout:      o.writeTimeout,
		IdleTimeout:       o.idleTimeout,
		ErrorLog:          slog.NewLogLogger(o.log.Handler(), slog.LevelDebug),
	}
	return l
}

// Port returns the port the listener was created for.
func (l *Listener) Port() int { return l.port }

// CollectionID returns the collection whose routes the listener serves.
func (l *Listener) CollectionID() string { return l.collectionID }

// State returns the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// StartedAt returns when the listener began serving.
func (l *Listener) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

// Done is closed once the listener reaches StateStopped.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Addr returns the bound address, or nil before binding.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// InFlight returns the number of requests currently being handled.
func (l *Listener) InFlight() int64 { return l.inFlight.Load() }

// Journal returns the requests this listener answered.
func (l *Listener) Journal() requestlog.Store { return l.journal }

func (l *Listener) transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, next := range transitions[l.state] {
		if next == to {
			l.state = to
			switch to {
			case StateServing:
				l.startedAt = time.Now()
			case StateStopped:
				close(l.done)
			}
			return nil
		}
	}
	return fmt.Errorf("listener %d: invalid transition %s -> %s", l.port, l.state, to)
}

// bind claims the port. On failure the listener is Stopped and the error
// wraps ErrBind.
func (l *Listener) bind(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		_ = l.transition(StateStopped)
		return bindError(err)
	}
	l.ln = &trackedListener{Listener: ln, closed: make(chan struct{})}
	return l.transition(StateBound)
}

// serve moves the listener to Serving and answers requests in the
// background until ctx is cancelled. exited runs once the listener has
// stopped.
func (l *Listener) serve(ctx context.Context, exited func()) error {
	if err := l.transition(StateServing); err != nil {
		return err
	}
	go func() {
		defer exited()
		l.run(ctx)
	}()
	return nil
}

// run blocks until ctx is cancelled, then drains in-flight requests for at
// most the grace period before closing their connections.
func (l *Listener) run(ctx context.Context) {
	errCh := make(chan error, 1)
	go func() { errCh <- l.srv.Serve(l.ln) }()

	select {
	case <-ctx.Done():
		_ = l.transition(StateShuttingDown)
		l.shutdown()
		<-errCh
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("listener stopped unexpectedly", "error", err)
		}
		_ = l.ln.Close()
	}

	_ = l.transition(StateStopped)
	l.log.Info("listener stopped")
}

func (l *Listener) shutdown() {
	graceCtx, cancel := context.WithTimeout(context.Background(), l.grace)
	defer cancel()

	err := l.srv.Shutdown(graceCtx)
	// Serve may not have tracked the socket yet.
	_ = l.ln.Close()
	if errors.Is(err, context.DeadlineExceeded) {
		l.log.Warn("grace period elapsed, closing in-flight connections", "grace", l.grace)
		_ = l.srv.Close()
	}
}

// socketClosed is closed once the listening socket no longer accepts.
func (l *Listener) socketClosed() <-chan struct{} {
	return l.ln.closed
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	start := time.Now()
	path := RequestPath(r)
	entry := &requestlog.Entry{
		Timestamp:  start,
		Method:     r.Method,
		Path:       path,
		Query:      r.URL.RawQuery,
		RemoteAddr: r.RemoteAddr,
	}
	defer func() {
		entry.Duration = time.Since(start)
		l.journal.Log(entry)
		l.metrics.RecordRequest(l.port, l.collectionID, metricMethod(r.Method), entry.StatusCode, entry.Matched, entry.Duration)
	}()

	routes, err := l.routes.ListRoutes(r.Context(), l.collectionID)
	if err != nil {
		l.log.Error("route lookup failed", "method", r.Method, "path", path, "error", err)
		entry.StatusCode = http.StatusInternalServerError
		entry.Error = err.Error()
		httputil.WriteInternalError(w, internalErrorMessage)
		return
	}

	rt := Match(r.Method, path, routes)
	if rt == nil {
		l.log.Debug("no route matched", "method", r.Method, "path", path)
		entry.StatusCode = http.StatusNotFound
		httputil.WriteNotFound(w, notFoundMessage)
		return
	}

	entry.Matched = true
	entry.RouteID = rt.ID
	status, err := l.synth.Respond(r.Context(), w, r, rt)
	entry.StatusCode = status
	if err != nil {
		entry.Error = err.Error()
		l.log.Debug("response not completed", "route", rt.ID, "error", err)
		return
	}
	l.log.Debug("route matched", "route", rt.ID, "method", r.Method, "path", path, "status", status)
}

// HasOptionsRoute implements OptionsChecker.
func (l *Listener) HasOptionsRoute(r *http.Request) bool {
	routes, err := l.routes.ListRoutes(r.Context(), l.collectionID)
	if err != nil {
		return false
	}
	return hasRoute(route.MethodOptions, RequestPath(r), routes)
}

// metricMethod bounds the method label to the known set.
func metricMethod(m string) string {
	for _, known := range route.Methods {
		if known.Is(m) {
			return m
		}
	}
	return "OTHER"
}

// trackedListener reports when the listening socket has been closed.
type trackedListener struct {
	net.Listener
	once   sync.Once
	closed chan struct{}
	err    error
}

func (t *trackedListener) Close() error {
	t.once.Do(func() {
		t.err = t.Listener.Close()
		close(t.closed)
	})
	return t.err
}
