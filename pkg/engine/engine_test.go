package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mocify/mocify/internal/storage"
	"github.com/mocify/mocify/pkg/metrics"
	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

func newTestEngine(t *testing.T, st store.Reader, opts ...Option) *Engine {
	t.Helper()
	e := New(st, opts...)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func TestEngine_StartServer(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	st := seededStore(t, "users", port, newRoute(route.MethodGet, "/users", 200, "[]"))
	e := newTestEngine(t, st, WithPublicHost("mock.local"))

	status, err := e.StartServer(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, ServerStatus{
		Port:           port,
		CollectionID:   "users",
		CollectionName: "collection users",
		IsRunning:      true,
		BaseURL:        "http://mock.local:" + strconv.Itoa(port),
	}, *status)

	assert.Equal(t, "[]", doRequest(t, http.MethodGet, baseURL(port)+"/users").body)
}

func TestEngine_StartServerErrors(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	st := seededStore(t, "c", port)
	e := newTestEngine(t, st)

	_, err := e.StartServer(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCollectionNotFound)
	var serr *ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "missing", serr.CollectionID)

	_, err = e.StartServer(context.Background(), "c")
	require.NoError(t, err)
	_, err = e.StartServer(context.Background(), "c")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	failing := newTestEngine(t, failingStore{})
	_, err = failing.StartServer(context.Background(), "c")
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotErrorIs(t, err, ErrCollectionNotFound)
}

func TestEngine_StopServer(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	e := newTestEngine(t, seededStore(t, "c", port))

	err := e.StopServer(port)
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = e.StartServer(context.Background(), "c")
	require.NoError(t, err)
	require.NoError(t, e.StopServer(port))
	assert.ErrorIs(t, e.StopServer(port), ErrNotRunning)
}

func TestEngine_ListRunningServers(t *testing.T) {
	t.Parallel()

	portA, portB := freePort(t), freePort(t)
	st := seededStore(t, "a", portA)
	addCollection(t, st, "b", portB)
	e := newTestEngine(t, st)

	_, err := e.StartServer(context.Background(), "b")
	require.NoError(t, err)

	list, err := e.ListRunningServers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[string]ServerStatus{}
	for _, s := range list {
		byID[s.CollectionID] = s
	}
	assert.False(t, byID["a"].IsRunning)
	assert.True(t, byID["b"].IsRunning)
	assert.Equal(t, portB, byID["b"].Port)
	assert.Equal(t, "http://localhost:"+strconv.Itoa(portB), byID["b"].BaseURL)

	_, err = newTestEngine(t, failingStore{}).ListRunningServers(context.Background())
	assert.Error(t, err)
}

func TestEngine_ReleaseCollection(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	e := newTestEngine(t, seededStore(t, "c", port))

	require.NoError(t, e.ReleaseCollection(context.Background(), "c"), "nothing running is fine")

	_, err := e.StartServer(context.Background(), "c")
	require.NoError(t, err)
	require.NoError(t, e.ReleaseCollection(context.Background(), "c"))
	assert.False(t, e.Registry().StatusOf(port))
}

func TestEngine_PortEditedWhileServing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	oldPort, newPort := freePort(t), freePort(t)
	st := seededStore(t, "c", oldPort, newRoute(route.MethodGet, "/who", 200, "c"))
	e := newTestEngine(t, st)

	_, err := e.StartServer(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, st.PutCollection(ctx, &route.Collection{ID: "c", Name: "collection c", Port: newPort}))

	list, err := e.ListRunningServers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRunning, "the old listener still serves")
	assert.Equal(t, oldPort, list[0].Port)
	assert.Equal(t, "http://localhost:"+strconv.Itoa(oldPort), list[0].BaseURL)

	_, err = e.StartServer(ctx, "c")
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), strconv.Itoa(oldPort))
	assert.False(t, e.Registry().StatusOf(newPort))

	require.NoError(t, e.StartAll(ctx))
	assert.Equal(t, []int{oldPort}, e.Registry().CollectionPorts("c"))

	// Moving the collection is stop then start.
	require.NoError(t, e.StopServer(oldPort))
	status, err := e.StartServer(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, newPort, status.Port)
	assert.Equal(t, "c", doRequest(t, http.MethodGet, baseURL(newPort)+"/who").body)
}

func TestEngine_ReleaseCollectionStopsEveryListener(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	portA, portB := freePort(t), freePort(t)
	e := newTestEngine(t, seededStore(t, "c", portA))

	_, err := e.StartServer(ctx, "c")
	require.NoError(t, err)
	// The registry itself only keys on ports.
	_, err = e.Registry().Start(ctx, "c", portB)
	require.NoError(t, err)
	require.Equal(t, []int{portA, portB}, e.Registry().CollectionPorts("c"))

	require.NoError(t, e.ReleaseCollection(ctx, "c"))
	assert.Empty(t, e.Registry().Snapshot())
	assert.Empty(t, e.Registry().CollectionPorts("c"))
}

func TestEngine_StartAll(t *testing.T) {
	t.Parallel()

	portA, portB := freePort(t), freePort(t)
	st := seededStore(t, "a", portA)
	addCollection(t, st, "b", portB)
	e := newTestEngine(t, st)

	_, err := e.StartServer(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, e.StartAll(context.Background()))
	assert.True(t, e.Registry().StatusOf(portA))
	assert.True(t, e.Registry().StatusOf(portB))
}

func TestEngine_StartAllReportsFailures(t *testing.T) {
	t.Parallel()

	portA, portB := freePort(t), freePort(t)
	st := seededStore(t, "a", portA)
	addCollection(t, st, "b", portB)

	// Another engine owns portA, so it is busy at the OS level.
	other := newTestEngine(t, st)
	_, err := other.StartServer(context.Background(), "a")
	require.NoError(t, err)

	e := newTestEngine(t, st)
	err = e.StartAll(context.Background())
	require.ErrorIs(t, err, ErrBind)
	assert.False(t, e.Registry().StatusOf(portA))
	assert.True(t, e.Registry().StatusOf(portB))
}

func TestEngine_ShutdownStopsEverything(t *testing.T) {
	t.Parallel()

	portA, portB := freePort(t), freePort(t)
	st := seededStore(t, "a", portA)
	addCollection(t, st, "b", portB)
	e := New(st)

	require.NoError(t, e.StartAll(context.Background()))
	la, _ := e.Registry().Listener(portA)
	lb, _ := e.Registry().Listener(portB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	assert.Empty(t, e.Registry().Snapshot())
	assert.Equal(t, StateStopped, la.State())
	assert.Equal(t, StateStopped, lb.State())
}

func TestEngine_Requests(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	e := newTestEngine(t, seededStore(t, "c", port, newRoute(route.MethodGet, "/r", 200, "")))

	_, err := e.Requests(port, nil)
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = e.StartServer(context.Background(), "c")
	require.NoError(t, err)
	doRequest(t, http.MethodGet, baseURL(port)+"/r")

	require.Eventually(t, func() bool {
		entries, err := e.Requests(port, &requestlog.Filter{Limit: 10})
		return err == nil && len(entries) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_Metrics(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	m := metrics.NewCollector()
	e := newTestEngine(t, seededStore(t, "c", port, newRoute(route.MethodGet, "/m", 200, "")), WithMetrics(m))

	_, err := e.StartServer(context.Background(), "c")
	require.NoError(t, err)
	_, err = e.StartServer(context.Background(), "c")
	require.Error(t, err)
	doRequest(t, http.MethodGet, baseURL(port)+"/m")

	require.Eventually(t, func() bool {
		families, err := m.Registry().Gather()
		if err != nil {
			return false
		}
		for _, f := range families {
			if f.GetName() == "mocify_requests_total" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_LoggersCarryOneComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	e := New(storage.NewMemoryStore(), WithLogger(log))

	e.log.Info("from engine")
	e.registry.log.Info("from registry")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 1, strings.Count(lines[0], `"component"`))
	assert.Contains(t, lines[0], `"component":"engine"`)
	assert.Equal(t, 1, strings.Count(lines[1], `"component"`))
	assert.Contains(t, lines[1], `"component":"registry"`)
}
