package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mocify/mocify/pkg/route"
)

func TestListener_StateMachine(t *testing.T) {
	t.Parallel()

	o := newOptions(nil)
	l := newListener(freePort(t), "c", failingStore{}, &o)
	assert.Equal(t, StateCreated, l.State())

	assert.Error(t, l.transition(StateServing), "cannot serve before binding")
	require.NoError(t, l.bind(context.Background()))
	assert.Equal(t, StateBound, l.State())

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	require.NoError(t, l.serve(ctx, func() { close(exited) }))
	assert.Equal(t, StateServing, l.State())
	assert.False(t, l.StartedAt().IsZero())

	cancel()
	<-exited
	assert.Equal(t, StateStopped, l.State())
	assert.Error(t, l.transition(StateServing), "stopped is terminal")
	assert.Error(t, l.transition(StateBound))

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestListener_BindFailureStops(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	o := newOptions(nil)
	holder := newListener(port, "a", failingStore{}, &o)
	require.NoError(t, holder.bind(context.Background()))
	defer holder.ln.Close()

	l := newListener(port, "b", failingStore{}, &o)
	err := l.bind(context.Background())
	assert.ErrorIs(t, err, ErrBind)
	assert.Equal(t, StateStopped, l.State())
}

func TestListener_StoreFailureAnswers500(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	reg := NewRegistry(failingStore{})
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })

	l, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp := doRequest(t, http.MethodGet, baseURL(port)+"/anything")
		assert.Equal(t, http.StatusInternalServerError, resp.status)
		assert.Equal(t, internalErrorMessage, resp.body)
		assert.NotContains(t, resp.body, errStoreDown.Error())
	}

	// The listener keeps serving after per-request failures.
	assert.Equal(t, StateServing, l.State())
	require.Eventually(t, func() bool { return l.Journal().Count() == 2 }, time.Second, 5*time.Millisecond)
	entries := l.Journal().List(nil)
	assert.Equal(t, errStoreDown.Error(), entries[0].Error)
}

func TestListener_UnknownPath404AnyMethod(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	st := seededStore(t, "c", port, newRoute(route.MethodGet, "/known", 200, "ok"))
	reg := NewRegistry(st)
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	methods := []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "PROPFIND"}
	for _, m := range methods {
		resp := doRequest(t, m, baseURL(port)+"/unknown")
		assert.Equal(t, http.StatusNotFound, resp.status, m)
		assert.Equal(t, notFoundMessage, resp.body, m)
	}

	resp := doRequest(t, http.MethodHead, baseURL(port)+"/unknown")
	assert.Equal(t, http.StatusNotFound, resp.status)

	// Known path, wrong method.
	resp = doRequest(t, http.MethodPost, baseURL(port)+"/known")
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestListener_EncodedPathsReachable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	port := freePort(t)
	st := seededStore(t, "c", port,
		newRoute(route.MethodGet, "/caf%C3%A9", 200, "cafe"),
		newRoute(route.MethodGet, "/hello%20world", 200, "hello"),
	)

	// The decoded forms are refused up front instead of never matching.
	for _, p := range []string{"/café", "/hello world"} {
		rt := newRoute(route.MethodPost, p, 200, "")
		rt.CollectionID = "c"
		var verr *route.ValidationError
		require.ErrorAs(t, st.PutRoute(ctx, rt), &verr, p)
		assert.Equal(t, "path", verr.Field)
	}

	reg := NewRegistry(st)
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(ctx, "c", port)
	require.NoError(t, err)

	assert.Equal(t, "cafe", doRequest(t, http.MethodGet, baseURL(port)+"/café").body)
	assert.Equal(t, "hello", doRequest(t, http.MethodGet, baseURL(port)+"/hello%20world").body)
	assert.Contains(t, rawRequest(t, port, http.MethodGet, "/caf%C3%A9"), "\r\n\r\ncafe")
}

func TestListener_RouteEditsApplyWithoutRestart(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	st := seededStore(t, "c", port)
	reg := NewRegistry(st)
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, doRequest(t, http.MethodGet, baseURL(port)+"/late").status)

	rt := newRoute(route.MethodGet, "/late", http.StatusAccepted, "now")
	rt.CollectionID = "c"
	require.NoError(t, st.PutRoute(context.Background(), rt))

	resp := doRequest(t, http.MethodGet, baseURL(port)+"/late")
	assert.Equal(t, http.StatusAccepted, resp.status)
	assert.Equal(t, "now", resp.body)
}

func TestListener_ResponseShape(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	ok := newRoute(route.MethodPost, "/ok", http.StatusCreated, `{"ok":true}`)
	cased := newRoute(route.MethodGet, "/cased", http.StatusOK, "x")
	cased.ResponseHeaders = route.HeaderSet{{Name: "x-Request-ID", Value: "abc"}}
	noContent := newRoute(route.MethodDelete, "/gone", http.StatusNoContent, "still sent")

	st := seededStore(t, "c", port, ok, cased, noContent)
	reg := NewRegistry(st)
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	t.Run("default content type", func(t *testing.T) {
		start := time.Now()
		resp := doRequest(t, http.MethodPost, baseURL(port)+"/ok")
		assert.Equal(t, http.StatusCreated, resp.status)
		assert.Equal(t, "application/json", resp.header.Get("content-type"))
		assert.Equal(t, `{"ok":true}`, resp.body)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("header casing preserved on the wire", func(t *testing.T) {
		raw := rawRequest(t, port, http.MethodGet, "/cased")
		assert.Contains(t, headerLines(raw), "\r\nx-Request-ID: abc")
		assert.Contains(t, headerLines(raw), "\r\nAccess-Control-Allow-Origin: *")
	})

	t.Run("204 keeps configured body", func(t *testing.T) {
		raw := rawRequest(t, port, http.MethodDelete, "/gone")
		require.True(t, strings.HasPrefix(raw, "HTTP/1.1 204 No Content\r\n"), raw)
		assert.True(t, strings.HasSuffix(raw, "\r\n\r\nstill sent"), raw)
		assert.Contains(t, headerLines(raw), "Access-Control-Allow-Origin: *")
	})
}

func TestListener_DelayDoesNotBlockOtherRequests(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	slow := newRoute(route.MethodGet, "/slow", http.StatusOK, "slow")
	slow.DelayMs = route.IntPtr(200)
	fast := newRoute(route.MethodGet, "/fast", http.StatusOK, "fast")

	reg := NewRegistry(seededStore(t, "c", port, slow, fast))
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	var (
		wg                 sync.WaitGroup
		slowDone, fastDone time.Time
		slowResp           response
	)
	start := time.Now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowResp = doRequest(t, http.MethodGet, baseURL(port)+"/slow")
		slowDone = time.Now()
	}()

	time.Sleep(20 * time.Millisecond)
	fastResp := doRequest(t, http.MethodGet, baseURL(port)+"/fast")
	fastDone = time.Now()
	wg.Wait()

	assert.Equal(t, "fast", fastResp.body)
	assert.Equal(t, "slow", slowResp.body)
	assert.GreaterOrEqual(t, slowDone.Sub(start), 200*time.Millisecond)
	assert.True(t, fastDone.Before(slowDone), "fast request should finish first")
}

func TestListener_OptionsRouteBeatsPreflight(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	opts := newRoute(route.MethodOptions, "/custom", http.StatusOK, "mine")
	reg := NewRegistry(seededStore(t, "c", port, opts))
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	_, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	preflight := func(path string) response {
		req, err := http.NewRequest(http.MethodOptions, baseURL(port)+path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://app.test")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := testClient().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return response{status: resp.StatusCode, header: resp.Header}
	}

	custom := preflight("/custom")
	assert.Equal(t, http.StatusOK, custom.status)
	assert.Empty(t, custom.header.Get("Access-Control-Allow-Methods"))

	generic := preflight("/other")
	assert.Equal(t, http.StatusOK, generic.status)
	assert.Contains(t, generic.header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestListener_Journal(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	rt := newRoute(route.MethodGet, "/j", http.StatusOK, "")
	reg := NewRegistry(seededStore(t, "c", port, rt), WithMaxLogEntries(2))
	t.Cleanup(func() { _ = reg.StopAll(context.Background()) })
	l, err := reg.Start(context.Background(), "c", port)
	require.NoError(t, err)

	doRequest(t, http.MethodGet, baseURL(port)+"/j?x=1")
	doRequest(t, http.MethodGet, baseURL(port)+"/nope")
	doRequest(t, http.MethodGet, baseURL(port)+"/j")

	// Entries are recorded after the response is written.
	require.Eventually(t, func() bool {
		e := l.Journal().List(nil)
		return len(e) == 2 && e[0].Path == "/j"
	}, time.Second, 5*time.Millisecond)
	entries := l.Journal().List(nil)
	assert.Equal(t, "/j", entries[0].Path)
	assert.True(t, entries[0].Matched)
	assert.Equal(t, rt.ID, entries[0].RouteID)
	assert.Equal(t, "/nope", entries[1].Path)
	assert.False(t, entries[1].Matched)
	assert.Equal(t, http.StatusNotFound, entries[1].StatusCode)
}
