package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mocify/mocify/internal/storage"
	"github.com/mocify/mocify/pkg/route"
)

// freePort returns a loopback port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func baseURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// testClient never reuses connections so a stopped listener is observed
// immediately.
func testClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

type response struct {
	status int
	header http.Header
	body   string
}

func doRequest(t *testing.T, method, url string) response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := testClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: string(body)}
}

// rawRequest sends a request over a bare TCP connection and returns the
// raw response bytes up to connection close.
func rawRequest(t *testing.T, port int, method, path string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, method+" "+path+" HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)

	data, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)
	return string(data)
}

// seededStore returns a memory store holding one collection with routes.
func seededStore(t *testing.T, collectionID string, port int, routes ...*route.Route) *storage.MemoryStore {
	t.Helper()
	st := storage.NewMemoryStore()
	addCollection(t, st, collectionID, port, routes...)
	return st
}

func addCollection(t *testing.T, st *storage.MemoryStore, collectionID string, port int, routes ...*route.Route) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.PutCollection(ctx, &route.Collection{ID: collectionID, Name: "collection " + collectionID, Port: port}))
	for _, rt := range routes {
		rt.CollectionID = collectionID
		require.NoError(t, st.PutRoute(ctx, rt))
	}
}

func newRoute(method route.Method, path string, status int, body string) *route.Route {
	rt := &route.Route{Name: method.String() + " " + path, Method: method, Path: path, StatusCode: status}
	if body != "" {
		rt.ResponseBody = route.StringPtr(body)
	}
	return rt
}

// failingStore fails every read.
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) ListRoutes(context.Context, string) ([]*route.Route, error) {
	return nil, errStoreDown
}

func (failingStore) GetCollection(context.Context, string) (*route.Collection, error) {
	return nil, errStoreDown
}

func (failingStore) ListCollections(context.Context) ([]*route.Collection, error) {
	return nil, errStoreDown
}

func headerLines(raw string) string {
	head, _, _ := strings.Cut(raw, "\r\n\r\n")
	return head
}
