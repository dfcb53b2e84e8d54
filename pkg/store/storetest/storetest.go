// Package storetest holds the behavioral contract every store.Store backend
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("collection round trip", func(t *testing.T) { testCollectionRoundTrip(t, newStore(t)) })
	t.Run("collection port unique", func(t *testing.T) { testCollectionPortUnique(t, newStore(t)) })
	t.Run("route round trip", func(t *testing.T) { testRouteRoundTrip(t, newStore(t)) })
	t.Run("route requires collection", func(t *testing.T) { testRouteRequiresCollection(t, newStore(t)) })
	t.Run("route method path unique", func(t *testing.T) { testRouteMethodPathUnique(t, newStore(t)) })
	t.Run("routes newest first", func(t *testing.T) { testRoutesNewestFirst(t, newStore(t)) })
	t.Run("delete collection cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("concurrent reads", func(t *testing.T) { testConcurrentReads(t, newStore(t)) })
}

// Collection builds a valid collection for tests.
func Collection(id string, port int) *route.Collection {
	return &route.Collection{ID: id, Name: "collection " + id, Port: port}
}

// Route builds a valid route for tests.
func Route(collectionID string, method route.Method, path string, status int) *route.Route {
	return &route.Route{
		CollectionID: collectionID,
		Name:         method.String() + " " + path,
		Method:       method,
		Path:         path,
		StatusCode:   status,
	}
}

func testCollectionRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Collection("users", 3001)
	c.Description = "user endpoints"
	require.NoError(t, s.PutCollection(ctx, c))

	got, err := s.GetCollection(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "collection users", got.Name)
	assert.Equal(t, "user endpoints", got.Description)
	assert.Equal(t, 3001, got.Port)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "users", list[0].ID)
}

func testCollectionPortUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("a", 3001)))
	err := s.PutCollection(ctx, Collection("b", 3001))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Re-putting the owner with the same port is an update.
	assert.NoError(t, s.PutCollection(ctx, Collection("a", 3001)))
}

func testRouteRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("c", 3002)))

	r := Route("c", route.MethodPost, "/orders", 201)
	r.ResponseBody = route.StringPtr(`{"ok":true}`)
	r.ResponseHeaders = route.HeaderSet{{Name: "X-B", Value: "2"}, {Name: "x-a", Value: "1"}}
	r.DelayMs = route.IntPtr(25)
	require.NoError(t, s.PutRoute(ctx, r))
	require.NotEmpty(t, r.ID)

	routes, err := s.ListRoutes(ctx, "c")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	got := routes[0]
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, route.MethodPost, got.Method)
	assert.Equal(t, "/orders", got.Path)
	assert.Equal(t, 201, got.StatusCode)
	assert.Equal(t, `{"ok":true}`, got.Body())
	assert.Equal(t, r.ResponseHeaders, got.ResponseHeaders)
	assert.Equal(t, 25*time.Millisecond, got.Delay())

	empty, err := s.ListRoutes(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.DeleteRoute(ctx, r.ID))
	assert.ErrorIs(t, s.DeleteRoute(ctx, r.ID), store.ErrNotFound)
}

func testRouteRequiresCollection(t *testing.T, s store.Store) {
	err := s.PutRoute(context.Background(), Route("ghost", route.MethodGet, "/", 200))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRouteMethodPathUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("c", 3003)))
	require.NoError(t, s.PutRoute(ctx, Route("c", route.MethodGet, "/x", 200)))

	err := s.PutRoute(ctx, Route("c", route.MethodGet, "/x", 500))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Same path, other method is fine; so is the same pair in another collection.
	assert.NoError(t, s.PutRoute(ctx, Route("c", route.MethodPost, "/x", 200)))
	require.NoError(t, s.PutCollection(ctx, Collection("d", 3004)))
	assert.NoError(t, s.PutRoute(ctx, Route("d", route.MethodGet, "/x", 200)))
}

func testRoutesNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("c", 3005)))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := Route("c", route.MethodGet, fmt.Sprintf("/r%d", i), 200)
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.PutRoute(ctx, r))
	}

	routes, err := s.ListRoutes(ctx, "c")
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, "/r2", routes[0].Path)
	assert.Equal(t, "/r1", routes[1].Path)
	assert.Equal(t, "/r0", routes[2].Path)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("c", 3006)))
	require.NoError(t, s.PutRoute(ctx, Route("c", route.MethodGet, "/a", 200)))

	require.NoError(t, s.DeleteCollection(ctx, "c"))
	routes, err := s.ListRoutes(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, routes)
	assert.ErrorIs(t, s.DeleteCollection(ctx, "c"), store.ErrNotFound)

	// The port is free again.
	assert.NoError(t, s.PutCollection(ctx, Collection("e", 3006)))
}

func testConcurrentReads(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutCollection(ctx, Collection("c", 3007)))
	require.NoError(t, s.PutRoute(ctx, Route("c", route.MethodGet, "/a", 200)))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			routes, err := s.ListRoutes(ctx, "c")
			if err == nil && len(routes) != 1 {
				err = fmt.Errorf("got %d routes", len(routes))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
