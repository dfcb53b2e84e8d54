package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// MemoryStore is a thread-safe in-memory implementation of store.Store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*route.Collection
	routes      map[string]*route.Route
	// Insertion order, kept per kind: a route may share its ID with a
	// collection.
	collectionSeq map[string]uint64
	routeSeq      map[string]uint64
	next          uint64
	closed        bool

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections:   make(map[string]*route.Collection),
		routes:        make(map[string]*route.Route),
		collectionSeq: make(map[string]uint64),
		routeSeq:      make(map[string]uint64),
		now:           time.Now,
	}
}

// GetCollection retrieves a collection by ID.
func (s *MemoryStore) GetCollection(_ context.Context, id string) (*route.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// ListCollections returns all collections, newest first.
func (s *MemoryStore) ListCollections(_ context.Context) ([]*route.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*route.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return s.newer(s.collectionSeq, result[i].ID, result[i].CreatedAt, result[j].ID, result[j].CreatedAt)
	})
	return result, nil
}

// ListRoutes returns the routes of a collection, newest first. An unknown
// collection has no routes.
func (s *MemoryStore) ListRoutes(_ context.Context, collectionID string) ([]*route.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var result []*route.Route
	for _, r := range s.routes {
		if r.CollectionID == collectionID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.newer(s.routeSeq, result[i].ID, result[i].CreatedAt, result[j].ID, result[j].CreatedAt)
	})
	return result, nil
}

// PutCollection creates or replaces a collection.
func (s *MemoryStore) PutCollection(_ context.Context, c *route.Collection) error {
	if c == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	for id, other := range s.collections {
		if id != c.ID && other.Port == c.Port {
			return fmt.Errorf("port %d is used by collection %s: %w", c.Port, id, store.ErrDuplicate)
		}
	}

	now := s.now()
	cp := *c
	if existing, ok := s.collections[c.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.track(s.collectionSeq, c.ID)
	}
	cp.UpdatedAt = now
	s.collections[c.ID] = &cp

	c.CreatedAt, c.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	return nil
}

// DeleteCollection removes a collection and its routes.
func (s *MemoryStore) DeleteCollection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	delete(s.collections, id)
	delete(s.collectionSeq, id)
	for rid, r := range s.routes {
		if r.CollectionID == id {
			delete(s.routes, rid)
			delete(s.routeSeq, rid)
		}
	}
	return nil
}

// PutRoute creates or replaces a route. A route without an ID gets a random
// UUID.
func (s *MemoryStore) PutRoute(_ context.Context, r *route.Route) error {
	if r == nil {
		return nil
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	if _, ok := s.collections[r.CollectionID]; !ok {
		return fmt.Errorf("collection %s: %w", r.CollectionID, store.ErrNotFound)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	for id, other := range s.routes {
		if id != r.ID && other.CollectionID == r.CollectionID &&
			other.Method == r.Method && other.Path == r.Path {
			return fmt.Errorf("route %s in collection %s: %w", r.Key(), r.CollectionID, store.ErrDuplicate)
		}
	}

	now := s.now()
	cp := r.Clone()
	if existing, ok := s.routes[r.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.track(s.routeSeq, r.ID)
	}
	cp.UpdatedAt = now
	s.routes[r.ID] = cp

	r.CreatedAt, r.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	return nil
}

// DeleteRoute removes a route by ID.
func (s *MemoryStore) DeleteRoute(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.routes[id]; !ok {
		return fmt.Errorf("route %s: %w", id, store.ErrNotFound)
	}
	delete(s.routes, id)
	delete(s.routeSeq, id)
	return nil
}

// Close marks the store closed; subsequent calls fail with store.ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// track records insertion order in seq. Caller holds the write lock.
func (s *MemoryStore) track(seq map[string]uint64, id string) {
	s.next++
	seq[id] = s.next
}

// newer orders by creation time descending, then insertion order descending.
// Caller holds at least the read lock.
func (s *MemoryStore) newer(seq map[string]uint64, aID string, aAt time.Time, bID string, bAt time.Time) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return seq[aID] > seq[bID]
}

// Ensure MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)
