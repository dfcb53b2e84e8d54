package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/store"
)

// Target is the store a bundle is written to.
type Target interface {
	store.Reader
	store.Writer
}

// Releaser stops whatever is serving a collection before it is deleted.
// *engine.Engine implements it.
type Releaser interface {
	ReleaseCollection(ctx context.Context, collectionID string) error
}

// Result summarizes one Apply or Sync.
type Result struct {
	Collections        int `json:"collections"`
	Routes             int `json:"routes"`
	RoutesRemoved      int `json:"routesRemoved"`
	CollectionsRemoved int `json:"collectionsRemoved"`
}

// Apply upserts every collection and route in the bundle. Routes stored for
// a seeded collection that the bundle no longer declares are deleted, so the
// stored collection ends up matching its file exactly. Collections that are
// not part of the bundle are left alone.
func Apply(ctx context.Context, target Target, bundle *Bundle) (*Result, error) {
	res := &Result{}
	for _, e := range bundle.Entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c := e.Collection
		if err := target.PutCollection(ctx, c); err != nil {
			return res, fmt.Errorf("collection %q (%s): %w", c.ID, e.Source, err)
		}
		res.Collections++

		existing, err := target.ListRoutes(ctx, c.ID)
		if err != nil {
			return res, fmt.Errorf("collection %q: list routes: %w", c.ID, err)
		}
		keep := make(map[string]struct{}, len(e.Routes))
		for _, r := range e.Routes {
			keep[r.ID] = struct{}{}
		}
		// Stale routes go first so a route that changed ID does not collide
		// with its old (method, path).
		for _, r := range existing {
			if _, ok := keep[r.ID]; ok {
				continue
			}
			if err := target.DeleteRoute(ctx, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return res, fmt.Errorf("collection %q: delete route %s: %w", c.ID, r.ID, err)
			}
			res.RoutesRemoved++
		}

		for _, r := range e.Routes {
			rt := r.Clone()
			if err := target.PutRoute(ctx, rt); err != nil {
				return res, fmt.Errorf("collection %q: route %s: %w", c.ID, r.Key(), err)
			}
			res.Routes++
		}
	}
	return res, nil
}

// Syncer loads a fixed set of seed patterns and applies them, remembering
// which collections came from the files. Collections that vanish from the
// files between two syncs are released and deleted.
type Syncer struct {
	patterns []string
	baseDir  string
	target   Target
	releaser Releaser
	log      *slog.Logger

	mu      sync.Mutex
	applied map[string]struct{}
}

// NewSyncer creates a Syncer. releaser may be nil when nothing is serving.
func NewSyncer(patterns []string, baseDir string, target Target, releaser Releaser, log *slog.Logger) *Syncer {
	return &Syncer{
		patterns: patterns,
		baseDir:  baseDir,
		target:   target,
		releaser: releaser,
		log:      logging.Component(log, "seed"),
		applied:  make(map[string]struct{}),
	}
}

// Patterns returns the seed patterns the syncer loads.
func (s *Syncer) Patterns() []string { return s.patterns }

// BaseDir returns the directory relative patterns are resolved against.
func (s *Syncer) BaseDir() string { return s.baseDir }

// Applied returns the sorted IDs of the collections written by the last
// successful Sync.
func (s *Syncer) Applied() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.applied))
	for id := range s.applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sync loads the seed files and applies them. A load error leaves the store
// untouched. Removal only happens after the new bundle has been applied.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	bundle, err := Load(s.patterns, s.baseDir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := Apply(ctx, s.target, bundle)
	if err != nil {
		return res, err
	}

	current := make(map[string]struct{}, len(bundle.Entries))
	for _, id := range bundle.CollectionIDs() {
		current[id] = struct{}{}
	}
	var errs []error
	for id := range s.applied {
		if _, ok := current[id]; ok {
			continue
		}
		if err := s.remove(ctx, id); err != nil {
			errs = append(errs, err)
			// Retry on the next sync.
			current[id] = struct{}{}
			continue
		}
		res.CollectionsRemoved++
	}
	s.applied = current

	s.log.Info("seed files applied",
		"files", len(bundle.Files),
		"collections", res.Collections,
		"routes", res.Routes,
		"routes_removed", res.RoutesRemoved,
		"collections_removed", res.CollectionsRemoved,
	)
	return res, errors.Join(errs...)
}

func (s *Syncer) remove(ctx context.Context, id string) error {
	if s.releaser != nil {
		if err := s.releaser.ReleaseCollection(ctx, id); err != nil {
			return fmt.Errorf("release collection %q: %w", id, err)
		}
	}
	if err := s.target.DeleteCollection(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete collection %q: %w", id, err)
	}
	s.log.Info("seeded collection removed", "collection", id)
	return nil
}
