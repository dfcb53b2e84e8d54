package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mocify/mocify/pkg/seed"
	"github.com/mocify/mocify/pkg/store"
)

// Reloader re-applies seed files. *seed.Syncer implements it.
type Reloader interface {
	Sync(ctx context.Context) (*seed.Result, error)
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request logs and server-side errors.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithRouteStore enables GET /collections/:id/routes.
func WithRouteStore(st store.RouteStore) Option {
	return func(a *API) {
		a.routes = st
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		a.metrics = h
	}
}

// WithReloader enables POST /seed/reload.
func WithReloader(r Reloader) Option {
	return func(a *API) {
		a.reloader = r
	}
}

// WithCORSOrigins restricts which browser origins may call the API.
// By default every origin is allowed.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) {
		a.corsOrigins = origins
	}
}

// WithVersion sets the version reported by GET /health.
func WithVersion(v string) Option {
	return func(a *API) {
		a.version = v
	}
}
