package engine

import (
	"log/slog"
	"time"

	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/metrics"
	"github.com/mocify/mocify/pkg/requestlog"
)

// Defaults applied by New and NewRegistry.
const (
	DefaultGracePeriod       = 5 * time.Second
	DefaultBindHost          = "127.0.0.1"
	DefaultPublicHost        = "localhost"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
)

// Option configures an Engine or Registry.
type Option func(*options)

type options struct {
	log               *slog.Logger
	metrics           *metrics.Collector
	gracePeriod       time.Duration
	bindHost          string
	publicHost        string
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	maxLogEntries     int
}

func newOptions(opts []Option) options {
	o := options{
		log:               logging.Nop(),
		gracePeriod:       DefaultGracePeriod,
		bindHost:          DefaultBindHost,
		publicHost:        DefaultPublicHost,
		readHeaderTimeout: DefaultReadHeaderTimeout,
		idleTimeout:       DefaultIdleTimeout,
		maxLogEntries:     requestlog.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = logging.OrNop(l) }
}

// WithMetrics records listener and request metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithGracePeriod bounds how long a stopping listener waits for in-flight
// requests before closing their connections.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gracePeriod = d
		}
	}
}

// WithBindHost sets the interface mock listeners bind to.
func WithBindHost(host string) Option {
	return func(o *options) { o.bindHost = host }
}

// WithPublicHost sets the host used in reported base URLs.
func WithPublicHost(host string) Option {
	return func(o *options) {
		if host != "" {
			o.publicHost = host
		}
	}
}

// WithTimeouts sets the listeners' header read and response write timeouts.
// Zero disables a timeout. A write timeout shorter than a route's delay
// fails that route, so it is off by default.
func WithTimeouts(readHeader, write time.Duration) Option {
	return func(o *options) {
		o.readHeaderTimeout = readHeader
		o.writeTimeout = write
	}
}

// WithMaxLogEntries sets the per-listener request journal capacity.
func WithMaxLogEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLogEntries = n
		}
	}
}
