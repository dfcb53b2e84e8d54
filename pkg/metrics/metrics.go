package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "mocify"

// Start results for ListenerStarts.
const (
	StartOK             = "ok"
	StartAlreadyRunning = "already_running"
	StartBindError      = "bind_error"
	StartError          = "error"
)

// DefaultDurationBuckets covers instant replies up to multi-second delays.
var DefaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Collector records engine metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	listenersRunning prometheus.Gauge
	listenerStarts   *prometheus.CounterVec
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	buckets          []float64
	runtimeMetrics   bool
	externalRegistry *prometheus.Registry
}

// WithBuckets overrides the request duration histogram buckets.
func WithBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// WithRuntimeMetrics also registers the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtimeMetrics = true }
}

// WithRegistry registers into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.externalRegistry = reg }
}

// NewCollector creates and registers the engine metrics.
func NewCollector(opts ...Option) *Collector {
	o := &options{buckets: DefaultDurationBuckets}
	for _, opt := range opts {
		opt(o)
	}

	reg := o.externalRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests answered by mock listeners.",
		}, []string{"port", "collection", "method", "status", "matched"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to answer a mock request, including configured delay.",
			Buckets:   o.buckets,
		}, []string{"port", "collection"}),
		listenersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "listeners_running",
			Help:      "Mock listeners currently registered.",
		}),
		listenerStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "listener_starts_total",
			Help:      "Listener start attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.requests, c.requestDuration, c.listenersRunning, c.listenerStarts)
	if o.runtimeMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// RecordRequest records one answered mock request.
func (c *Collector) RecordRequest(port int, collection, method string, status int, matched bool, d time.Duration) {
	if c == nil {
		return
	}
	p := strconv.Itoa(port)
	c.requests.WithLabelValues(p, collection, method, strconv.Itoa(status), strconv.FormatBool(matched)).Inc()
	c.requestDuration.WithLabelValues(p, collection).Observe(d.Seconds())
}

// RecordStart records a listener start attempt.
func (c *Collector) RecordStart(result string) {
	if c == nil {
		return
	}
	c.listenerStarts.WithLabelValues(result).Inc()
}

// SetListenersRunning sets the running listener gauge.
func (c *Collector) SetListenersRunning(n int) {
	if c == nil {
		return
	}
	c.listenersRunning.Set(float64(n))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
