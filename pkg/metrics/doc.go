// Package metrics exposes Prometheus metrics for mock traffic and listener
// lifecycle.
//
// A Collector owns a private prometheus.Registry so that several engines can
// live in one process (tests, embedding) without colliding on the default
// registry. All Collector methods are safe on a nil receiver and do nothing,
// which lets callers treat metrics as optional.
package metrics
