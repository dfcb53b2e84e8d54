// Package requestlog captures the requests a mock listener answered so users
// can inspect what came in, which route matched and what was sent back.
//
// It is distinct from operational logging, which uses log/slog.
//
//	journal := requestlog.NewMemoryStore(1000)
//	journal.Log(&requestlog.Entry{Method: "GET", Path: "/users", StatusCode: 200})
//	recent := journal.List(&requestlog.Filter{Limit: 10})
//
// This is a leaf package with no internal dependencies.
package requestlog
