// Package admin provides the control-plane REST API over the mock engine.
//
// Endpoints:
//
//	GET    /health                   - liveness and uptime
//	GET    /servers                  - every collection and whether it is served
//	POST   /servers                  - start a collection's server {"collectionId": "..."}
//	DELETE /servers/:port            - stop the server on a port
//	GET    /servers/:port/requests   - request journal of a running server
//	GET    /collections/:id/routes   - routes of a collection, newest first
//	POST   /seed/reload              - re-apply seed files (when configured)
//	GET    /metrics                  - Prometheus exposition
//
// Errors are answered as
//
//	{"error": "not_running", "message": "...", "port": 3001, "collectionId": "users"}
//
// with 404 for unknown collections and stopped servers, 409 for servers
// already running or ports the OS refuses, and 400 for malformed requests.
// Unexpected failures are logged and reported with a generic message.
//
// Usage:
//
//	api := admin.NewAPI(eng, admin.WithRouteStore(st), admin.WithLogger(log))
//	go api.Serve(ctx, "127.0.0.1:4290")
package admin
