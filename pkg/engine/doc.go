// Package engine turns stored route definitions into live HTTP listeners.
//
// # Architecture
//
//	Engine (facade: StartServer / StopServer / ListRunningServers)
//	  └── Registry        port -> Listener, one listener per port
//	        └── Listener  one bound port, serves until cancelled
//	              ├── Match       (method, path, routes) -> route
//	              └── Synthesizer route -> status, headers, body
//
// Every request reads the collection's current routes from the store, so
// route edits take effect without restarting the listener. The registry is
// the only component that starts or stops listeners; its lock is never held
// across a bind or a request.
//
// # Basic Usage
//
//	st := storage.NewMemoryStore()
//	eng := engine.New(st, engine.WithLogger(logger))
//	status, err := eng.StartServer(ctx, "users")
//	if errors.Is(err, engine.ErrBind) {
//	    // pick another port
//	}
//	defer eng.Shutdown(context.Background())
package engine
