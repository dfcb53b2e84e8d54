// Package seed loads collections and routes from declarative YAML files and
// writes them into a Route Store.
//
// A seed file looks like:
//
//	collections:
//	  - id: users
//	    name: Users API
//	    port: 3001
//	    routes:
//	      - name: list users
//	        method: GET
//	        path: /users
//	        status: 200
//	        headers:
//	          X-Total: "2"
//	        body: '[{"id":1},{"id":2}]'
//	        delayMs: 150
//
// Patterns support ** via doublestar. File contents go through ${VAR} and
// ${VAR:-default} expansion before parsing.
//
// A Syncer remembers which collections it wrote, so that a later Sync can
// release and delete the ones that disappeared from the files. A Watcher
// drives Sync from fsnotify events.
package seed
