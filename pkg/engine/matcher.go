package engine

import (
	"net/http"
	"strings"

	"github.com/mocify/mocify/pkg/route"
)

// Match returns the first route whose method and path equal the request's,
// or nil. Paths are compared byte for byte: no percent-decoding, no
// trailing-slash folding, no dot-segment cleaning. Any query string on path
// is ignored and an empty path is "/".
func Match(method, path string, routes []*route.Route) *route.Route {
	path = normalizePath(path)
	for _, rt := range routes {
		if rt == nil {
			continue
		}
		if rt.Path == path && rt.Method.Is(method) {
			return rt
		}
	}
	return nil
}

// RequestPath is the path of r as it is matched: the escaped form sent on
// the wire, without the query string.
func RequestPath(r *http.Request) string {
	if r.URL == nil {
		return "/"
	}
	return normalizePath(r.URL.EscapedPath())
}

func normalizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	return p
}

// hasRoute reports whether routes contain one for method at the exact path.
func hasRoute(method route.Method, path string, routes []*route.Route) bool {
	return Match(method.String(), path, routes) != nil
}
