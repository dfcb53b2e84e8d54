// CORS middleware for mock listeners.

package engine

import (
	"net/http"
	"strings"

	"github.com/mocify/mocify/pkg/route"
)

// OptionsChecker reports whether the collection defines its own OPTIONS
// route for the request path.
type OptionsChecker interface {
	HasOptionsRoute(r *http.Request) bool
}

var allowedMethods = func() string {
	names := make([]string, 0, len(route.Methods))
	for _, m := range route.Methods {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}()

// CORSMiddleware applies a permissive cross-origin policy: any origin, any
// method, any header.
type CORSMiddleware struct {
	handler http.Handler
	checker OptionsChecker
}

// NewCORSMiddleware wraps handler. The optional checker lets user-defined
// OPTIONS routes take precedence over preflight handling.
func NewCORSMiddleware(handler http.Handler, checker OptionsChecker) *CORSMiddleware {
	return &CORSMiddleware{handler: handler, checker: checker}
}

// ServeHTTP implements http.Handler.
func (m *CORSMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", "*")

	if isPreflight(r) && (m.checker == nil || !m.checker.HasOptionsRoute(r)) {
		allowHeaders := r.Header.Get("Access-Control-Request-Headers")
		if allowHeaders == "" {
			allowHeaders = "*"
		}
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Max-Age", "86400")
		h.Add("Vary", "Origin")
		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		w.WriteHeader(http.StatusOK)
		return
	}

	m.handler.ServeHTTP(w, r)
}

// isPreflight only accepts OPTIONS requests that carry both Origin and
// Access-Control-Request-Method. A bare OPTIONS is routed like any method.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}
