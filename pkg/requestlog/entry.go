package requestlog

import "time"

// Entry captures one request/response exchange on a mock listener.
type Entry struct {
	// ID is a unique identifier for the entry within its journal.
	ID string `json:"id"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`

	Method string `json:"method"`
	Path   string `json:"path"`

	// Query is the raw query string, without the leading '?'.
	Query string `json:"query,omitempty"`

	RemoteAddr string `json:"remoteAddr,omitempty"`

	// StatusCode is the status written back to the client.
	StatusCode int `json:"statusCode"`

	// Matched reports whether a route answered the request.
	Matched bool `json:"matched"`

	// RouteID is the matched route, empty when nothing matched.
	RouteID string `json:"routeId,omitempty"`

	// Duration covers the whole exchange including any configured delay.
	Duration time.Duration `json:"durationNs"`

	// Error is set when the request failed inside the listener.
	Error string `json:"error,omitempty"`
}
