package route

import (
	"time"
)

// Collection is a named set of routes served on one TCP port.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Port        int       `json:"port"`
	BasePath    string    `json:"basePath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Route maps one (method, path) pair of a collection to a canned response.
// Within a collection the (Method, Path) pair is unique; stores enforce it.
type Route struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId"`
	Name         string `json:"name"`
	Method       Method `json:"method"`
	Path         string `json:"path"`
	StatusCode   int    `json:"statusCode"`

	// ResponseBody is emitted verbatim. Nil means an empty body.
	ResponseBody *string `json:"responseBody,omitempty"`

	// ResponseHeaders are applied in order, casing preserved.
	ResponseHeaders HeaderSet `json:"responseHeaders,omitempty"`

	// DelayMs postpones the response. Nil or zero means no delay.
	DelayMs *int `json:"delayMs,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Body returns the configured response body, or "" when none is set.
func (r *Route) Body() string {
	if r.ResponseBody == nil {
		return ""
	}
	return *r.ResponseBody
}

// Delay returns the configured artificial delay.
func (r *Route) Delay() time.Duration {
	if r.DelayMs == nil || *r.DelayMs <= 0 {
		return 0
	}
	return time.Duration(*r.DelayMs) * time.Millisecond
}

// Key identifies the route within its collection.
func (r *Route) Key() string {
	return r.Method.String() + " " + r.Path
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	if r.ResponseBody != nil {
		body := *r.ResponseBody
		out.ResponseBody = &body
	}
	if r.DelayMs != nil {
		delay := *r.DelayMs
		out.DelayMs = &delay
	}
	out.ResponseHeaders = r.ResponseHeaders.Clone()
	return &out
}

// StringPtr is a convenience for building optional bodies.
func StringPtr(s string) *string { return &s }

// IntPtr is a convenience for building optional delays.
func IntPtr(i int) *int { return &i }
