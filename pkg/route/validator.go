package route

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks a collection definition.
func (c *Collection) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ValidationError{Field: "port", Message: fmt.Sprintf("port %d out of range 1-65535", c.Port)}
	}
	return nil
}

// Validate checks a route definition. Header names and values are not
// checked here: a malformed header is dropped when the response is built,
// without failing the route.
func (r *Route) Validate() error {
	if strings.TrimSpace(r.CollectionID) == "" {
		return &ValidationError{Field: "collectionId", Message: "collectionId is required"}
	}
	if !r.Method.Valid() {
		return &ValidationError{Field: "method", Message: "method must be one of GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS"}
	}
	if !strings.HasPrefix(r.Path, "/") {
		return &ValidationError{Field: "path", Message: "path must start with /"}
	}
	if strings.ContainsAny(r.Path, "?#") {
		return &ValidationError{Field: "path", Message: "path must not contain a query or fragment"}
	}
	if err := checkEscaped(r.Path); err != nil {
		return err
	}
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return &ValidationError{Field: "statusCode", Message: fmt.Sprintf("status code %d out of range 100-599", r.StatusCode)}
	}
	if r.DelayMs != nil && *r.DelayMs < 0 {
		return &ValidationError{Field: "delayMs", Message: "delayMs must be >= 0"}
	}
	return nil
}

// checkEscaped rejects paths that differ from their wire form. Requests are
// matched on the escaped path, so "/hello world" could never be reached
// while "/hello%20world" can.
func checkEscaped(p string) error {
	u, err := url.ParseRequestURI(p)
	if err != nil {
		return &ValidationError{Field: "path", Message: fmt.Sprintf("path %q is not a valid request path: %v", p, err)}
	}
	if escaped := u.EscapedPath(); escaped != p {
		return &ValidationError{Field: "path", Message: fmt.Sprintf("path %q must be percent-encoded as sent on the wire: use %q", p, escaped)}
	}
	return nil
}
