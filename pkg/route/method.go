package route

import (
	"fmt"
	"net/http"
	"strings"
)

// Method is the closed set of HTTP methods a route can answer.
type Method uint8

// Supported methods. The zero value is not a valid method.
const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodHead
	MethodOptions
)

// Methods lists every supported method in declaration order.
var Methods = []Method{
	MethodGet, MethodPost, MethodPut, MethodDelete,
	MethodPatch, MethodHead, MethodOptions,
}

// ParseMethod parses a method name. Stored definitions are normalized to
// upper case, so "get" and "GET" both parse to MethodGet.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case http.MethodGet:
		return MethodGet, nil
	case http.MethodPost:
		return MethodPost, nil
	case http.MethodPut:
		return MethodPut, nil
	case http.MethodDelete:
		return MethodDelete, nil
	case http.MethodPatch:
		return MethodPatch, nil
	case http.MethodHead:
		return MethodHead, nil
	case http.MethodOptions:
		return MethodOptions, nil
	}
	return 0, fmt.Errorf("unsupported HTTP method %q", s)
}

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodPost:
		return http.MethodPost
	case MethodPut:
		return http.MethodPut
	case MethodDelete:
		return http.MethodDelete
	case MethodPatch:
		return http.MethodPatch
	case MethodHead:
		return http.MethodHead
	case MethodOptions:
		return http.MethodOptions
	}
	return ""
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	return m.String() != ""
}

// Is compares m against a method as received from the transport. The
// comparison is exact: net/http hands over the method as sent on the wire,
// and "get" is not the same request as "GET".
func (m Method) Is(wire string) bool {
	switch m {
	case MethodGet:
		return wire == http.MethodGet
	case MethodPost:
		return wire == http.MethodPost
	case MethodPut:
		return wire == http.MethodPut
	case MethodDelete:
		return wire == http.MethodDelete
	case MethodPatch:
		return wire == http.MethodPatch
	case MethodHead:
		return wire == http.MethodHead
	case MethodOptions:
		return wire == http.MethodOptions
	}
	return false
}

// MarshalText implements encoding.TextMarshaler for JSON and YAML.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid method %d", m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and YAML.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
