package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/mocify/mocify/pkg/httputil"
	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/route"
)

// DefaultContentType is sent when a route sets no content-type header.
const DefaultContentType = "application/json"

// Headers net/http inspects itself. They are written under their canonical
// name so the transport sees them; every other header keeps its casing.
var transportHeaders = map[string]bool{
	"Content-Type":      true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Date":              true,
	"Trailer":           true,
}

// Synthesizer writes matched routes to the wire.
type Synthesizer struct {
	log *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil logger discards.
func NewSynthesizer(log *slog.Logger) *Synthesizer {
	return &Synthesizer{log: logging.OrNop(log)}
}

// Respond waits out the route's delay and then writes its status, headers
// and body. It returns the status written. If ctx ends during the delay
// nothing is written and ctx's error is returned.
//
// Statuses for which net/http refuses a body (1xx, 204, 304) are written as
// a raw HTTP/1.1 response on the hijacked connection when a body is
// configured or the status is 1xx, so the configured response goes out
// unchanged.
func (s *Synthesizer) Respond(ctx context.Context, w http.ResponseWriter, r *http.Request, rt *route.Route) (int, error) {
	if err := sleep(ctx, rt.Delay()); err != nil {
		return 0, err
	}

	headers := s.validHeaders(rt)
	if !headers.Has("content-type") {
		headers = append(headers, route.Header{Name: "Content-Type", Value: DefaultContentType})
	}

	status := rt.StatusCode
	body := rt.Body()
	head := r.Method == http.MethodHead

	if needsRawWrite(status, body) {
		if hj, ok := w.(http.Hijacker); ok {
			return status, writeRaw(hj, w.Header(), headers, status, body, head)
		}
		s.log.Debug("writer cannot be hijacked, transport may drop the body",
			"route", rt.ID, "status", status)
	}

	mergeHeaders(w.Header(), headers)
	w.WriteHeader(status)
	if head || body == "" {
		return status, nil
	}
	_, err := w.Write([]byte(body))
	return status, err
}

// validHeaders returns the route's headers minus those that cannot be sent.
func (s *Synthesizer) validHeaders(rt *route.Route) route.HeaderSet {
	out := make(route.HeaderSet, 0, len(rt.ResponseHeaders)+1)
	for _, h := range rt.ResponseHeaders {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			s.log.Warn("dropping malformed response header", "route", rt.ID, "header", h.Name)
			continue
		}
		out = append(out, h)
	}
	return out
}

func needsRawWrite(status int, body string) bool {
	if status >= 100 && status <= 199 {
		return true
	}
	return body != "" && !httputil.BodyAllowed(status)
}

func wireKey(name string) string {
	if canon := http.CanonicalHeaderKey(name); transportHeaders[canon] {
		return canon
	}
	return name
}

// mergeHeaders applies headers onto dst. Repeated names accumulate values;
// a route header replaces whatever dst already held under any casing of
// that name.
func mergeHeaders(dst http.Header, headers route.HeaderSet) {
	set := make(http.Header, len(headers))
	for _, h := range headers {
		key := wireKey(h.Name)
		set[key] = append(set[key], h.Value)
	}
	for key, values := range set {
		for existing := range dst {
			if existing != key && strings.EqualFold(existing, key) {
				delete(dst, existing)
			}
		}
		dst[key] = values
	}
}

// writeRaw takes over the connection and writes the response by hand, in
// header insertion order, then closes the connection.
func writeRaw(hj http.Hijacker, base http.Header, headers route.HeaderSet, status int, body string, head bool) error {
	conn, buf, err := hj.Hijack()
	if err != nil {
		return err
	}
	defer conn.Close()

	var lines route.HeaderSet
	keys := make([]string, 0, len(base))
	for k := range base {
		if !headers.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range base[k] {
			lines = append(lines, route.Header{Name: k, Value: v})
		}
	}
	lines = append(lines, headers...)
	if !lines.Has("date") {
		lines = append(lines, route.Header{Name: "Date", Value: time.Now().UTC().Format(http.TimeFormat)})
	}
	if !lines.Has("content-length") && body != "" {
		lines = append(lines, route.Header{Name: "Content-Length", Value: strconv.Itoa(len(body))})
	}
	if !lines.Has("connection") {
		lines = append(lines, route.Header{Name: "Connection", Value: "close"})
	}

	_, _ = buf.WriteString(httputil.StatusLine(status))
	for _, h := range lines {
		_, _ = buf.WriteString(h.Name + ": " + h.Value + "\r\n")
	}
	_, _ = buf.WriteString("\r\n")
	if !head {
		_, _ = buf.WriteString(body)
	}
	return buf.Flush()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
