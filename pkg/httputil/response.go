// Package httputil provides shared HTTP utilities for consistent response handling.
package httputil

import (
	"io"
	"net/http"
	"strconv"
)

// WriteText writes a plain-text response with the given status code.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// WriteNotFound writes a plain-text 404 response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteText(w, http.StatusNotFound, message)
}

// WriteInternalError writes a plain-text 500 response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteText(w, http.StatusInternalServerError, message)
}

// StatusLine returns the HTTP/1.1 status line for code, including the
// trailing CRLF. Codes without a registered reason phrase get "Status".
func StatusLine(code int) string {
	reason := http.StatusText(code)
	if reason == "" {
		reason = "Status"
	}
	return "HTTP/1.1 " + strconv.Itoa(code) + " " + reason + "\r\n"
}

// BodyAllowed reports whether net/http lets a handler send a body with the
// given status.
func BodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
