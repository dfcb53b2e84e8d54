package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteText(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteText(rec, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "15", rec.Header().Get("Content-Length"))
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestWriteNotFoundAndInternalError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteNotFound(rec, "Route not found")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", rec.Body.String())

	rec = httptest.NewRecorder()
	WriteInternalError(rec, "oops")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want string
	}{
		{200, "HTTP/1.1 200 OK\r\n"},
		{204, "HTTP/1.1 204 No Content\r\n"},
		{103, "HTTP/1.1 103 Early Hints\r\n"},
		{599, "HTTP/1.1 599 Status\r\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusLine(tt.code))
	}
}

func TestBodyAllowed(t *testing.T) {
	t.Parallel()

	assert.False(t, BodyAllowed(100))
	assert.False(t, BodyAllowed(199))
	assert.False(t, BodyAllowed(204))
	assert.False(t, BodyAllowed(304))
	assert.True(t, BodyAllowed(200))
	assert.True(t, BodyAllowed(404))
}
