package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRequest(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.RecordRequest(3001, "users", "GET", 200, true, 10*time.Millisecond)
	c.RecordRequest(3001, "users", "GET", 200, true, 20*time.Millisecond)
	c.RecordRequest(3001, "users", "POST", 404, false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("3001", "users", "GET", "200", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("3001", "users", "POST", "404", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestDuration))
}

func TestCollector_Lifecycle(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.RecordStart(StartOK)
	c.RecordStart(StartBindError)
	c.RecordStart(StartOK)
	c.SetListenersRunning(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.listenerStarts.WithLabelValues(StartOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.listenerStarts.WithLabelValues(StartBindError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.listenersRunning))
}

func TestCollector_NilSafe(t *testing.T) {
	t.Parallel()

	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRequest(1, "c", "GET", 200, true, time.Second)
		c.RecordStart(StartOK)
		c.SetListenersRunning(1)
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.RecordStart(StartOK)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mocify_listener_starts_total{result="ok"} 1`))
}

func TestCollector_SharedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector(WithRegistry(reg))
	assert.Same(t, reg, c.Registry())
}
