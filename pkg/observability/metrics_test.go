package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.AccessDecisionsTotal.WithLabelValues("edit", "event", "deny").Inc()
	m.GuardRejectionsTotal.WithLabelValues("date").Inc()
	m.NotificationsMarkedRead.Add(3)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("edit", "event", "deny")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.GuardRejectionsTotal.WithLabelValues("date")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.NotificationsMarkedRead))
}

func TestNewMetricsDoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/9", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/events/9", "404")))
}
