package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Access control metrics
	AccessDecisionsTotal *prometheus.CounterVec
	AccessCacheHitsTotal *prometheus.CounterVec

	// Event lifecycle metrics
	EventWritesTotal       *prometheus.CounterVec
	GuardRejectionsTotal   *prometheus.CounterVec
	StageTransitionsTotal  *prometheus.CounterVec

	// Notification metrics
	NotificationsCreatedTotal   prometheus.Counter
	NotificationsMarkedRead     prometheus.Counter
	NotificationsDeactivated    prometheus.Counter
	UnreadCountCacheHitsTotal   *prometheus.CounterVec

	// Report metrics
	ReportsGeneratedTotal  *prometheus.CounterVec
	ReportDuration         *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Redis metrics
	RedisCommandsTotal *prometheus.CounterVec

	// Business metrics
	EventsTotal       *prometheus.GaugeVec
	ActiveUsersTotal  prometheus.Gauge
	SessionsActive    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventdesk_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_access_decisions_total",
				Help: "Total number of access policy decisions",
			},
			[]string{"action", "resource", "decision"},
		),
		AccessCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_access_cache_hits_total",
				Help: "Policy decision cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		EventWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_event_writes_total",
				Help: "Total number of event create/update operations",
			},
			[]string{"operation", "status"},
		),
		GuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_guard_rejections_total",
				Help: "Event payloads rejected by the lifecycle guard, by field",
			},
			[]string{"field"},
		),
		StageTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_stage_transitions_total",
				Help: "Event stage transitions",
			},
			[]string{"from", "to"},
		),

		NotificationsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventdesk_notifications_created_total",
				Help: "Total number of notifications created",
			},
		),
		NotificationsMarkedRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventdesk_notifications_marked_read_total",
				Help: "Total number of read receipts recorded",
			},
		),
		NotificationsDeactivated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventdesk_notifications_deactivated_total",
				Help: "Notifications deactivated by expiry sweep or toggle",
			},
		),
		UnreadCountCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_unread_count_cache_hits_total",
				Help: "Unread-count cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		ReportsGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_reports_generated_total",
				Help: "Total number of reports generated",
			},
			[]string{"type", "format", "status"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventdesk_report_duration_seconds",
				Help:    "Report generation duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventdesk_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventdesk_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),

		EventsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventdesk_events_total",
				Help: "Number of events by stage",
			},
			[]string{"stage"},
		),
		ActiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventdesk_active_users_total",
				Help: "Total number of active user accounts",
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventdesk_sessions_active",
				Help: "Number of unexpired sessions",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AccessDecisionsTotal,
		m.AccessCacheHitsTotal,
		m.EventWritesTotal,
		m.GuardRejectionsTotal,
		m.StageTransitionsTotal,
		m.NotificationsCreatedTotal,
		m.NotificationsMarkedRead,
		m.NotificationsDeactivated,
		m.UnreadCountCacheHitsTotal,
		m.ReportsGeneratedTotal,
		m.ReportDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisCommandsTotal,
		m.EventsTotal,
		m.ActiveUsersTotal,
		m.SessionsActive,
	)

	return m
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}
