// Package metrics provides Prometheus instrumentation for the Pixelmint gateway.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixelmint",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pixelmint",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// GenerationsTotal counts generation attempts by model and outcome.
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixelmint",
			Name:      "generations_total",
			Help:      "Total generation attempts by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	// GenerationFallbacksTotal counts requests that fell back to the secondary tier.
	GenerationFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "generation_fallbacks_total",
		Help:      "Total generations routed to the fallback model after a transient primary failure.",
	})

	// GenerationDuration observes provider call latency by model.
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pixelmint",
			Name:      "generation_duration_seconds",
			Help:      "Provider generation call duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	// CreditsChargedTotal counts credits charged across all tenants.
	CreditsChargedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "credits_charged_total",
		Help:      "Total credits charged (in credit units).",
	})

	// ChargeConflictsTotal counts optimistic-write conflicts on the balance row.
	ChargeConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "charge_conflicts_total",
		Help:      "Total version conflicts hit while applying a charge transaction.",
	})

	// ChargeFailuresTotal counts charges that failed after the artifact was delivered.
	// Each of these needs billing reconciliation.
	ChargeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "charge_failures_total",
		Help:      "Total charge transactions that failed after successful generation.",
	})

	// AlertsSentTotal counts usage alerts by class.
	AlertsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixelmint",
			Name:      "alerts_sent_total",
			Help:      "Total usage alerts sent by class.",
		},
		[]string{"class"},
	)

	// AlertDeliveryErrorsTotal counts notification deliveries that failed.
	AlertDeliveryErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "alert_delivery_errors_total",
		Help:      "Total alert notification deliveries that failed.",
	})

	// UsageRecordsTotal counts appended usage records.
	UsageRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixelmint",
		Name:      "usage_records_total",
		Help:      "Total usage records appended.",
	})

	// ActiveWebSocketClients tracks connected usage-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pixelmint",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pixelmint", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pixelmint", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pixelmint", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pixelmint", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		GenerationFallbacksTotal,
		GenerationDuration,
		CreditsChargedTotal,
		ChargeConflictsTotal,
		ChargeFailuresTotal,
		AlertsSentTotal,
		AlertDeliveryErrorsTotal,
		UsageRecordsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
