// Package metrics provides Prometheus instrumentation for the shield service.
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
			Namespace: "shield",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shield",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts completed pipeline analyses by decision.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shield",
			Name:      "analyses_total",
			Help:      "Total transaction intent analyses by decision.",
		},
		[]string{"decision"},
	)

	// AnalysisDuration observes end-to-end pipeline latency.
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shield",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end intent analysis duration in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// LayerFlagsTotal counts raised analysis flags by flag name.
	LayerFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shield",
			Name:      "layer_flags_total",
			Help:      "Total analysis flags raised by flag name.",
		},
		[]string{"flag"},
	)

	// SandboxTriggersTotal counts analyses that entered sandbox mode.
	SandboxTriggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "sandbox_triggers_total",
		Help:      "Total analyses escalated to sandbox mode by source-trust detection.",
	})

	// LLMRequestsTotal counts semantic analyzer calls by result.
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shield",
			Name:      "llm_requests_total",
			Help:      "Total semantic analyzer requests by result (ok, timeout, error, malformed).",
		},
		[]string{"result"},
	)

	// LLMRequestDuration observes semantic analyzer round-trip latency.
	LLMRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shield",
		Name:      "llm_request_duration_seconds",
		Help:      "Semantic analyzer round-trip duration in seconds.",
		Buckets:   []float64{.1, .25, .5, 1, 2, 3, 5, 8},
	})

	// BreakerTransitionsTotal counts circuit breaker state transitions.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shield",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker transitions by from/to state.",
		},
		[]string{"from", "to"},
	)

	// BreakerShortCircuitsTotal counts intents auto-blocked by an open breaker.
	BreakerShortCircuitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "breaker_short_circuits_total",
		Help:      "Total intents auto-blocked without analysis because the agent's breaker was open.",
	})

	// BlacklistHitsTotal counts heuristic blacklist matches.
	BlacklistHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "blacklist_hits_total",
		Help:      "Total intents whose target address matched the blacklist.",
	})

	// ActiveWebSocketClients tracks connected alert-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shield",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shield", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shield", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shield", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shield", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		AnalysisDuration,
		LayerFlagsTotal,
		SandboxTriggersTotal,
		LLMRequestsTotal,
		LLMRequestDuration,
		BreakerTransitionsTotal,
		BreakerShortCircuitsTotal,
		BlacklistHitsTotal,
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
