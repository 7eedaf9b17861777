package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/namelens/octolens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Health check metrics
	healthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octolens",
		Name:      "health_checks_total",
		Help:      "Health check executions by check and status.",
	}, []string{"check", "status"})

	healthCheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octolens",
		Name:      "health_check_duration_seconds",
		Help:      "Health check latency.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"check"})

	// Server lifecycle metrics
	serverStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octolens",
		Name:      "server_start_time_seconds",
		Help:      "Unix time the HTTP server started.",
	})
)

func init() {
	observability.Registry.MustRegister(
		healthChecksTotal,
		healthCheckDuration,
		serverStartTime,
		errorsTotal,
		panicsTotal,
		errorsByEndpoint,
	)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	healthChecksTotal.WithLabelValues(checkName, status).Inc()
	healthCheckDuration.WithLabelValues(checkName).Observe(duration.Seconds())
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	serverStartTime.Set(float64(timestamp))
}
