package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/namelens/octolens/internal/ratelimit"
)

const metricsNamespace = "octolens"

// Cache lookup outcomes.
const (
	CacheHit         = "hit"
	CacheRevalidated = "revalidated"
	CacheMiss        = "miss"
)

var (
	// Registry holds every octolens collector plus Go runtime metrics.
	Registry = prometheus.NewRegistry()

	githubRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "github",
		Name:      "requests_total",
		Help:      "GitHub API requests by rate limit resource and status code.",
	}, []string{"resource", "status"})

	githubRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "github",
		Name:      "request_duration_seconds",
		Help:      "GitHub API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"resource"})

	rateLimitRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "github",
		Name:      "rate_limit_remaining",
		Help:      "Requests left in the current window as last reported by GitHub.",
	}, []string{"resource"})

	rateLimitLimit = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "github",
		Name:      "rate_limit_limit",
		Help:      "Requests allowed per window as last reported by GitHub.",
	}, []string{"resource"})

	rateLimitReset = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "github",
		Name:      "rate_limit_reset_timestamp_seconds",
		Help:      "Unix time at which the current window resets.",
	}, []string{"resource"})

	cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Response cache lookups by outcome.",
	}, []string{"result"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served by route and status code.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		githubRequestsTotal,
		githubRequestDuration,
		rateLimitRemaining,
		rateLimitLimit,
		rateLimitReset,
		cacheLookupsTotal,
		httpRequestsTotal,
		httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsHandler serves the registry in Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordGitHubRequest counts a completed API call. Status 0 means the request
// never got a response.
func RecordGitHubRequest(resource string, status int, duration time.Duration) {
	githubRequestsTotal.WithLabelValues(resource, statusLabel(status)).Inc()
	githubRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordRateLimit publishes the latest snapshot for resource.
func RecordRateLimit(resource string, info ratelimit.Info) {
	if info.IsZero() {
		return
	}
	rateLimitRemaining.WithLabelValues(resource).Set(float64(info.Remaining))
	rateLimitLimit.WithLabelValues(resource).Set(float64(info.Limit))
	rateLimitReset.WithLabelValues(resource).Set(float64(info.ResetsAt.Unix()))
}

// RecordCacheLookup counts a response cache lookup.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a request served by the HTTP server.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
