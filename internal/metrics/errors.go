package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octolens",
		Name:      "errors_total",
		Help:      "Error responses by error code and HTTP status.",
	}, []string{"error_code", "http_status"})

	panicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octolens",
		Name:      "panics_total",
		Help:      "Recovered handler panics.",
	})

	errorsByEndpoint = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octolens",
		Name:      "errors_by_endpoint_total",
		Help:      "Error responses by route pattern and error code.",
	}, []string{"endpoint", "error_code"})
)

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	errorsTotal.WithLabelValues(errorCode, strconv.Itoa(httpStatus)).Inc()
}

// RecordPanic records a panic recovery
func RecordPanic() {
	panicsTotal.Inc()
}

// RecordErrorByEndpoint records an error by endpoint. endpoint should be a
// route pattern rather than a raw path.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	errorsByEndpoint.WithLabelValues(endpoint, errorCode).Inc()
}
