package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// runsTotal counts engine runs.
	// Labels: status (ok, partial, or an error kind)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sourcecheck",
		Name:      "runs_total",
		Help:      "Verification runs by outcome",
	}, []string{"status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sourcecheck",
		Name:      "run_duration_seconds",
		Help:      "Verification run latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"status"})

	// claimsTotal counts verified claims.
	// Labels: verdict
	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sourcecheck",
		Name:      "claims_total",
		Help:      "Verified claims by verdict",
	}, []string{"verdict"})

	// backendCalls counts calls to the verification backend after retries.
	// Labels: backend, op (similarity, entailment), status (ok, cached, error)
	backendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sourcecheck",
		Subsystem: "backend",
		Name:      "calls_total",
		Help:      "Verification backend calls by outcome",
	}, []string{"backend", "op", "status"})

	backendRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sourcecheck",
		Subsystem: "backend",
		Name:      "retries_total",
		Help:      "Verification backend retry attempts",
	}, []string{"backend", "op"})
)

// ObserveRun records a finished run
func ObserveRun(status string, elapsed time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveClaim records one claim verdict
func ObserveClaim(verdict string) {
	claimsTotal.WithLabelValues(verdict).Inc()
}

// ObserveBackendCall records the outcome of a backend call
func ObserveBackendCall(backend, op, status string) {
	backendCalls.WithLabelValues(backend, op, status).Inc()
}

// ObserveBackendRetry records a retry attempt
func ObserveBackendRetry(backend, op string) {
	backendRetries.WithLabelValues(backend, op).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
