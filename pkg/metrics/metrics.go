// Package metrics exposes the Prometheus metrics of the PhotoRoom client.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, executor, batch) to maintain modularity and avoid circular
// dependencies. This package serves them over HTTP together with health
// and readiness probes.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer used by the PhotoRoom client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// ReadyCheck reports whether a dependency (e.g. Redis) is usable.
type ReadyCheck func(ctx context.Context) error

// readyTimeout bounds a single readiness probe.
const readyTimeout = 2 * time.Second

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// HealthHandler always answers 200 OK.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// ReadyHandler answers 503 when any check fails.
func ReadyHandler(checks map[string]ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s not ready: %v", name, err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "READY")
	}
}

// NewMux routes /metrics, /health and /ready.
func NewMux(checks map[string]ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ready", ReadyHandler(checks))
	return mux
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - photoroom_rate_limit_tokens (Gauge): Tokens left after the last acquisition
//   - photoroom_rate_limit_waits_total (Counter): Acquisitions that had to wait
//   - photoroom_rate_limit_wait_seconds (Histogram): Time spent waiting for tokens
//   - photoroom_rate_limit_rejections_total (Counter): Acquisitions rejected by the error strategy
//
// Retry Metrics (pkg/executor):
//   - photoroom_retries_total{error_class} (Counter): Retry attempts by error class
//   - photoroom_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - photoroom_retry_exhausted_total{error_class} (Counter): Operations that exhausted max retries
//
// Request Metrics (pkg/client):
//   - photoroom_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - photoroom_request_duration_seconds{endpoint} (Histogram): Duration including retries
//   - photoroom_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Cache Metrics (pkg/cache):
//   - photoroom_cache_hits_total (Counter): Images served from Redis
//   - photoroom_cache_misses_total (Counter): Cache misses
//   - photoroom_cache_stored_bytes_total (Counter): Image bytes written to the cache
//   - photoroom_cache_errors_total{operation} (Counter): Cache operation errors
//
// Batch Metrics (pkg/batch):
//   - photoroom_batch_items_total{outcome} (Counter): Processed items by outcome
//   - photoroom_batch_runs_total{state} (Counter): Finished runs by final state
//   - photoroom_batch_duration_seconds (Histogram): Run duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(photoroom_cache_hits_total[5m])) /
//   (sum(rate(photoroom_cache_hits_total[5m])) + sum(rate(photoroom_cache_misses_total[5m])))
//
//   # Retry pressure
//   sum by (error_class) (rate(photoroom_retries_total[5m]))
//
//   # Batch failure ratio
//   rate(photoroom_batch_items_total{outcome="failed"}[5m]) / rate(photoroom_batch_items_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(photoroom_request_duration_seconds_bucket[5m]))
