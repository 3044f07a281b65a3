// Package metrics is the reference point for the Prometheus metrics exported
// by the SDK. The collectors themselves live next to the code that updates
// them (client, discovery, connection, dtr) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every SDK metric name.
const Namespace = "tractusx"

// Registry is the default Prometheus registry used by the SDK.
var Registry = prometheus.DefaultRegisterer

// Handler exposes the default gatherer over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// HTTP adapter (pkg/client):
//   - tractusx_http_requests_total{service, method, status} (Counter)
//   - tractusx_http_request_duration_seconds{service} (Histogram)
//   - tractusx_http_errors_total{class} (Counter): client, server, rate_limit, network
//   - tractusx_http_retries_total{error_class} (Counter)
//   - tractusx_http_retry_backoff_seconds{error_class} (Histogram)
//   - tractusx_http_retry_exhausted_total{error_class} (Counter)
//
// Discovery (pkg/discovery):
//   - tractusx_discovery_cache_lookups_total{result} (Counter): hit, refreshed, stale, error
//   - tractusx_discovery_cache_entries (Gauge)
//
// Connection managers (pkg/connection):
//   - tractusx_connection_cache_entries{backend} (Gauge): memory, redis
//   - tractusx_connection_cache_operations_total{backend, operation, result} (Counter)
//
// Digital Twin Registry (pkg/dtr):
//   - tractusx_dtr_batch_fetch_duration_seconds (Histogram)
//   - tractusx_dtr_batch_fetched_total{result} (Counter): success, error
//
// Example Prometheus Queries:
//
//   # Discovery fallbacks in the last hour
//   increase(tractusx_discovery_cache_lookups_total{result="stale"}[1h])
//
//   # Connector API error rate
//   rate(tractusx_http_errors_total[5m])
//
//   # P95 connector API latency
//   histogram_quantile(0.95, rate(tractusx_http_request_duration_seconds_bucket[5m]))
