// Package metrics exposes the Prometheus registry and scrape handler.
// Metrics themselves are defined next to the code that updates them
// (client, cache, ratelimit, catalog, names) via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all packages register with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metric catalogue
//
// Catalog (pkg/catalog):
//   - esi_catalog_records (Gauge): price records held after the last load
//   - esi_catalog_loads_total{result} (Counter): catalog loads by result (loaded, failed)
//
// Names (pkg/names):
//   - esi_name_lookups_total{result} (Counter): per-id lookups (ok, failed, empty)
//   - esi_name_batches_total (Counter): finished name batches
//   - esi_name_batch_duration_seconds (Histogram): wall time per batch
//   - esi_name_cache_entries (Gauge): resolved names held
//
// Rate limit (pkg/ratelimit):
//   - esi_errors_remaining (Gauge): errors left in the current ESI window
//   - esi_rate_limit_decisions_total{decision} (Counter): allow, throttle, block
//
// Cache (pkg/cache):
//   - esi_cache_hits_total{freshness} (Counter): hits by fresh or stale
//   - esi_cache_misses_total (Counter)
//   - esi_conditional_requests_total (Counter): requests sent with If-None-Match
//   - esi_304_responses_total (Counter)
//   - esi_cache_errors_total{operation} (Counter)
//
// Requests (pkg/client):
//   - esi_requests_total{endpoint, status} (Counter)
//   - esi_request_duration_seconds{endpoint} (Histogram)
//   - esi_errors_total{class} (Counter): client, server, rate_limit, network
//
// Example queries:
//
//	# Share of page names still unresolved after lookups
//	sum(rate(esi_name_lookups_total{result!="ok"}[5m])) / sum(rate(esi_name_lookups_total[5m]))
//
//	# Cache hit rate
//	sum(rate(esi_cache_hits_total[5m])) /
//	(sum(rate(esi_cache_hits_total[5m])) + sum(rate(esi_cache_misses_total[5m])))
//
//	# P95 name batch latency
//	histogram_quantile(0.95, rate(esi_name_batch_duration_seconds_bucket[5m]))
