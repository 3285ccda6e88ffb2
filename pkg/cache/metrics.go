package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts entries found in Redis, fresh or stale.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_hits_total",
			Help: "Total number of ESI cache hits",
		},
		[]string{"freshness"}, // "fresh", "stale"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_cache_misses_total",
			Help: "Total number of ESI cache misses",
		},
	)

	// ConditionalRequests counts requests sent with If-None-Match or If-Modified-Since.
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_conditional_requests_total",
			Help: "Total number of conditional requests sent to ESI",
		},
	)

	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esi_304_responses_total",
			Help: "Total number of ESI 304 Not Modified responses",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
