package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Core request/hit/miss counters, labelled by volatility class
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of cache read requests",
		},
		[]string{"class"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"class"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses or stale reads",
		},
		[]string{"class"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_fetch_duration_seconds",
			Help:    "Duration of backend fetches triggered by cache misses",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_fetch_retries_total",
			Help: "Total number of transient-error fetch retries",
		},
		[]string{"class"},
	)

	// Mutation outcomes: committed, rolled_back, late_rollback_skipped
	OptimisticMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_optimistic_mutations_total",
			Help: "Total number of optimistic mutations by outcome",
		},
		[]string{"outcome"},
	)

	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of cache invalidations",
		},
		[]string{"domain", "source"},
	)

	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_feed_events_total",
			Help: "Total number of change-feed events received",
		},
		[]string{"table", "event"},
	)

	FeedSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_feed_subscriptions",
			Help: "Number of active change-feed registrations",
		},
	)

	// Store occupancy
	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_store_entries",
			Help: "Number of resident cache entries",
		},
	)

	StoreValueBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_store_value_bytes",
			Help: "Resident cache payload bytes in the value arena",
		},
	)
)

// RecordCacheRequest records a cache read request.
func RecordCacheRequest(class string) {
	CacheRequests.WithLabelValues(class).Inc()
}

// RecordCacheHit records a fresh cache hit.
func RecordCacheHit(class string) {
	CacheHits.WithLabelValues(class).Inc()
}

// RecordCacheMiss records a miss or stale read.
func RecordCacheMiss(class string) {
	CacheMisses.WithLabelValues(class).Inc()
}

// RecordFetchRetry records one transient-error retry.
func RecordFetchRetry(class string) {
	FetchRetries.WithLabelValues(class).Inc()
}

// RecordMutationOutcome records how an optimistic mutation settled.
func RecordMutationOutcome(outcome string) {
	OptimisticMutations.WithLabelValues(outcome).Inc()
}

// RecordInvalidation records an invalidation and where it came from
// ("mutation", "feed", "manual").
func RecordInvalidation(domain, source string) {
	Invalidations.WithLabelValues(domain, source).Inc()
}

// RecordFeedEvent records one received change-feed event.
func RecordFeedEvent(table, event string) {
	FeedEvents.WithLabelValues(table, event).Inc()
}

// UpdateStoreOccupancy updates the store occupancy gauges.
func UpdateStoreOccupancy(entries int, valueBytes int64) {
	StoreEntries.Set(float64(entries))
	StoreValueBytes.Set(float64(valueBytes))
}

// TimeFetch returns a timer function for measuring one backend fetch.
func TimeFetch(class string) func() {
	timer := prometheus.NewTimer(FetchDuration.WithLabelValues(class))
	return func() {
		timer.ObserveDuration()
	}
}
