package entitycache

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics mirrors the metric families drsherluck-flux-pkg/cache's
// metrics_test.go asserts against (that package's producing metrics.go
// was not part of the retrieval pack, only its test and call sites, but
// the test pins the exact names/labels below), generalized from Flux's
// Kind/name/namespace/operation event labels to this library's
// value-type/status vocabulary.
type cacheMetrics struct {
	events     *prometheus.CounterVec // cache_events_total{event_type, value_type}
	requests   *prometheus.CounterVec // cache_requests_total{status}
	evictions  *prometheus.CounterVec // cache_evictions_total{value_type}
	cachedSize *prometheus.GaugeVec   // cached_items{value_type}
}

func newCacheMetrics(prefix string, reg prometheus.Registerer) *cacheMetrics {
	m := &cacheMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_events_total",
			Help: "Total number of cache retrieval events for a value type.",
		}, []string{"event_type", "value_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_requests_total",
			Help: "Total number of cache requests partitioned by success or failure.",
		}, []string{"status"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_evictions_total",
			Help: "Total number of cache evictions, by value type.",
		}, []string{"value_type"}),
		cachedSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "cached_items",
			Help: "Current number of items in the cache, by value type.",
		}, []string{"value_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.requests, m.evictions, m.cachedSize)
	}
	return m
}

const (
	eventTypeHit  = "cache_hit"
	eventTypeMiss = "cache_miss"

	statusSuccess = "success"
	statusFailure = "failure"
)

func (m *cacheMetrics) recordEvent(eventType, valueType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, valueType).Inc()
}

func (m *cacheMetrics) recordRequest(status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(status).Inc()
}

func (m *cacheMetrics) recordEviction(valueType string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(valueType).Inc()
}

func (m *cacheMetrics) setSize(valueType string, size int) {
	if m == nil {
		return
	}
	m.cachedSize.WithLabelValues(valueType).Set(float64(size))
}

// CacheStats is a read-only snapshot of a cache's hit/miss/eviction
// counters, additive to spec.md (grounded on Krishna8167-tempuscache's
// Stats struct and drsherluck-flux-pkg's request/event counters).
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}
