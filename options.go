package entitycache

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxSize is the cap a Cache gets when no WithMaxSize option is
// given, matching spec.md §3.
const DefaultMaxSize = 500

type cacheConfig struct {
	maxSize              int
	dispatchLruRemoves   bool
	dispatchClearRemoves bool
	registerer           prometheus.Registerer
	logger               logr.Logger
	locker               RWLocker
}

func defaultCacheConfig() cacheConfig {
	return cacheConfig{
		maxSize: DefaultMaxSize,
		logger:  logr.Discard(),
		locker:  &sync.RWMutex{},
	}
}

// Option configures a Cache at GetCache time. Grounded on
// drsherluck-flux-pkg/cache's Options/makeOptions functional-options
// pattern (visible in that package's metrics_test.go call sites) and on
// the teacher's own NewWithEvict(size, onEvicted) constructor-option
// style.
type Option func(*cacheConfig)

// WithMaxSize sets the eviction cap. n <= 0 means unbounded, same
// normalization as OrderedMap.SetMaxSize.
func WithMaxSize(n int) Option {
	return func(c *cacheConfig) { c.maxSize = n }
}

// WithDispatchLruRemoves enables recording an lruRemove event for every
// entry evicted by capacity pressure.
func WithDispatchLruRemoves(enabled bool) Option {
	return func(c *cacheConfig) { c.dispatchLruRemoves = enabled }
}

// WithDispatchClearRemoves enables recording a clearRemove event for
// every entry dropped by Clear.
func WithDispatchClearRemoves(enabled bool) Option {
	return func(c *cacheConfig) { c.dispatchClearRemoves = enabled }
}

// WithMetricsRegisterer registers this cache's Prometheus collectors with
// r, scoping metrics collection to callers that opt in rather than
// registering globally as a side effect of GetCache.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(c *cacheConfig) { c.registerer = r }
}

// WithLogger installs a per-cache logr.Logger for debug-level (V(1))
// observability of alternate-key conflicts and overflow evictions.
func WithLogger(l logr.Logger) Option {
	return func(c *cacheConfig) { c.logger = l }
}

// WithLocker swaps the RWLocker a Cache takes for every mutating
// operation. See NoOpRWLocker's doc comment for when that is safe.
func WithLocker(l RWLocker) Option {
	return func(c *cacheConfig) { c.locker = l }
}
