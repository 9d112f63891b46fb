package entitycache

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// clearable is the type-erased view of a Cache[V] the package-level
// registry needs for operations that aren't parameterized over V:
// ClearAllCaches has to reach every cache regardless of what it stores.
type clearable interface {
	Clear() error
	GetValueType() string
}

var (
	registryMu  sync.Mutex
	typedCaches = make(map[string]any)
	allCaches   = make(map[string]clearable)

	defaultRegistry   = NewListenerRegistry()
	defaultAggregator = newChangeAggregator(defaultRegistry)
)

// GetCache returns the process-wide singleton Cache for valueType,
// creating it lazily on first call (spec.md §3's lifecycle). Subsequent
// calls for the same valueType and the same V return the identical
// instance; options passed on a call after the first are ignored, same as
// a constructor argument would be on a second "construction" of an
// already-built object.
//
// Calling GetCache[V1](name) and later GetCache[V2](name) for the same
// name with a different concrete type panics: the source this was ported
// from has no equivalent because its caches are value-type-agnostic at
// runtime, but Go's generic instantiation is static per call site, so a
// mismatch here is a programmer error to catch immediately rather than
// something to quietly coerce (see SPEC_FULL.md OQ4).
func GetCache[V any](valueType string, opts ...Option) *Cache[V] {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := typedCaches[valueType]; ok {
		c, ok := existing.(*Cache[V])
		if !ok {
			panic(fmt.Sprintf("entitycache: GetCache called for value type %q with a different V than its first call", valueType))
		}
		return c
	}

	c := newCache[V](valueType, defaultAggregator, opts...)
	typedCaches[valueType] = c
	allCaches[valueType] = c
	return c
}

// ClearAllCaches clears every cache created through GetCache, all under
// one transaction, so listeners interested in more than one value type
// see a single combined ChangeRecord rather than one dispatch per cache.
func ClearAllCaches() error {
	registryMu.Lock()
	caches := make([]clearable, 0, len(allCaches))
	for _, c := range allCaches {
		caches = append(caches, c)
	}
	registryMu.Unlock()

	return defaultAggregator.transaction(func() error {
		var firstErr error
		for _, c := range caches {
			if err := c.Clear(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

// CacheTransaction batches every mutation work performs - across any
// number of caches - into a single dispatched ChangeRecord. Transactions
// and mutations from other goroutines that overlap it join the same open
// record, which dispatches once every open transaction has closed.
func CacheTransaction(work func() error) error {
	return defaultAggregator.transaction(work)
}

// RegisterCacheChangedHandler subscribes handler to change records. With
// no valueTypes, handler receives every record regardless of value type
// (spec.md OQ3).
func RegisterCacheChangedHandler(handler ChangeHandler, valueTypes ...string) *Handle {
	return defaultRegistry.Register(handler, valueTypes...)
}

// SetLogger installs a logr.Logger observing registration and dispatch
// activity across every cache and the package-level registry. Defaults to
// a discard logger.
func SetLogger(l logr.Logger) {
	defaultRegistry.SetLogger(l)
}

// resetRegistryForTest clears every package-level singleton. Exported
// only to _test.go files in this package via the lowercase name; kept
// here rather than in a _test.go file because it touches unexported
// globals used across multiple test files.
func resetRegistryForTest() {
	registryMu.Lock()
	typedCaches = make(map[string]any)
	allCaches = make(map[string]clearable)
	registryMu.Unlock()
	defaultRegistry = NewListenerRegistry()
	defaultAggregator = newChangeAggregator(defaultRegistry)
}
