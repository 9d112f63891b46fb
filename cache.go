package entitycache

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/venkatsvpr/entitycache/internal/altkey"
	"github.com/venkatsvpr/entitycache/internal/ordmap"
)

// internalEntry is the value stored in the OrderedMap: the payload plus
// the live, mutable set of alternate keys bound to it. Entry[V] (the
// public type) is always a point-in-time copy derived from this.
type internalEntry[V any] struct {
	value   V
	altKeys map[string]struct{}
}

// SetArg describes one upsert passed to SetAll.
type SetArg[V any] struct {
	Key           string
	Value         V
	AlternateKeys []string
}

// EntryGetter is invoked on a cache miss to populate an entry. ok=false
// (with a nil error) means "no such entry exists"; the cache stays a
// miss and nothing is inserted. Concurrent Get calls for the same missing
// key share a single EntryGetter invocation (see GetWithOptions).
type EntryGetter[V any] func(key string) (entry Entry[V], ok bool, err error)

// GetOptions customizes a single Get call. See Cache.GetWithOptions.
type GetOptions[V any] struct {
	// NotFromCache forces the getter to run even if the key is already
	// cached; fails with *NoEntryGetterError if no getter is available.
	NotFromCache bool
	// Getter overrides the cache's configured EntryGetter for this call
	// only (spec.md's customGetter > entryGetter precedence).
	Getter EntryGetter[V]
}

// Cache is the per-value-type facade binding an OrderedMap, an
// AltKeyIndex, and the package-wide ChangeAggregator. Grounded on the
// teacher's Cache[K,V] (lru.go), generalized with alternate keys, change
// events, and miss-populate getters (fill.go).
type Cache[V any] struct {
	valueType string
	locker    RWLocker

	data    *ordmap.Map[string, internalEntry[V]]
	altKeys *altkey.Index[string]
	agg     *changeAggregator

	dispatchLruRemoves   bool
	dispatchClearRemoves bool

	entryGetter EntryGetter[V]
	sf          singleflight.Group

	metrics *cacheMetrics
	log     logr.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func newCache[V any](valueType string, agg *changeAggregator, opts ...Option) *Cache[V] {
	cfg := defaultCacheConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var metrics *cacheMetrics
	if cfg.registerer != nil {
		metrics = newCacheMetrics("entitycache_", cfg.registerer)
	}

	return &Cache[V]{
		valueType:            valueType,
		locker:               cfg.locker,
		data:                 ordmap.New[string, internalEntry[V]](cfg.maxSize),
		altKeys:              altkey.New[string](),
		agg:                  agg,
		dispatchLruRemoves:   cfg.dispatchLruRemoves,
		dispatchClearRemoves: cfg.dispatchClearRemoves,
		metrics:              metrics,
		log:                  cfg.logger,
	}
}

// GetValueType returns the value-type name this cache was retrieved with.
func (c *Cache[V]) GetValueType() string { return c.valueType }

// GetSize returns the number of live entries.
func (c *Cache[V]) GetSize() int {
	c.locker.RLock()
	defer c.locker.RUnlock()
	return c.data.GetSize()
}

// GetMaxSize returns the current cap, or 0 for unbounded.
func (c *Cache[V]) GetMaxSize() int {
	c.locker.RLock()
	defer c.locker.RUnlock()
	return c.data.GetMaxSize()
}

// SetMaxSize changes the cap. A shrink evicts the oldest entries until
// the new cap is satisfied; if DispatchLruRemoves is enabled, each
// eviction is recorded as an lruRemove inside one transaction.
func (c *Cache[V]) SetMaxSize(n int) error {
	return c.agg.transaction(func() error {
		c.locker.Lock()
		evicted := c.data.SetMaxSize(n)
		for _, ev := range evicted {
			c.altKeys.UnbindAll(sortedAltKeys(ev.Value.altKeys))
		}
		c.metrics.setSize(c.valueType, c.data.GetSize())
		c.locker.Unlock()

		for _, ev := range evicted {
			c.metrics.recordEviction(c.valueType)
			c.evictions.Add(1)
			if c.dispatchLruRemoves {
				c.recordChange(KindLruRemove, ev.Key, ev.Value.value, ev.Value.altKeys)
			}
		}
		return nil
	})
}

// DispatchLruRemoves toggles whether capacity-driven evictions are
// recorded as lruRemove events.
func (c *Cache[V]) DispatchLruRemoves(enabled bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.dispatchLruRemoves = enabled
}

// DispatchClearRemoves toggles whether Clear records a clearRemove event
// per dropped entry.
func (c *Cache[V]) DispatchClearRemoves(enabled bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.dispatchClearRemoves = enabled
}

// SetEntryGetter installs (or, passed nil, removes) the getter invoked on
// a cache miss.
func (c *Cache[V]) SetEntryGetter(getter EntryGetter[V]) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.entryGetter = getter
}

// Stats returns a snapshot of this cache's hit/miss/eviction counters.
func (c *Cache[V]) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Set is equivalent to SetAll with a single entry.
func (c *Cache[V]) Set(key string, value V, alternateKeys ...string) error {
	return c.SetAll([]SetArg[V]{{Key: key, Value: value, AlternateKeys: alternateKeys}})
}

// SetAll upserts every entry under one transaction: one dispatch covers
// every insert (and any resulting LRU eviction) across the whole batch.
// If an alternate-key conflict is found partway through, the entries
// already applied remain applied and are still reflected in the
// dispatched record; the error is returned after that partial work
// completes (spec.md §7's propagation policy).
func (c *Cache[V]) SetAll(entries []SetArg[V]) error {
	return c.agg.transaction(func() error {
		for _, e := range entries {
			if err := c.setOne(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetAllAny accepts entries as any so a caller without a concrete []SetArg[V]
// in hand (e.g. reflecting over a dynamically assembled batch) still gets
// spec.md's ShapeError instead of a compile error; entries must be a
// []SetArg[V] or a slice of any holding SetArg[V] elements.
func (c *Cache[V]) SetAllAny(entries any) error {
	if typed, ok := entries.([]SetArg[V]); ok {
		return c.SetAll(typed)
	}

	rv := reflect.ValueOf(entries)
	if rv.Kind() != reflect.Slice {
		return &ShapeError{ValueType: c.valueType, Reason: "setAll requires a slice argument"}
	}
	typed := make([]SetArg[V], rv.Len())
	for i := 0; i < rv.Len(); i++ {
		arg, ok := rv.Index(i).Interface().(SetArg[V])
		if !ok {
			return &ShapeError{ValueType: c.valueType, Reason: fmt.Sprintf("setAll element %d is not a SetArg for this cache's value type", i)}
		}
		typed[i] = arg
	}
	return c.SetAll(typed)
}

// setOne applies one upsert. Must be called from inside an open
// transaction (SetAll always wraps its loop in one).
func (c *Cache[V]) setOne(e SetArg[V]) error {
	c.locker.Lock()

	for _, ak := range e.AlternateKeys {
		if owner, ok := c.altKeys.Resolve(ak); ok && owner != e.Key {
			c.locker.Unlock()
			c.log.V(1).Info("alternate key conflict", "alternateKey", ak, "requestedOwner", e.Key, "existingOwner", owner)
			return &AlternateKeyConflictError{ValueType: c.valueType, AlternateKey: ak, RequestedOwner: e.Key, ExistingOwner: owner}
		}
		if _, ok := c.data.GetWithoutLruChange(ak); ok && ak != e.Key {
			c.locker.Unlock()
			c.log.V(1).Info("alternate key conflict with another entry's primary key", "alternateKey", ak, "requestedOwner", e.Key)
			return &AlternateKeyConflictError{ValueType: c.valueType, AlternateKey: ak, RequestedOwner: e.Key, ExistingOwner: ak}
		}
	}

	altSet := make(map[string]struct{})
	if existing, ok := c.data.GetWithoutLruChange(e.Key); ok {
		for ak := range existing.altKeys {
			altSet[ak] = struct{}{}
		}
	}
	for _, ak := range e.AlternateKeys {
		altSet[ak] = struct{}{}
	}

	evicted, didEvict := c.data.Set(e.Key, internalEntry[V]{value: e.Value, altKeys: altSet})
	for ak := range altSet {
		_ = c.altKeys.Bind(ak, e.Key) // validated above; cannot conflict here
	}
	if didEvict {
		c.altKeys.UnbindAll(sortedAltKeys(evicted.Value.altKeys))
	}
	c.metrics.setSize(c.valueType, c.data.GetSize())
	c.locker.Unlock()

	c.recordChange(KindInsert, e.Key, e.Value, altSet)
	if didEvict {
		c.metrics.recordEviction(c.valueType)
		c.evictions.Add(1)
		c.log.V(1).Info("evicted oldest entry on overflow", "key", evicted.Key)
		if c.dispatchLruRemoves {
			c.recordChange(KindLruRemove, evicted.Key, evicted.Value.value, evicted.Value.altKeys)
		}
	}
	return nil
}

// Get resolves keyOrAlt (checked first as a primary key, then as an
// alternate key), touches the resolved entry to newest, and returns its
// value. On a miss, the configured EntryGetter (if any) is invoked to
// populate the entry; concurrent Get calls for the same missing key share
// one EntryGetter invocation.
func (c *Cache[V]) Get(keyOrAlt string) (V, bool, error) {
	return c.GetWithOptions(keyOrAlt, GetOptions[V]{})
}

// GetWithoutLruChange looks up keyOrAlt like Get but without touching
// recency order. It reads the cache only: on a miss it returns false and
// does not invoke any EntryGetter.
func (c *Cache[V]) GetWithoutLruChange(keyOrAlt string) (V, bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	primary, ok := c.resolveLocked(keyOrAlt)
	if !ok {
		var zero V
		return zero, false
	}
	entry, _ := c.data.GetWithoutLruChange(primary)
	return entry.value, true
}

// Has reports whether keyOrAlt resolves to a live entry, without
// consulting the getter or touching recency.
func (c *Cache[V]) Has(keyOrAlt string) bool {
	c.locker.RLock()
	defer c.locker.RUnlock()
	_, ok := c.resolveLocked(keyOrAlt)
	return ok
}

// GetWithOptions is Get with spec.md's notFromCache/customGetter
// parameters.
func (c *Cache[V]) GetWithOptions(keyOrAlt string, opts GetOptions[V]) (V, bool, error) {
	if !opts.NotFromCache {
		c.locker.Lock()
		primary, ok := c.resolveLocked(keyOrAlt)
		if ok {
			entry, _ := c.data.Get(primary)
			c.locker.Unlock()
			c.metrics.recordEvent(eventTypeHit, c.valueType)
			c.hits.Add(1)
			return entry.value, true, nil
		}
		c.locker.Unlock()
	}

	c.locker.RLock()
	getter := opts.Getter
	if getter == nil {
		getter = c.entryGetter
	}
	c.locker.RUnlock()

	if getter == nil {
		c.metrics.recordEvent(eventTypeMiss, c.valueType)
		c.misses.Add(1)
		if opts.NotFromCache {
			return *new(V), false, &NoEntryGetterError{ValueType: c.valueType, Key: keyOrAlt}
		}
		return *new(V), false, nil
	}

	result, err, _ := c.sf.Do(keyOrAlt, func() (any, error) {
		entry, found, gerr := getter(keyOrAlt)
		if gerr != nil {
			return nil, gerr
		}
		if !found {
			return nil, nil
		}
		if err := c.Set(entry.Key, entry.Value, entry.AlternateKeys...); err != nil {
			return nil, err
		}
		return entry.Value, nil
	})

	if err != nil {
		c.metrics.recordEvent(eventTypeMiss, c.valueType)
		c.misses.Add(1)
		return *new(V), false, err
	}
	if result == nil {
		c.metrics.recordEvent(eventTypeMiss, c.valueType)
		c.misses.Add(1)
		return *new(V), false, nil
	}
	c.metrics.recordEvent(eventTypeHit, c.valueType)
	c.hits.Add(1)
	return result.(V), true, nil
}

// resolveLocked resolves keyOrAlt to a primary key under c.locker, which
// the caller must already hold (Lock or RLock).
func (c *Cache[V]) resolveLocked(keyOrAlt string) (string, bool) {
	if _, ok := c.data.GetWithoutLruChange(keyOrAlt); ok {
		return keyOrAlt, true
	}
	return c.altKeys.Resolve(keyOrAlt)
}

// Delete removes the entry resolved from key (primary or alternate key;
// see SPEC_FULL.md OQ1), unbinding its alternate keys and recording a
// deleteRemove event. Returns whether an entry was present.
func (c *Cache[V]) Delete(key string) (bool, error) {
	var removed bool
	err := c.agg.transaction(func() error {
		c.locker.Lock()
		primary, ok := c.resolveLocked(key)
		if !ok {
			c.locker.Unlock()
			return nil
		}
		entry, _ := c.data.GetWithoutLruChange(primary)
		c.data.Delete(primary)
		c.altKeys.UnbindAll(sortedAltKeys(entry.altKeys))
		c.metrics.setSize(c.valueType, c.data.GetSize())
		c.locker.Unlock()

		removed = true
		c.recordChange(KindDeleteRemove, primary, entry.value, entry.altKeys)
		return nil
	})
	return removed, err
}

// Clear drops every entry and resets the alternate-key index. If
// DispatchClearRemoves is enabled, every dropped entry is recorded as a
// clearRemove, all inside one transaction.
func (c *Cache[V]) Clear() error {
	return c.agg.transaction(func() error {
		c.locker.Lock()
		dropped := c.data.Clear()
		c.altKeys.Clear()
		c.metrics.setSize(c.valueType, 0)
		dispatch := c.dispatchClearRemoves
		c.locker.Unlock()

		if dispatch {
			for _, ev := range dropped {
				c.recordChange(KindClearRemove, ev.Key, ev.Value.value, ev.Value.altKeys)
			}
		}
		return nil
	})
}

// GetEntries returns a snapshot of every live entry, oldest->newest.
func (c *Cache[V]) GetEntries() []Entry[V] {
	c.locker.RLock()
	defer c.locker.RUnlock()
	var out []Entry[V]
	c.data.ForEach(func(v internalEntry[V], k string) {
		out = append(out, Entry[V]{Key: k, Value: v.value, AlternateKeys: sortedAltKeys(v.altKeys)})
	})
	return out
}

// ForEach traverses every live entry oldest->newest without touching
// recency order.
func (c *Cache[V]) ForEach(cb func(value V, key string)) {
	c.locker.RLock()
	defer c.locker.RUnlock()
	c.data.ForEach(func(v internalEntry[V], k string) { cb(v.value, k) })
}

// recordChange records one event, skipping the aggregator entirely if no
// listener is interested in this value type (spec.md §4.3's short-circuit
// optimization).
func (c *Cache[V]) recordChange(kind ChangeKind, key string, value V, altKeys map[string]struct{}) {
	if !c.agg.registry.hasInterest(c.valueType) {
		return
	}
	_ = c.agg.recordChange(c.valueType, kind, ChangeEntry{
		Key:           key,
		Value:         value,
		AlternateKeys: sortedAltKeys(altKeys),
	})
}
