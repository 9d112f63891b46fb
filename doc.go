// Package entitycache provides per-value-type, in-process caches with LRU
// eviction, alternate-key lookup, and batched change notifications.
//
// Each value type gets its own Cache[V], retrieved with GetCache and kept
// alive for the life of the process. A Cache maps a string primary key to a
// value of type V, optionally reachable by any number of alternate keys,
// and evicts the least-recently-touched entry once it exceeds its
// configured size. Mutations inside CacheTransaction (or a Cache's *Async
// methods) are folded into a single ChangeRecord dispatched to every
// active listener interested in a touched value type once the outermost
// transaction closes.
//
// All caches in this package take an internal lock while mutating state
// and are therefore safe for concurrent use, even though the change model
// they implement - one ordered change record per transaction - assumes a
// single logical writer at a time; see CacheTransaction for what
// "batched" means when several goroutines overlap.
package entitycache
