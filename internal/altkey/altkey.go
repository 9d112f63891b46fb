// Package altkey implements the secondary alternate-key -> primary-key
// index layered over a cache's ordered map. It follows the teacher's own
// "plain map guarded by the owning cache's lock" idiom (golang-lru's
// items map[K]*Element) rather than adding its own locking: callers
// serialize access the same way the Cache facade serializes OrderedMap
// access.
package altkey

import "fmt"

// ConflictError reports that an alternate key is already bound to a
// different primary key than the one being introduced.
type ConflictError[K comparable] struct {
	AltKey         K
	RequestedOwner K
	ExistingOwner  K
}

func (e *ConflictError[K]) Error() string {
	return fmt.Sprintf("alternate key %v already bound to primary key %v, cannot rebind to %v", e.AltKey, e.ExistingOwner, e.RequestedOwner)
}

// Index maps alternate keys to the primary key that owns them.
type Index[K comparable] struct {
	altToPrimary map[K]K
}

// New constructs an empty index.
func New[K comparable]() *Index[K] {
	return &Index[K]{altToPrimary: make(map[K]K)}
}

// Resolve returns the primary key bound to altKey, if any. It does not
// know about primary keys directly - the Cache facade checks the
// OrderedMap first and only falls back to Resolve.
func (i *Index[K]) Resolve(altKey K) (primary K, ok bool) {
	primary, ok = i.altToPrimary[altKey]
	return primary, ok
}

// Bind associates altKey with primaryKey. Binding to the same primary key
// it is already bound to is a no-op (idempotent). Binding to a different
// primary key than its current owner fails with *ConflictError.
func (i *Index[K]) Bind(altKey, primaryKey K) error {
	if existing, found := i.altToPrimary[altKey]; found {
		if existing == primaryKey {
			return nil
		}
		return &ConflictError[K]{AltKey: altKey, RequestedOwner: primaryKey, ExistingOwner: existing}
	}
	i.altToPrimary[altKey] = primaryKey
	return nil
}

// Unbind removes a single alternate key, regardless of owner.
func (i *Index[K]) Unbind(altKey K) {
	delete(i.altToPrimary, altKey)
}

// UnbindAll removes every alternate key in the given set.
func (i *Index[K]) UnbindAll(altKeys []K) {
	for _, k := range altKeys {
		delete(i.altToPrimary, k)
	}
}

// Clear drops every binding.
func (i *Index[K]) Clear() {
	i.altToPrimary = make(map[K]K)
}
