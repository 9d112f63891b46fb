package entitycache

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
)

// handleID is an opaque registry key. A monotonic counter is sufficient -
// it only needs to be unique within this process's registry, unlike e.g.
// jinterlante1206-AleutianLocal's agent-facing identifiers, which cross
// process boundaries and so use google/uuid; there is no such boundary
// here, so a counter avoids an otherwise-unjustified dependency.
type handleID uint64

// Handle is returned by RegisterCacheChangedHandler / ListenerRegistry.Register.
// It is the caller's only way to deactivate or unregister a listener; the
// cache never tracks handles on the caller's behalf (spec's "no
// referential-integrity guarantee" non-goal).
type Handle struct {
	id       handleID
	registry *ListenerRegistry

	mu         sync.Mutex
	active     bool
	registered bool
}

// Unregister removes the handler from the registry permanently. Safe to
// call more than once.
func (h *Handle) Unregister() {
	h.mu.Lock()
	if !h.registered {
		h.mu.Unlock()
		return
	}
	h.registered = false
	h.active = false
	h.mu.Unlock()
	h.registry.remove(h.id)
}

// Activate re-enables a deactivated handler; no-op if already active or
// unregistered.
func (h *Handle) Activate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered || h.active {
		return
	}
	h.active = true
	h.registry.setActive(h.id, true)
}

// Deactivate disables a handler without unregistering it; its filter
// stays recorded, it simply stops receiving dispatches until reactivated.
func (h *Handle) Deactivate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered || !h.active {
		return
	}
	h.active = false
	h.registry.setActive(h.id, false)
}

// IsRegistered reports whether the handle has not been unregistered.
func (h *Handle) IsRegistered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

type registration struct {
	handler    ChangeHandler
	valueTypes map[string]struct{} // nil means "all"
	active     bool
}

// ListenerRegistry tracks every registered change handler and answers,
// per dispatch, which handles are interested in a set of touched value
// types. Grounded on the teacher's single onEvictedCB slot
// (golang-lru's lru.go), generalized from "at most one callback" to "many
// registered handles, each independently filterable and toggleable".
type ListenerRegistry struct {
	mu sync.Mutex

	nextID handleID
	byID   map[handleID]*registration

	// activeHandlerKeysByType mirrors spec.md's valueTypeToActiveHandlerKeys:
	// per-type index of active (registered+active) handle ids.
	activeHandlerKeysByType map[string]map[handleID]struct{}
	// allTypesActiveHandlerKeys mirrors spec.md's allTypesActiveHandlerKeys.
	allTypesActiveHandlerKeys map[handleID]struct{}

	// registrationOrder preserves insertion order for dispatch, since Go
	// maps do not iterate deterministically and spec.md requires handlers
	// invoked "in registration order".
	registrationOrder []handleID

	log logr.Logger
}

// NewListenerRegistry constructs an empty registry. Exported so a host
// application can run an isolated registry in tests instead of sharing
// the package-level singleton.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		byID:                      make(map[handleID]*registration),
		activeHandlerKeysByType:   make(map[string]map[handleID]struct{}),
		allTypesActiveHandlerKeys: make(map[handleID]struct{}),
		log:                       logr.Discard(),
	}
}

// SetLogger installs a logr.Logger used for debug-level observability
// (V(1)) of registration and dispatch errors. Defaults to
// a discard logger, matching the teacher's silent-by-default behavior.
func (r *ListenerRegistry) SetLogger(l logr.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = l
}

// Register adds handler to the registry. valueTypes empty means "all
// value types" (spec.md OQ3): a caller that wants to scope a listener
// must name at least one concrete value type.
func (r *ListenerRegistry) Register(handler ChangeHandler, valueTypes ...string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	var filter map[string]struct{}
	if len(valueTypes) > 0 {
		filter = make(map[string]struct{}, len(valueTypes))
		for _, vt := range valueTypes {
			filter[vt] = struct{}{}
		}
	}

	r.byID[id] = &registration{handler: handler, valueTypes: filter, active: true}
	r.registrationOrder = append(r.registrationOrder, id)
	r.indexActive(id, filter)

	r.log.V(1).Info("registered change handler", "valueTypes", valueTypes)

	return &Handle{id: id, registry: r, active: true, registered: true}
}

func (r *ListenerRegistry) indexActive(id handleID, filter map[string]struct{}) {
	if filter == nil {
		r.allTypesActiveHandlerKeys[id] = struct{}{}
		return
	}
	for vt := range filter {
		set, ok := r.activeHandlerKeysByType[vt]
		if !ok {
			set = make(map[handleID]struct{})
			r.activeHandlerKeysByType[vt] = set
		}
		set[id] = struct{}{}
	}
}

func (r *ListenerRegistry) deindexActive(id handleID, filter map[string]struct{}) {
	if filter == nil {
		delete(r.allTypesActiveHandlerKeys, id)
		return
	}
	for vt := range filter {
		if set, ok := r.activeHandlerKeysByType[vt]; ok {
			delete(set, id)
		}
	}
}

func (r *ListenerRegistry) remove(id handleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return
	}
	if reg.active {
		r.deindexActive(id, reg.valueTypes)
	}
	delete(r.byID, id)
	for i, rid := range r.registrationOrder {
		if rid == id {
			r.registrationOrder = append(r.registrationOrder[:i], r.registrationOrder[i+1:]...)
			break
		}
	}
}

func (r *ListenerRegistry) setActive(id handleID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok || reg.active == active {
		return
	}
	reg.active = active
	if active {
		r.indexActive(id, reg.valueTypes)
	} else {
		r.deindexActive(id, reg.valueTypes)
	}
}

// activeHandlersFor returns, in registration order, every active handler
// interested in at least one of valueTypes.
func (r *ListenerRegistry) activeHandlersFor(valueTypes map[string]struct{}) []ChangeHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[handleID]struct{})
	for id := range r.allTypesActiveHandlerKeys {
		want[id] = struct{}{}
	}
	for vt := range valueTypes {
		for id := range r.activeHandlerKeysByType[vt] {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil
	}

	handlers := make([]ChangeHandler, 0, len(want))
	for _, id := range r.registrationOrder {
		if _, ok := want[id]; ok {
			handlers = append(handlers, r.byID[id].handler)
		}
	}
	return handlers
}

// hasInterest reports whether any active handler would receive a record
// touching valueType, letting a Cache skip event bookkeeping entirely
// when nothing is listening (spec.md §4.3's short-circuit optimization).
func (r *ListenerRegistry) hasInterest(valueType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.allTypesActiveHandlerKeys) > 0 {
		return true
	}
	return len(r.activeHandlerKeysByType[valueType]) > 0
}

// dispatch invokes every handler interested in record's value types, in
// registration order, collecting errors rather than stopping early.
func (r *ListenerRegistry) dispatch(record *ChangeRecord) error {
	handlers := r.activeHandlersFor(record.ValueTypes)
	if len(handlers) == 0 {
		return nil
	}

	var merr *multierror.Error
	failed := 0
	for _, h := range handlers {
		if err := h(record); err != nil {
			merr = multierror.Append(merr, err)
			failed++
			r.log.V(1).Info("change handler returned an error", "error", err)
		}
	}
	if failed == 0 {
		return nil
	}
	return &AggregateHandlerError{Invoked: len(handlers), Failed: failed, errs: merr}
}
