package entitycache

import "sync"

// changeAggregator batches mutation events into a single ChangeRecord per
// transaction and dispatches it once the outermost transaction closes.
// Grounded on the teacher's "mutate under lock, invoke callback outside
// the critical section" idiom (golang-lru's Purge/Add: the eviction
// callback always runs after c.lock.Unlock()); generalized here from one
// callback to a full dispatch plus error aggregation.
type changeAggregator struct {
	mu sync.Mutex

	record              *ChangeRecord
	order               int
	runningTransactions int

	registry *ListenerRegistry
}

func newChangeAggregator(registry *ListenerRegistry) *changeAggregator {
	return &changeAggregator{registry: registry}
}

// transaction runs work with mutations folded into the open accumulator,
// opening one if none is active. Nested/overlapping calls (including
// concurrent calls from other goroutines, which this Go port serializes
// with a.mu rather than relying on a single-threaded host) join the
// existing accumulator; the combined record dispatches only when the
// transaction counter returns to zero. Dispatch errors are collected into
// an AggregateHandlerError and returned by the call that closed the
// transaction; a non-nil error from work takes priority in the return
// value, but the dispatch still runs and its error is not silently
// dropped if work succeeded.
func (a *changeAggregator) transaction(work func() error) error {
	a.mu.Lock()
	if a.record == nil {
		a.record = newChangeRecord()
		a.order = 0
	}
	a.runningTransactions++
	a.mu.Unlock()

	workErr := work()

	a.mu.Lock()
	a.runningTransactions--
	var rec *ChangeRecord
	if a.runningTransactions == 0 {
		rec = a.record
		a.record = nil
		a.order = 0
	}
	a.mu.Unlock()

	var dispatchErr error
	if rec != nil {
		dispatchErr = a.registry.dispatch(rec)
	}
	if workErr != nil {
		return workErr
	}
	return dispatchErr
}

// recordChange appends one event to the currently open transaction, or -
// if none is open - opens a transient one-shot transaction that
// dispatches immediately after this single event is recorded (spec.md
// §4.3's "non-batched single-mutation path"). Returns any dispatch error
// from that transient path; inside an open transaction it always returns
// nil (the eventual dispatch error surfaces from the call that closes the
// transaction).
func (a *changeAggregator) recordChange(valueType string, kind ChangeKind, entry ChangeEntry) error {
	a.mu.Lock()
	transient := a.record == nil
	if transient {
		a.record = newChangeRecord()
		a.order = 0
	}
	entry.Order = a.order
	a.order++
	a.record.append(valueType, kind, entry)

	var rec *ChangeRecord
	if transient {
		rec = a.record
		a.record = nil
		a.order = 0
	}
	a.mu.Unlock()

	if transient {
		return a.registry.dispatch(rec)
	}
	return nil
}
