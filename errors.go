package entitycache

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// AlternateKeyConflictError reports that an alternate key is already bound
// to a different primary key within the same cache.
type AlternateKeyConflictError struct {
	ValueType      string
	AlternateKey   string
	RequestedOwner string
	ExistingOwner  string
}

func (e *AlternateKeyConflictError) Error() string {
	return fmt.Sprintf(
		"entitycache: value type %q: alternate key %q already bound to primary key %q, cannot rebind to %q",
		e.ValueType, e.AlternateKey, e.ExistingOwner, e.RequestedOwner,
	)
}

// ShapeError reports an argument to SetAllAny that is not a slice, or a
// slice element that is not a SetArg for the cache's value type. SetAll
// and SetAllAsync take a typed []SetArg[V] and never return it.
type ShapeError struct {
	ValueType string
	Reason    string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("entitycache: value type %q: %s", e.ValueType, e.Reason)
}

// NoEntryGetterError reports a forced cache miss (notFromCache) with no
// getter available to populate the entry.
type NoEntryGetterError struct {
	ValueType string
	Key       string
}

func (e *NoEntryGetterError) Error() string {
	return fmt.Sprintf("entitycache: value type %q: no entry getter available to populate key %q", e.ValueType, e.Key)
}

// AggregateHandlerError is raised when one or more listeners threw during
// dispatch of a ChangeRecord. Every handler in the dispatch still runs;
// this is raised once, after all of them have. It wraps a
// *multierror.Error so callers can use multierror.Append/errors.Is against
// the underlying handler errors.
type AggregateHandlerError struct {
	Invoked int
	Failed  int
	errs    *multierror.Error
}

func (e *AggregateHandlerError) Error() string {
	return fmt.Sprintf("entitycache: %d of %d change listeners failed: %s", e.Failed, e.Invoked, e.errs.Error())
}

// Unwrap exposes the individual handler errors (Go 1.20+ multi-error
// convention), in addition to multierror's own WrappedErrors().
func (e *AggregateHandlerError) Unwrap() []error {
	return e.errs.WrappedErrors()
}

// WrappedErrors returns the individual handler errors, in dispatch order.
func (e *AggregateHandlerError) WrappedErrors() []error {
	return e.errs.WrappedErrors()
}
