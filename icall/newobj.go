package icall

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
)

// NewObjFunc is a self-allocating constructor: given the class being
// constructed and the IL newobj call's argument slots (the constructor's
// declared parameters, no implicit this — there is no instance yet), it
// allocates and fully initializes the instance itself. Strings and
// delegates both need this: a string's storage is sized from its
// constructor arguments, and a delegate's instance must be bound to a
// (target, method) pair at construction, neither of which fits the
// ordinary "instance already allocated, ctor just initializes fields"
// newobj path.
type NewObjFunc func(alloc object.Allocator, class *clrtype.RtClass, params []uint64) (*object.RtObject, error)

// NewObjEntry is one row of the newobj table (spec.md §4.10's "newobj
// variants... live in a parallel table"), keyed the same way the
// internal-call table is: the constructor's canonical Signature.
type NewObjEntry struct {
	Signature string
	Func      NewObjFunc
}

// NewObjRegistry is the third parallel table: consulted when the IL
// newobj opcode resolves a constructor that has no ordinary allocate-then-
// call-ctor path.
type NewObjRegistry struct {
	mu      sync.RWMutex
	entries map[string]NewObjFunc
}

// NewNewObjRegistry returns an empty NewObjRegistry.
func NewNewObjRegistry() *NewObjRegistry {
	return &NewObjRegistry{entries: make(map[string]NewObjFunc)}
}

// Register adds e to the table.
func (r *NewObjRegistry) Register(e NewObjEntry) error {
	if e.Signature == "" {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("newobj entry has an empty signature").Build()
	}
	if e.Func == nil {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("newobj entry %q has a nil constructor", e.Signature).Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Signature]; exists {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("newobj signature %q already registered", e.Signature).Build()
	}
	r.entries[e.Signature] = e.Func
	return nil
}

// RegisterTable bulk-registers entries, aggregating per-entry failures
// with multierr rather than aborting on the first bad one.
func (r *NewObjRegistry) RegisterTable(entries []NewObjEntry) error {
	var errs error
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Lookup resolves ctor's canonical signature to its self-allocating
// constructor, if any.
func (r *NewObjRegistry) Lookup(ctor *clrtype.MethodInfo) (NewObjFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.entries[Signature(ctor)]
	return fn, ok
}

// Construct invokes ctor's self-allocating constructor against params if
// one is registered, reporting ok=false when newobj on class/ctor should
// fall through to the ordinary allocate-then-call-ctor path instead.
func (r *NewObjRegistry) Construct(alloc object.Allocator, class *clrtype.RtClass, ctor *clrtype.MethodInfo, params []uint64) (obj *object.RtObject, ok bool, err error) {
	fn, found := r.Lookup(ctor)
	if !found {
		return nil, false, nil
	}
	obj, err = fn(alloc, class, params)
	return obj, true, err
}
