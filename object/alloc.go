// Package object implements the managed object model: RtObject's array
// and string variants, boxing, and array operations (spec.md §4.6).
package object

import (
	"sync"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
)

// Allocator is the collector contract the core relies on (spec.md §5):
// allocate_object, allocate_array, allocate_fixed (non-GC'd), and
// allocate_fixed_reference_array (GC-scanned roots), plus the write
// barrier every reference store must route through.
type Allocator interface {
	AllocateObject(class *clrtype.RtClass) (*RtObject, error)
	AllocateArray(class *clrtype.RtClass, length int32, rank int) (*RtObject, error)
	AllocateFixed(size uint32) ([]byte, error)
	AllocateFixedReferenceArray(count int) ([]*RtObject, error)
	WriteBarrier(holder *RtObject, offset uint32, value *RtObject)
}

// SimpleAllocator is a reference Allocator: Go's own garbage collector
// already traces every *RtObject reachable from a live root, so
// allocation here is a plain heap allocation and the write barrier is a
// pass-through observer hook rather than a card-marking or generational
// barrier. Grounded on resource/backend_local.go's Observer/Event
// notification pattern, adapted from resource-table lifecycle events to
// per-store notification.
type SimpleAllocator struct {
	mu        sync.RWMutex
	observers []WriteObserver
}

// WriteObserver is notified on every write-barriered reference store.
type WriteObserver func(holder *RtObject, offset uint32, value *RtObject)

// NewSimpleAllocator returns a ready-to-use SimpleAllocator.
func NewSimpleAllocator() *SimpleAllocator {
	return &SimpleAllocator{}
}

// Subscribe registers a WriteObserver, called on every WriteBarrier.
func (a *SimpleAllocator) Subscribe(o WriteObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// AllocateObject fully initializes class, runs its static constructor
// dependency chain's materialization (not the .cctor itself — that is the
// execution engine's job), and returns a zero-initialized instance.
func (a *SimpleAllocator) AllocateObject(class *clrtype.RtClass) (*RtObject, error) {
	if err := class.Initialize(); err != nil {
		return nil, err
	}
	return &RtObject{
		Class: class,
		Kind:  KindPlain,
		Data:  make([]byte, class.InstanceSize),
	}, nil
}

// AllocateArray allocates an SZ-array (rank 1, nil Bounds) or an
// MD-array's trailing ArrayBounds block, per spec.md §4.6.
func (a *SimpleAllocator) AllocateArray(class *clrtype.RtClass, length int32, rank int) (*RtObject, error) {
	if length < 0 {
		return nil, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindArgumentOutOfRange).
			Detail("array length %d is negative", length).Build()
	}
	if err := class.Initialize(); err != nil {
		return nil, err
	}
	elemIsValue := class.ElementClass.Extra&clrtype.ExtraValueType != 0
	elemSize := clrtype.ElementSize(class.ElementClass)
	total := uint64(length) * uint64(elemSize)
	if elemSize != 0 && total/uint64(elemSize) != uint64(length) {
		return nil, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindOverflow).
			Detail("array byte size overflow: length=%d elemSize=%d", length, elemSize).Build()
	}
	arr := &RtObject{Class: class, Kind: KindArray, Length: length}
	if elemIsValue {
		arr.ValueData = make([]byte, total)
	} else {
		arr.RefData = make([]*RtObject, length)
	}
	if rank > 1 {
		arr.Bounds = make([]clrtype.ArrayBound, rank)
	}
	return arr, nil
}

// AllocateFixed returns a non-GC'd byte buffer (struct/array unmanaged
// storage, e.g. a class's static storage block).
func (a *SimpleAllocator) AllocateFixed(size uint32) ([]byte, error) {
	return make([]byte, size), nil
}

// AllocateFixedReferenceArray returns a GC-scanned root array: slots
// holding managed references that must survive independent of any
// RtObject/RtArray container (e.g. a module's static reference-typed
// fields).
func (a *SimpleAllocator) AllocateFixedReferenceArray(count int) ([]*RtObject, error) {
	return make([]*RtObject, count), nil
}

// WriteBarrier notifies every subscribed observer of a reference store.
// Go's collector already traces the stored pointer correctly; this exists
// so write-barrier-routed code (box/unbox, array element stores, static
// field stores) has one real call site, per spec.md §5's "the core must
// not bypass them."
func (a *SimpleAllocator) WriteBarrier(holder *RtObject, offset uint32, value *RtObject) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, o := range a.observers {
		o(holder, offset, value)
	}
}
