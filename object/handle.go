package object

import "sync"

// The uniform invoker ABI (spec.md §6.1) represents every argument and
// return slot as a flat uint64, including object references. A raw
// *RtObject stuffed into a uint64 (via unsafe.Pointer/uintptr) would be
// invisible to Go's garbage collector — the same hazard the array
// ValueData/RefData split in array.go addresses for array elements.
// Handles solve it the other way: the real *RtObject lives in this
// process-wide, GC-traced slice, and only its integer index crosses the
// slot boundary. Grounded on resource/table.go + resource/backend_local.go's
// handle-indexed storage, the generation-counter-free variant since a
// delegate/icall call's handles never outlive the call that created them.
var (
	handleMu    sync.RWMutex
	handleSlots []*RtObject
	handleFree  []uint64
)

// Handle returns a uint64 slot value referencing obj; 0 represents nil.
func Handle(obj *RtObject) uint64 {
	if obj == nil {
		return 0
	}
	handleMu.Lock()
	defer handleMu.Unlock()
	if n := len(handleFree); n > 0 {
		h := handleFree[n-1]
		handleFree = handleFree[:n-1]
		handleSlots[h-1] = obj
		return h
	}
	handleSlots = append(handleSlots, obj)
	return uint64(len(handleSlots))
}

// FromHandle resolves a handle back to its *RtObject; 0 resolves to nil.
func FromHandle(h uint64) *RtObject {
	if h == 0 {
		return nil
	}
	handleMu.RLock()
	defer handleMu.RUnlock()
	return handleSlots[h-1]
}

// ReleaseHandle returns h to the freelist. Callers must not resolve h
// afterward.
func ReleaseHandle(h uint64) {
	if h == 0 {
		return
	}
	handleMu.Lock()
	defer handleMu.Unlock()
	handleSlots[h-1] = nil
	handleFree = append(handleFree, h)
}
