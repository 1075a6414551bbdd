package object

import "github.com/clrvm/clrvm/clrtype"

// Kind discriminates the handful of built-in layouts that add data after
// the RtObject header (spec.md §3.5). A Go struct-of-all-variants stands
// in for the native "header followed by variant-specific bytes" layout:
// exact byte-for-byte interop isn't meaningful from managed Go code, and
// this runtime's own consumer is the frame machine in this same module,
// so the fields below are grouped by Kind instead of laid out at raw
// offsets. This is an explicit departure from spec.md's literal C layout,
// recorded as an Open Question decision in DESIGN.md.
type Kind byte

const (
	KindPlain Kind = iota
	KindArray
	KindString
	KindDelegate
)

// RtObject is every managed object: a class pointer, one sync-block
// word, and Kind-specific payload fields (spec.md §3.5).
type RtObject struct {
	Class     *clrtype.RtClass
	SyncBlock uint64
	Kind      Kind

	// KindPlain and KindDelegate: instance field storage, laid out at the
	// byte offsets clrtype's field materializer computed.
	Data []byte

	// KindArray.
	Length int32
	Bounds []clrtype.ArrayBound
	// Exactly one of ValueData/RefData is populated, chosen by whether
	// the element class is a value type or a reference type.
	ValueData []byte
	RefData   []*RtObject

	// KindString: UTF-16 code units, exactly Length of them; no trailing
	// zero sentinel follows them.
	Chars []uint16

	// KindDelegate: the bound (target, method) pair spec.md §4.7
	// describes as `dele`, plus the optional multicast fan-out list
	// (`deles`) — present here rather than on a separate RtDelegate type
	// for the same reason array/string data live directly on RtObject:
	// a bare *RtObject is what every other package passes around, and it
	// must carry whatever Kind-specific state a caller might need back.
	DelTarget *RtObject
	DelMethod *clrtype.MethodInfo
	DelChain  []*RtObject
}

// FieldBytes returns the byte range of field f within o's instance
// storage, sized by the caller (clrtype.fieldSizeAlign's unexported twin
// lives in clrtype; object just slices what it's told).
func (o *RtObject) FieldBytes(f *clrtype.FieldInfo, size uint32) []byte {
	return o.Data[f.Offset : f.Offset+size]
}

// IsInst returns obj if it is assignable to klass, else nil — spec.md
// §4.6's is_inst; it never raises.
func IsInst(obj *RtObject, klass *clrtype.RtClass) *RtObject {
	if obj == nil {
		return nil
	}
	if klass.IsAssignableFrom(obj.Class) {
		return obj
	}
	return nil
}

// CastClass is the assignability test the castclass IL instruction calls
// through; the instruction itself (and its raise-on-failure behavior)
// lives in the execution engine, outside this package (spec.md §4.6).
func CastClass(obj *RtObject, klass *clrtype.RtClass) (*RtObject, bool) {
	if obj == nil {
		return nil, true
	}
	if klass.IsAssignableFrom(obj.Class) {
		return obj, true
	}
	return nil, false
}

// Clone makes a shallow copy of obj: an array (SZ or multi-dimensional)
// clones via the array path (preserving bounds and data); anything else is a block copy of its
// instance data (spec.md §4.6).
func Clone(alloc Allocator, obj *RtObject) (*RtObject, error) {
	if obj.Kind == KindArray {
		return CloneArray(alloc, obj)
	}
	clone, err := alloc.AllocateObject(obj.Class)
	if err != nil {
		return nil, err
	}
	copy(clone.Data, obj.Data)
	return clone, nil
}
