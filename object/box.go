package object

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
)

// hasValueOffset is the nullable value type's fixed layout: a one-byte
// HasValue flag at offset 0, then the wrapped value at this offset,
// matching the BCL's Nullable<T> layout convention.
const hasValueOffset = 8

// Box copies a raw value of klass into a freshly allocated boxed instance.
// For Nullable<T>, a HasValue byte of 0 yields a nil box; otherwise the
// underlying value (whose class is recorded on klass.ElementClass) is
// boxed from the value's own storage (spec.md §4.6).
func Box(alloc Allocator, klass *clrtype.RtClass, value []byte) (*RtObject, error) {
	if klass.Extra&clrtype.ExtraNullable != 0 {
		if len(value) == 0 || value[0] == 0 {
			return nil, nil
		}
		return Box(alloc, klass.ElementClass, value[hasValueOffset:])
	}
	obj, err := alloc.AllocateObject(klass)
	if err != nil {
		return nil, err
	}
	copy(obj.Data, value)
	return obj, nil
}

// UnboxAny type-checks obj against klass.ElementClass.CastClass and
// copies its payload into dst; extendToStack promotes a small integer
// payload to a full 32-bit stack slot the way the evaluation-stack ABI
// requires (spec.md §4.6, §6.1). For Nullable<T>, a nil obj zero-inits
// dst (HasValue=0); otherwise dst[0] is set to 1 and the value follows.
func UnboxAny(klass *clrtype.RtClass, obj *RtObject, dst []byte, extendToStack bool) error {
	if klass.Extra&clrtype.ExtraNullable != 0 {
		for i := range dst {
			dst[i] = 0
		}
		if obj == nil {
			return nil
		}
		dst[0] = 1
		return UnboxAny(klass.ElementClass, obj, dst[hasValueOffset:], false)
	}
	if obj == nil {
		return clrerrors.New(clrerrors.PhaseBox, clrerrors.KindNullReference).Build()
	}
	target := klass
	if klass.ElementClass != nil {
		target = klass.ElementClass
	}
	if target.CastClass != nil {
		target = target.CastClass
	}
	if !target.IsAssignableFrom(obj.Class) {
		return clrerrors.New(clrerrors.PhaseBox, clrerrors.KindInvalidCast).
			Detail("cannot unbox %s.%s as %s.%s", obj.Class.Namespace, obj.Class.Name, klass.Namespace, klass.Name).
			Build()
	}
	n := copy(dst, obj.Data)
	if extendToStack && n > 0 && n < len(dst) {
		sext := signExtends(target)
		for i := n; i < len(dst); i++ {
			if sext {
				dst[i] = 0xFF
			} else {
				dst[i] = 0
			}
		}
	}
	return nil
}

// signExtends reports whether unboxing klass to a full stack slot sign-
// extends rather than zero-extends, per spec.md §4.6: SByte/Int16 sign-
// extend; Byte/UInt16/Boolean/Char always zero-extend regardless of the
// value's own bit pattern. Dispatched on the corlib primitive's own name
// rather than a typesig, the same way widthForEnumClass does (ByValTypesig
// is only populated for generic instantiations, not every materialized
// TypeDef).
func signExtends(klass *clrtype.RtClass) bool {
	if klass.Namespace != "System" {
		return false
	}
	switch klass.Name {
	case "SByte", "Int16":
		return true
	default:
		return false
	}
}

// UnboxEx returns obj's payload after an exact element-class match,
// without copying — used when an existing value-type location is
// addressed directly rather than read out (spec.md §4.6).
func UnboxEx(klass *clrtype.RtClass, obj *RtObject) ([]byte, error) {
	if obj == nil {
		return nil, clrerrors.New(clrerrors.PhaseBox, clrerrors.KindNullReference).Build()
	}
	if obj.Class != klass {
		return nil, clrerrors.New(clrerrors.PhaseBox, clrerrors.KindInvalidCast).
			Detail("unbox_ex requires an exact class match: got %s.%s, want %s.%s",
				obj.Class.Namespace, obj.Class.Name, klass.Namespace, klass.Name).
			Build()
	}
	return obj.Data, nil
}
