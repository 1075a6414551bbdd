package icall

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/delegate"
	"github.com/clrvm/clrvm/object"
)

// ResolveMethodPtr maps a raw method pointer slot — as produced by the IL
// ldftn opcode ahead of a delegate newobj — back to the MethodInfo it
// names. Installed by the runtime facade once method pointers are
// assigned; DelegateCtor fails loudly if asked to resolve one before
// that's wired up.
var ResolveMethodPtr func(ptr uintptr) (*clrtype.MethodInfo, bool)

// StringCtorFromChars is the self-allocating String(char[]) constructor:
// params[0] is the source char array's handle.
func StringCtorFromChars(alloc object.Allocator, class *clrtype.RtClass, params []uint64) (*object.RtObject, error) {
	arr := GetParam[*object.RtObject](params, 0)
	if arr == nil {
		return nil, clrerrors.New(clrerrors.PhaseString, clrerrors.KindArgumentNull).
			Detail("String(char[]) constructor given a null array").Build()
	}
	units := bytesToUTF16(arr.ValueData)
	str, err := object.FastAllocateString(class, int32(len(units)))
	if err != nil {
		return nil, err
	}
	copy(str.Chars, units)
	return str, nil
}

// StringCtorRepeat is the self-allocating String(char, int32) constructor:
// params[0] is the repeated char, params[1] the repeat count.
func StringCtorRepeat(alloc object.Allocator, class *clrtype.RtClass, params []uint64) (*object.RtObject, error) {
	c := GetParam[uint16](params, 0)
	count := GetParam[int32](params, 1)
	str, err := object.FastAllocateString(class, count)
	if err != nil {
		return nil, err
	}
	for i := range str.Chars {
		str.Chars[i] = c
	}
	return str, nil
}

// DelegateCtor is the self-allocating Delegate(object, IntPtr) constructor
// every compiler-generated delegate type's newobj resolves to: params[0]
// is the bound target (null for a static method), params[1] is the
// method pointer ldftn pushed.
func DelegateCtor(alloc object.Allocator, class *clrtype.RtClass, params []uint64) (*object.RtObject, error) {
	target := GetParam[*object.RtObject](params, 0)
	methodPtr := GetParam[uintptr](params, 1)

	if ResolveMethodPtr == nil {
		return nil, clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
			Detail("no ResolveMethodPtr installed to bind delegate %s.%s", class.Namespace, class.Name).Build()
	}
	method, ok := ResolveMethodPtr(methodPtr)
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
			Detail("method pointer %#x does not resolve to a known method", methodPtr).Build()
	}
	return delegate.New(alloc, class, target, method)
}

func bytesToUTF16(b []byte) []uint16 {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return units
}
