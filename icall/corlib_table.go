package icall

import (
	"unsafe"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
)

// Alloc is the allocator internal-call bodies reach for when they need to
// write through the GC's barrier (Array.FastCopy's element stores):
// clrtype.Invoker carries no Allocator parameter of its own, since the
// interpreted-IL invoker shape it was generalized from never needed one.
// Installed once by the runtime facade alongside ResolveMethodPtr.
var Alloc object.Allocator

// CorlibClasses names the fixed corlib classes CorlibTable walks looking
// for internal-call methods to wire, trimmed to the three that actually
// declare any in this runtime's supported subset.
type CorlibClasses struct {
	Object *clrtype.RtClass
	Array  *clrtype.RtClass
	String *clrtype.RtClass
}

// CorlibTable builds the internal-call and self-allocating-constructor
// rows corlib's own managed source declares against this runtime, per
// spec.md §4.10's "the per-area tables... are loaded into the registry at
// startup." Grounded on the original source's per-file
// s_internal_call_entries[] tables (system_object.cpp, system_array.cpp),
// but keyed by the real Signature computed off the materialized
// MethodInfo rather than a hand-spelled string, so a signature-rendering
// change in Signature/typeName can never silently desync the table from
// what bindMethod actually looks up. Callers must have already run
// types.Object/Array/String's own Initialize so Methods is populated;
// CorlibTable only reads, it never materializes.
func CorlibTable(types CorlibClasses) ([]Entry, []NewObjEntry, error) {
	for _, c := range []*clrtype.RtClass{types.Object, types.Array, types.String} {
		if c == nil {
			return nil, nil, clrerrors.New(clrerrors.PhaseICall, clrerrors.KindExecutionEngine).
				Detail("CorlibTable requires Object, Array, and String to already be resolved and initialized").Build()
		}
	}

	var entries []Entry
	add := func(class *clrtype.RtClass, name string, paramCount int, invoke clrtype.Invoker) error {
		m, ok := findMethod(class, name, paramCount)
		if !ok {
			return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
				Path(class.Namespace+"."+class.Name, name).
				Detail("corlib table expected %s.%s to declare %s with %d parameters", class.Namespace, class.Name, name, paramCount).
				Build()
		}
		entries = append(entries, Entry{Signature: Signature(m), MethodPtr: 0, Invoke: invoke})
		return nil
	}

	if err := add(types.Object, "InternalGetHashCode", 0, invokeObjectInternalGetHashCode); err != nil {
		return nil, nil, err
	}
	if err := add(types.Array, "GetRank", 0, invokeArrayGetRank); err != nil {
		return nil, nil, err
	}
	if err := add(types.Array, "GetLength", 1, invokeArrayGetLength); err != nil {
		return nil, nil, err
	}
	if err := add(types.Array, "GetLowerBound", 1, invokeArrayGetLowerBound); err != nil {
		return nil, nil, err
	}
	if err := add(types.Array, "ClearInternal", 2, invokeArrayClearInternal); err != nil {
		return nil, nil, err
	}
	if err := add(types.Array, "FastCopy", 5, invokeArrayFastCopy); err != nil {
		return nil, nil, err
	}

	var newObjs []NewObjEntry
	addCtor := func(class *clrtype.RtClass, paramCount int, fn NewObjFunc) error {
		m, ok := findMethod(class, ".ctor", paramCount)
		if !ok {
			return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
				Path(class.Namespace+"."+class.Name, ".ctor").
				Detail("corlib table expected %s.%s to declare a %d-argument constructor", class.Namespace, class.Name, paramCount).
				Build()
		}
		newObjs = append(newObjs, NewObjEntry{Signature: Signature(m), Func: fn})
		return nil
	}
	if err := addCtor(types.String, 1, StringCtorFromChars); err != nil {
		return nil, nil, err
	}
	if err := addCtor(types.String, 2, StringCtorRepeat); err != nil {
		return nil, nil, err
	}

	return entries, newObjs, nil
}

// findMethod locates class's own declared method named name with exactly
// paramCount declared parameters (no implicit this). Corlib's fixed
// method set never overloads any of the names CorlibTable looks for, so a
// name+arity match is unambiguous — the same assumption the original
// source's literal "Namespace.Class::Name" table keys make.
func findMethod(class *clrtype.RtClass, name string, paramCount int) (*clrtype.MethodInfo, bool) {
	for _, m := range class.Methods {
		if m.Name == name && len(m.ParamTypesigs) == paramCount {
			return m, true
		}
	}
	return nil, false
}

// invokeObjectInternalGetHashCode backs Object.InternalGetHashCode: the
// original casts the raw object pointer to an int32 (system_object.cpp's
// get_hash_code). object.Handle must not be used here — it hands out a
// fresh table slot on every call, so two calls on the same instance could
// return different values. unsafe.Pointer identity is stable for the
// instance's lifetime, matching the original's pointer-as-hash-code
// scheme.
func invokeObjectInternalGetHashCode(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	this := GetParam[*object.RtObject](params, 0)
	if this == nil {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindNullReference).Build()
	}
	SetReturn(ret, int32(uintptr(unsafe.Pointer(this))))
	return nil
}

func thisArray(params []uint64) (*object.RtObject, error) {
	arr := GetParam[*object.RtObject](params, 0)
	if arr == nil {
		return nil, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindNullReference).Build()
	}
	return arr, nil
}

func invokeArrayGetRank(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	arr, err := thisArray(params)
	if err != nil {
		return err
	}
	rank := len(arr.Bounds)
	if rank == 0 {
		rank = 1
	}
	SetReturn(ret, int32(rank))
	return nil
}

func dimensionBound(arr *object.RtObject, dimension int32) (clrtype.ArrayBound, error) {
	if len(arr.Bounds) == 0 {
		if dimension != 0 {
			return clrtype.ArrayBound{}, clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(dimension), 1)
		}
		return clrtype.ArrayBound{LowerBound: 0, Size: arr.Length}, nil
	}
	if dimension < 0 || int(dimension) >= len(arr.Bounds) {
		return clrtype.ArrayBound{}, clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(dimension), len(arr.Bounds))
	}
	return arr.Bounds[dimension], nil
}

func invokeArrayGetLength(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	arr, err := thisArray(params)
	if err != nil {
		return err
	}
	dimension := GetParam[int32](params, 1)
	bound, err := dimensionBound(arr, dimension)
	if err != nil {
		return err
	}
	SetReturn(ret, bound.Size)
	return nil
}

func invokeArrayGetLowerBound(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	arr, err := thisArray(params)
	if err != nil {
		return err
	}
	dimension := GetParam[int32](params, 1)
	bound, err := dimensionBound(arr, dimension)
	if err != nil {
		return err
	}
	SetReturn(ret, bound.LowerBound)
	return nil
}

func invokeArrayClearInternal(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	arr, err := thisArray(params)
	if err != nil {
		return err
	}
	index := GetParam[int32](params, 1)
	length := GetParam[int32](params, 2)
	if index < 0 || length < 0 || index+length > arr.Length {
		return clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(index), int(arr.Length))
	}
	object.ClearInternal(arr, index, length)
	return nil
}

func invokeArrayFastCopy(_ uintptr, _ *clrtype.MethodInfo, params, ret []uint64) error {
	if Alloc == nil {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindExecutionEngine).
			Detail("Array.FastCopy invoked with no icall.Alloc installed").Build()
	}
	src := GetParam[*object.RtObject](params, 0)
	srcIdx := GetParam[int32](params, 1)
	dst := GetParam[*object.RtObject](params, 2)
	dstIdx := GetParam[int32](params, 3)
	length := GetParam[int32](params, 4)
	if src == nil || dst == nil {
		return clrerrors.New(clrerrors.PhaseArray, clrerrors.KindNullReference).Build()
	}
	ok, err := object.FastCopy(Alloc, src, dst, srcIdx, dstIdx, length)
	if err != nil {
		return err
	}
	SetReturn(ret, ok)
	return nil
}
