package icall

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
)

func i4Sig() *clrtype.Typesig { return &clrtype.Typesig{Elem: clrtype.ElemI4} }

func corlibFixture() CorlibClasses {
	objectClass := &clrtype.RtClass{Namespace: "System", Name: "Object"}
	arrayClass := &clrtype.RtClass{Namespace: "System", Name: "Array"}
	stringClass := &clrtype.RtClass{Namespace: "System", Name: "String"}
	charArraySig := &clrtype.Typesig{Elem: clrtype.ElemSZArray, Element: &clrtype.Typesig{Elem: clrtype.ElemChar}}

	objectClass.Methods = []*clrtype.MethodInfo{
		{Owner: objectClass, Name: "InternalGetHashCode"},
	}
	arrayClass.Methods = []*clrtype.MethodInfo{
		{Owner: arrayClass, Name: "GetRank"},
		{Owner: arrayClass, Name: "GetLength", ParamTypesigs: []*clrtype.Typesig{i4Sig()}},
		{Owner: arrayClass, Name: "GetLowerBound", ParamTypesigs: []*clrtype.Typesig{i4Sig()}},
		{Owner: arrayClass, Name: "ClearInternal", ParamTypesigs: []*clrtype.Typesig{i4Sig(), i4Sig()}},
		{Owner: arrayClass, Name: "FastCopy", ParamTypesigs: []*clrtype.Typesig{
			{Elem: clrtype.ElemClass}, i4Sig(), {Elem: clrtype.ElemClass}, i4Sig(), i4Sig(),
		}},
	}
	stringClass.Methods = []*clrtype.MethodInfo{
		{Owner: stringClass, Name: ".ctor", ParamTypesigs: []*clrtype.Typesig{charArraySig}},
		{Owner: stringClass, Name: ".ctor", ParamTypesigs: []*clrtype.Typesig{{Elem: clrtype.ElemChar}, i4Sig()}},
	}

	return CorlibClasses{Object: objectClass, Array: arrayClass, String: stringClass}
}

func TestCorlibTableBuildsEveryExpectedEntry(t *testing.T) {
	entries, newObjs, err := CorlibTable(corlibFixture())
	if err != nil {
		t.Fatalf("CorlibTable: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("len(entries) = %d, want 6", len(entries))
	}
	if len(newObjs) != 2 {
		t.Fatalf("len(newObjs) = %d, want 2", len(newObjs))
	}
	if entries[0].Signature != "System.Object::InternalGetHashCode()" {
		t.Fatalf("entries[0].Signature = %q", entries[0].Signature)
	}
}

func TestCorlibTableMissingMethodFails(t *testing.T) {
	fixture := corlibFixture()
	fixture.Array.Methods = nil
	if _, _, err := CorlibTable(fixture); err == nil {
		t.Fatal("CorlibTable must fail when a required method is missing")
	}
}

func TestInvokeObjectInternalGetHashCodeIsStable(t *testing.T) {
	obj := &object.RtObject{}
	params := []uint64{object.Handle(obj)}
	defer object.ReleaseHandle(params[0])
	ret := make([]uint64, 1)

	if err := invokeObjectInternalGetHashCode(0, nil, params, ret); err != nil {
		t.Fatalf("invokeObjectInternalGetHashCode: %v", err)
	}
	first := ret[0]

	ret2 := make([]uint64, 1)
	if err := invokeObjectInternalGetHashCode(0, nil, params, ret2); err != nil {
		t.Fatalf("invokeObjectInternalGetHashCode: %v", err)
	}
	if ret2[0] != first {
		t.Fatalf("hash code changed across calls on the same instance: %d != %d", ret2[0], first)
	}
}

func TestInvokeObjectInternalGetHashCodeRejectsNull(t *testing.T) {
	params := []uint64{0}
	ret := make([]uint64, 1)
	if err := invokeObjectInternalGetHashCode(0, nil, params, ret); err == nil {
		t.Fatal("expected a NullReference error for a null this")
	}
}

func TestInvokeArrayGetRankSZArray(t *testing.T) {
	arr := &object.RtObject{Length: 5}
	params := []uint64{object.Handle(arr)}
	defer object.ReleaseHandle(params[0])
	ret := make([]uint64, 1)
	if err := invokeArrayGetRank(0, nil, params, ret); err != nil {
		t.Fatalf("invokeArrayGetRank: %v", err)
	}
	if int32(ret[0]) != 1 {
		t.Fatalf("rank = %d, want 1", int32(ret[0]))
	}
}

func TestInvokeArrayGetLengthAndLowerBoundMultiDim(t *testing.T) {
	arr := &object.RtObject{Bounds: []clrtype.ArrayBound{{LowerBound: 0, Size: 2}, {LowerBound: 1, Size: 3}}}
	params := []uint64{object.Handle(arr), 1}
	defer object.ReleaseHandle(params[0])
	ret := make([]uint64, 1)

	if err := invokeArrayGetLength(0, nil, params, ret); err != nil {
		t.Fatalf("invokeArrayGetLength: %v", err)
	}
	if int32(ret[0]) != 3 {
		t.Fatalf("GetLength(1) = %d, want 3", int32(ret[0]))
	}

	ret2 := make([]uint64, 1)
	if err := invokeArrayGetLowerBound(0, nil, params, ret2); err != nil {
		t.Fatalf("invokeArrayGetLowerBound: %v", err)
	}
	if int32(ret2[0]) != 1 {
		t.Fatalf("GetLowerBound(1) = %d, want 1", int32(ret2[0]))
	}
}

func TestInvokeArrayGetLengthRejectsBadDimension(t *testing.T) {
	arr := &object.RtObject{Length: 4}
	params := []uint64{object.Handle(arr), 1}
	defer object.ReleaseHandle(params[0])
	ret := make([]uint64, 1)
	if err := invokeArrayGetLength(0, nil, params, ret); err == nil {
		t.Fatal("expected an IndexOutOfRange error for an SZ-array queried at dimension 1")
	}
}

func TestInvokeArrayClearInternalZeroesValueElements(t *testing.T) {
	arr := &object.RtObject{Class: valueElemArrayClass(), Length: 4, ValueData: []byte{1, 2, 3, 4}}
	params := []uint64{object.Handle(arr), 1, 2}
	defer object.ReleaseHandle(params[0])
	if err := invokeArrayClearInternal(0, nil, params, nil); err != nil {
		t.Fatalf("invokeArrayClearInternal: %v", err)
	}
	want := []byte{1, 0, 0, 4}
	for i, b := range want {
		if arr.ValueData[i] != b {
			t.Fatalf("ValueData = %v, want %v", arr.ValueData, want)
		}
	}
}

func TestInvokeArrayClearInternalRejectsOutOfRange(t *testing.T) {
	arr := &object.RtObject{Class: valueElemArrayClass(), Length: 4, ValueData: []byte{1, 2, 3, 4}}
	params := []uint64{object.Handle(arr), 3, 5}
	defer object.ReleaseHandle(params[0])
	if err := invokeArrayClearInternal(0, nil, params, nil); err == nil {
		t.Fatal("expected an IndexOutOfRange error for a clear past the array's length")
	}
}

func TestInvokeArrayFastCopyRequiresAllocInstalled(t *testing.T) {
	old := Alloc
	Alloc = nil
	defer func() { Alloc = old }()

	arr := &object.RtObject{Class: valueElemArrayClass(), Length: 2, ValueData: []byte{1, 2}}
	params := []uint64{object.Handle(arr), 0, object.Handle(arr), 0, 1}
	defer object.ReleaseHandle(params[0])
	defer object.ReleaseHandle(params[2])
	ret := make([]uint64, 1)
	if err := invokeArrayFastCopy(0, nil, params, ret); err == nil {
		t.Fatal("expected an error when icall.Alloc is not installed")
	}
}

func TestInvokeArrayFastCopyCopiesSameClass(t *testing.T) {
	old := Alloc
	Alloc = object.NewSimpleAllocator()
	defer func() { Alloc = old }()

	class := valueElemArrayClass()
	src := &object.RtObject{Class: class, Length: 3, ValueData: []byte{1, 2, 3}}
	dst := &object.RtObject{Class: class, Length: 3, ValueData: []byte{0, 0, 0}}
	params := []uint64{object.Handle(src), 0, object.Handle(dst), 0, 3}
	defer object.ReleaseHandle(params[0])
	defer object.ReleaseHandle(params[2])
	ret := make([]uint64, 1)
	if err := invokeArrayFastCopy(0, nil, params, ret); err != nil {
		t.Fatalf("invokeArrayFastCopy: %v", err)
	}
	if ret[0] == 0 {
		t.Fatal("FastCopy on same-class arrays must report true")
	}
	for i, b := range src.ValueData {
		if dst.ValueData[i] != b {
			t.Fatalf("dst.ValueData = %v, want a copy of %v", dst.ValueData, src.ValueData)
		}
	}
}

func valueElemArrayClass() *clrtype.RtClass {
	byteClass := &clrtype.RtClass{Namespace: "System", Name: "Byte", Extra: clrtype.ExtraValueType, InstanceSize: 1}
	return &clrtype.RtClass{Namespace: "System", Name: "Byte[]", Family: clrtype.FamilyArrayOrSZArray, ElementClass: byteClass}
}
