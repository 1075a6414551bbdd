package object

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
)

func TestNewSZArrayDelegatesToAllocator(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	arr, err := NewSZArray(alloc, arrClass, 3)
	if err != nil {
		t.Fatalf("NewSZArray: %v", err)
	}
	if arr.Length != 3 || len(arr.Bounds) != 0 {
		t.Fatalf("got length=%d bounds=%v, want length=3 no bounds (SZ-array)", arr.Length, arr.Bounds)
	}
}

func TestElementRefSetAndGet(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(objRefClass())
	arr, err := NewSZArray(alloc, arrClass, 3)
	if err != nil {
		t.Fatalf("NewSZArray: %v", err)
	}
	val := &RtObject{Class: objRefClass()}
	if err := SetElementRef(alloc, arr, val, 1); err != nil {
		t.Fatalf("SetElementRef: %v", err)
	}
	got, err := ElementRef(arr, 1)
	if err != nil {
		t.Fatalf("ElementRef: %v", err)
	}
	if got != val {
		t.Fatal("ElementRef should return the value stored by SetElementRef")
	}
}

func TestElementRefOutOfRange(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(objRefClass())
	arr, _ := NewSZArray(alloc, arrClass, 2)
	if _, err := ElementRef(arr, 5); err == nil {
		t.Fatal("expected an out-of-range error")
	}
	if _, err := ElementRef(arr, -1); err == nil {
		t.Fatal("expected an out-of-range error for a negative index")
	}
}

func TestElementBytesForValueArray(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	arr, _ := alloc.AllocateArray(arrClass, 4, 1)
	b, err := ElementBytes(arr, 4, 2)
	if err != nil {
		t.Fatalf("ElementBytes: %v", err)
	}
	if len(b) != 4 {
		t.Fatalf("len = %d, want 4", len(b))
	}
	b[0] = 7
	if arr.ValueData[8] != 7 {
		t.Fatal("ElementBytes must alias the array's backing storage")
	}
}

func TestFlatIndexMultiDim(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	arr, err := alloc.AllocateArray(arrClass, 6, 2)
	if err != nil {
		t.Fatalf("AllocateArray: %v", err)
	}
	arr.Bounds[0] = clrtype.ArrayBound{LowerBound: 0, Size: 2}
	arr.Bounds[1] = clrtype.ArrayBound{LowerBound: 0, Size: 3}
	b, err := ElementBytes(arr, 4, 1, 2)
	if err != nil {
		t.Fatalf("ElementBytes: %v", err)
	}
	b[0] = 1
	// row 1, col 2 -> flat index 1*3+2 = 5 -> byte offset 20
	if arr.ValueData[20] != 1 {
		t.Fatal("flatIndex row-major formula mismatch")
	}
}

func TestFlatIndexWrongDimensionCount(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	arr, _ := alloc.AllocateArray(arrClass, 6, 2)
	arr.Bounds[0] = clrtype.ArrayBound{Size: 2}
	arr.Bounds[1] = clrtype.ArrayBound{Size: 3}
	if _, err := ElementBytes(arr, 4, 1); err == nil {
		t.Fatal("expected an error indexing a rank-2 array with one index")
	}
}

func TestCloneArrayValue(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	orig, _ := alloc.AllocateArray(arrClass, 3, 1)
	orig.ValueData[4] = 99
	clone, err := CloneArray(alloc, orig)
	if err != nil {
		t.Fatalf("CloneArray: %v", err)
	}
	if clone.ValueData[4] != 99 {
		t.Fatal("CloneArray must copy ValueData")
	}
	clone.ValueData[4] = 1
	if orig.ValueData[4] != 99 {
		t.Fatal("CloneArray must not alias the source's backing array")
	}
}

func TestFastCopySameClass(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	src, _ := alloc.AllocateArray(arrClass, 4, 1)
	dst, _ := alloc.AllocateArray(arrClass, 4, 1)
	src.ValueData[4] = 5
	src.ValueData[8] = 6
	ok, err := FastCopy(alloc, src, dst, 1, 0, 2)
	if err != nil || !ok {
		t.Fatalf("FastCopy ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	if dst.ValueData[0] != 5 || dst.ValueData[4] != 6 {
		t.Fatalf("dst.ValueData = %v, want [5 _ _ _][6 ...] at slots 0,1", dst.ValueData)
	}
}

func TestFastCopyMismatchedValueClassesRefused(t *testing.T) {
	alloc := NewSimpleAllocator()
	src, _ := alloc.AllocateArray(szArrayClass(intClass()), 2, 1)
	longClass := &clrtype.RtClass{Module: leafModule(), Namespace: "System", Name: "Int64", Extra: clrtype.ExtraValueType, InstanceSize: 8}
	dst, _ := alloc.AllocateArray(szArrayClass(longClass), 2, 1)
	ok, err := FastCopy(alloc, src, dst, 0, 0, 1)
	if err != nil {
		t.Fatalf("FastCopy returned an error, want (false, nil): %v", err)
	}
	if ok {
		t.Fatal("FastCopy across mismatched value-element classes must report not-copied")
	}
}

func TestFastCopyOutOfRangeRejected(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	src, _ := alloc.AllocateArray(arrClass, 4, 1)
	dst, _ := alloc.AllocateArray(arrClass, 4, 1)

	if _, err := FastCopy(alloc, src, dst, 3, 0, 2); err == nil {
		t.Fatal("expected an IndexOutOfRange error when srcIdx+length overruns src")
	}
	if _, err := FastCopy(alloc, src, dst, 0, 3, 2); err == nil {
		t.Fatal("expected an IndexOutOfRange error when dstIdx+length overruns dst")
	}
	if _, err := FastCopy(alloc, src, dst, -1, 0, 1); err == nil {
		t.Fatal("expected an IndexOutOfRange error for a negative srcIdx")
	}
}

func TestFastCopyHeterogeneousRefArraysRejectsBadAssignment(t *testing.T) {
	alloc := NewSimpleAllocator()
	base := objRefClass()
	other := &clrtype.RtClass{Module: leafModule(), Namespace: "test", Name: "Unrelated"}
	other.SuperTypes = []*clrtype.RtClass{other}
	base.SuperTypes = []*clrtype.RtClass{base}

	src, _ := alloc.AllocateArray(szArrayClass(other), 1, 1)
	dst, _ := alloc.AllocateArray(szArrayClass(base), 1, 1)
	src.RefData[0] = &RtObject{Class: other}

	_, err := FastCopy(alloc, src, dst, 0, 0, 1)
	if err == nil {
		t.Fatal("expected an array-type-mismatch error for an unassignable element")
	}
}

func TestClearInternalValueArray(t *testing.T) {
	alloc := NewSimpleAllocator()
	arr, _ := alloc.AllocateArray(szArrayClass(intClass()), 4, 1)
	for i := range arr.ValueData {
		arr.ValueData[i] = 0xFF
	}
	ClearInternal(arr, 1, 2)
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	for i, b := range want {
		if arr.ValueData[i] != b {
			t.Fatalf("ValueData[%d] = %x, want %x", i, arr.ValueData[i], b)
		}
	}
}

func TestClearInternalRefArray(t *testing.T) {
	alloc := NewSimpleAllocator()
	arr, _ := alloc.AllocateArray(szArrayClass(objRefClass()), 3, 1)
	arr.RefData[0] = &RtObject{}
	arr.RefData[1] = &RtObject{}
	arr.RefData[2] = &RtObject{}
	ClearInternal(arr, 1, 1)
	if arr.RefData[0] == nil || arr.RefData[1] != nil || arr.RefData[2] == nil {
		t.Fatalf("RefData = %v, want only index 1 cleared", arr.RefData)
	}
}
