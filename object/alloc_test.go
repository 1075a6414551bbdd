package object

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/pe"
)

// leafModule is a Module backed by an empty-but-non-nil image, so the
// table scans Initialize walks through (field/method/property/event
// ranges) see zero rows instead of dereferencing a nil *pe.Image.
func leafModule() *clrtype.Module {
	return &clrtype.Module{Name: "test", Image: &pe.Image{}}
}

func intClass() *clrtype.RtClass {
	return &clrtype.RtClass{Module: leafModule(), Namespace: "System", Name: "Int32", Extra: clrtype.ExtraValueType, InstanceSize: 4}
}

func objRefClass() *clrtype.RtClass {
	return &clrtype.RtClass{Module: leafModule(), Namespace: "System", Name: "Object"}
}

func szArrayClass(elem *clrtype.RtClass) *clrtype.RtClass {
	return &clrtype.RtClass{Module: leafModule(), Namespace: "System", Name: "Int32[]", Family: clrtype.FamilyArrayOrSZArray, Extra: clrtype.ExtraArrayOrSZArray, ElementClass: elem}
}

func plainClass(size uint32) *clrtype.RtClass {
	return &clrtype.RtClass{Module: leafModule(), Namespace: "test", Name: "Widget", InstanceSize: size}
}

func TestAllocateObjectZeroesData(t *testing.T) {
	alloc := NewSimpleAllocator()
	obj, err := alloc.AllocateObject(plainClass(16))
	if err != nil {
		t.Fatalf("AllocateObject: %v", err)
	}
	if len(obj.Data) != 16 {
		t.Fatalf("Data length = %d, want 16", len(obj.Data))
	}
	if obj.Kind != KindPlain {
		t.Fatalf("Kind = %v, want KindPlain", obj.Kind)
	}
}

func TestAllocateArrayValueElements(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(intClass())
	arr, err := alloc.AllocateArray(arrClass, 5, 1)
	if err != nil {
		t.Fatalf("AllocateArray: %v", err)
	}
	if arr.Kind != KindArray {
		t.Fatalf("Kind = %v, want KindArray", arr.Kind)
	}
	if len(arr.ValueData) != 20 {
		t.Fatalf("ValueData length = %d, want 20", len(arr.ValueData))
	}
	if arr.RefData != nil {
		t.Fatal("RefData should be nil for a value-element array")
	}
}

func TestAllocateArrayReferenceElements(t *testing.T) {
	alloc := NewSimpleAllocator()
	arrClass := szArrayClass(objRefClass())
	arr, err := alloc.AllocateArray(arrClass, 3, 1)
	if err != nil {
		t.Fatalf("AllocateArray: %v", err)
	}
	if len(arr.RefData) != 3 {
		t.Fatalf("RefData length = %d, want 3", len(arr.RefData))
	}
	if arr.ValueData != nil {
		t.Fatal("ValueData should be nil for a reference-element array")
	}
}

func TestAllocateArrayNegativeLengthFails(t *testing.T) {
	alloc := NewSimpleAllocator()
	if _, err := alloc.AllocateArray(szArrayClass(intClass()), -1, 1); err == nil {
		t.Fatal("expected an error for negative array length")
	}
}

func TestAllocateArrayMultiDimGetsBounds(t *testing.T) {
	alloc := NewSimpleAllocator()
	arr, err := alloc.AllocateArray(szArrayClass(intClass()), 6, 2)
	if err != nil {
		t.Fatalf("AllocateArray: %v", err)
	}
	if len(arr.Bounds) != 2 {
		t.Fatalf("Bounds length = %d, want 2", len(arr.Bounds))
	}
}

func TestWriteBarrierNotifiesObservers(t *testing.T) {
	alloc := NewSimpleAllocator()
	var seen []uint32
	alloc.Subscribe(func(holder *RtObject, offset uint32, value *RtObject) {
		seen = append(seen, offset)
	})
	holder := &RtObject{}
	alloc.WriteBarrier(holder, 2, nil)
	alloc.WriteBarrier(holder, 5, nil)
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 5 {
		t.Fatalf("seen = %v, want [2 5]", seen)
	}
}
