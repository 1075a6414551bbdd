package attribute

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
)

func TestScalarSlotSimpleAndEnum(t *testing.T) {
	v, err := scalarSlot(nil, Value{Kind: KindSimple, Scalar: 42})
	if err != nil || v != 42 {
		t.Fatalf("scalarSlot(simple) = %d, %v", v, err)
	}
	v, err = scalarSlot(nil, Value{Kind: KindEnum, Scalar: 7})
	if err != nil || v != 7 {
		t.Fatalf("scalarSlot(enum) = %d, %v", v, err)
	}
}

func TestScalarSlotRejectsArray(t *testing.T) {
	if _, err := scalarSlot(nil, Value{Kind: KindArray}); err == nil {
		t.Fatal("scalarSlot must reject an array-valued constructor argument")
	}
}

func TestFieldWriteWidthPrimitives(t *testing.T) {
	cases := []struct {
		elem clrtype.ElementType
		want uint32
	}{
		{clrtype.ElemBoolean, 1},
		{clrtype.ElemI1, 1},
		{clrtype.ElemI2, 2},
		{clrtype.ElemI4, 4},
		{clrtype.ElemI8, 8},
	}
	for _, c := range cases {
		got, err := fieldWriteWidth(&clrtype.Typesig{Elem: c.elem})
		if err != nil {
			t.Fatalf("fieldWriteWidth(%v): %v", c.elem, err)
		}
		if got != c.want {
			t.Fatalf("fieldWriteWidth(%v) = %d, want %d", c.elem, got, c.want)
		}
	}
}

func TestFieldWriteWidthRejectsUnsupported(t *testing.T) {
	if _, err := fieldWriteWidth(&clrtype.Typesig{Elem: clrtype.ElemFnPtr}); err == nil {
		t.Fatal("fieldWriteWidth must reject an unsupported element type")
	}
}

func TestFindFieldSearchesAncestors(t *testing.T) {
	base := &clrtype.RtClass{Name: "Base", Fields: []*clrtype.FieldInfo{{Name: "message"}}}
	derived := &clrtype.RtClass{Name: "Derived", Parent: base}

	f := findField(derived, "message")
	if f == nil {
		t.Fatal("findField must find an inherited field")
	}
	if findField(derived, "missing") != nil {
		t.Fatal("findField must report nil for a name that matches nothing")
	}
}

func TestFindFieldSkipsStaticFields(t *testing.T) {
	class := &clrtype.RtClass{Fields: []*clrtype.FieldInfo{{Name: "Count", IsStatic: true}}}
	if findField(class, "Count") != nil {
		t.Fatal("findField must not return a static field")
	}
}

func TestPutScalarWidths(t *testing.T) {
	buf := make([]byte, 8)
	putScalar(buf[:1], 1, 0xAB)
	if buf[0] != 0xAB {
		t.Fatalf("width 1 = %#x", buf[0])
	}
	putScalar(buf[:8], 8, 0x0102030405060708)
	if buf[7] != 0x01 || buf[0] != 0x08 {
		t.Fatalf("width 8 little-endian = %v", buf)
	}
}
