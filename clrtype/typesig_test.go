package clrtype

import "testing"

func TestPoolInternsByShape(t *testing.T) {
	pool := NewPool()
	mod := &Module{Name: "test"}

	a := pool.ByValue(mod, 0x02000001)
	b := pool.ByValue(mod, 0x02000001)
	if a != b {
		t.Fatal("ByValue for the same (module, token) should be pointer-equal")
	}

	c := pool.ByValue(mod, 0x02000002)
	if a == c {
		t.Fatal("ByValue for different tokens should not be pointer-equal")
	}
}

func TestPoolInternsSZArrayAndPtr(t *testing.T) {
	pool := NewPool()
	mod := &Module{Name: "test"}
	elem := pool.ByValue(mod, 0x02000005)

	arr1 := pool.SZArrayOf(elem)
	arr2 := pool.SZArrayOf(elem)
	if arr1 != arr2 {
		t.Fatal("SZArrayOf should intern on repeated calls with the same element")
	}

	ptr1 := pool.PtrTo(elem)
	ptr2 := pool.PtrTo(elem)
	if ptr1 != ptr2 {
		t.Fatal("PtrTo should intern on repeated calls with the same element")
	}
	if arr1 == ptr1 {
		t.Fatal("SZArray and Ptr of the same element must not collide in the pool")
	}
}

func TestPoolInternsGenericInstantiation(t *testing.T) {
	pool := NewPool()
	mod := &Module{Name: "test"}
	base := pool.ByValue(mod, 0x02000010)
	arg := pool.ByValue(mod, 0x02000011)

	g1 := pool.GenericInstOf(base, []*Typesig{arg})
	g2 := pool.GenericInstOf(base, []*Typesig{arg})
	if g1 != g2 {
		t.Fatal("GenericInstOf should intern identical (base, args) instantiations")
	}

	arg2 := pool.ByValue(mod, 0x02000012)
	g3 := pool.GenericInstOf(base, []*Typesig{arg2})
	if g1 == g3 {
		t.Fatal("GenericInstOf with different args must not collide")
	}
}

func TestEqualFold(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"System.Object", "system.object", true},
		{"System.Object", "System.String", false},
		{"abc", "abcd", false},
	}
	for _, tt := range tests {
		if got := equalFold(tt.a, tt.b); got != tt.want {
			t.Errorf("equalFold(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
