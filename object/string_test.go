package object

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
)

func stringClass() *clrtype.RtClass {
	return &clrtype.RtClass{Namespace: "System", Name: "String"}
}

func TestFastAllocateStringZeroLength(t *testing.T) {
	obj, err := FastAllocateString(stringClass(), 0)
	if err != nil {
		t.Fatalf("FastAllocateString: %v", err)
	}
	if obj.Kind != KindString || len(obj.Chars) != 0 {
		t.Fatalf("got Kind=%v Chars=%v, want KindString with 0 chars", obj.Kind, obj.Chars)
	}
}

func TestFastAllocateStringNegativeLength(t *testing.T) {
	if _, err := FastAllocateString(stringClass(), -1); err == nil {
		t.Fatal("expected an error for a negative string length")
	}
}

func TestNewStringGoStringRoundTripsASCII(t *testing.T) {
	obj, err := NewString(stringClass(), "hello")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	if got := GoString(obj); got != "hello" {
		t.Fatalf("GoString = %q, want %q", got, "hello")
	}
}

func TestNewStringGoStringRoundTripsSurrogatePair(t *testing.T) {
	const s = "a\U0001F600b" // astral character requiring a UTF-16 surrogate pair
	obj, err := NewString(stringClass(), s)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	if len(obj.Chars) != 4 {
		t.Fatalf("Chars length = %d, want 4 (a, hi-surrogate, lo-surrogate, b)", len(obj.Chars))
	}
	if got := GoString(obj); got != s {
		t.Fatalf("GoString = %q, want %q", got, s)
	}
}

func TestNewStringFromUTF8InvalidUTF8(t *testing.T) {
	if _, err := NewStringFromUTF8(stringClass(), string([]byte{0xFF, 0xFE})); err == nil {
		t.Fatal("expected an error for a malformed UTF-8 literal")
	}
}

func TestInternTableEmptySingleton(t *testing.T) {
	table, err := NewInternTable(stringClass())
	if err != nil {
		t.Fatalf("NewInternTable: %v", err)
	}
	empty := table.Empty()
	if len(empty.Chars) != 0 {
		t.Fatal("String.Empty must have zero chars")
	}
	other, _ := NewString(stringClass(), "")
	if table.Intern(other) != empty {
		t.Fatal("interning an empty string must return the String.Empty singleton")
	}
}

func TestInternTableReturnsCanonicalInstance(t *testing.T) {
	table, err := NewInternTable(stringClass())
	if err != nil {
		t.Fatalf("NewInternTable: %v", err)
	}
	a, _ := NewString(stringClass(), "widget")
	b, _ := NewString(stringClass(), "widget")
	if a == b {
		t.Fatal("test setup: a and b must start as distinct instances")
	}
	canonA := table.Intern(a)
	canonB := table.Intern(b)
	if canonA != canonB {
		t.Fatal("interning two distinct instances with the same content must yield the same canonical instance")
	}
	if canonA != a {
		t.Fatal("the first interned instance should become canonical")
	}
}

func TestInternTableIsInterned(t *testing.T) {
	table, err := NewInternTable(stringClass())
	if err != nil {
		t.Fatalf("NewInternTable: %v", err)
	}
	s, _ := NewString(stringClass(), "tracked")
	if table.IsInterned(s) != nil {
		t.Fatal("a never-interned string must report not-interned")
	}
	table.Intern(s)
	if table.IsInterned(s) != s {
		t.Fatal("after Intern, IsInterned must return the canonical instance")
	}
}
