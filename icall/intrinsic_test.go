package icall

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
)

func TestIntrinsicApplyRequiresAttribute(t *testing.T) {
	r := NewIntrinsicRegistry()
	m := consoleMethod("Beep")
	if err := r.Register(Entry{Signature: Signature(m), Invoke: func(uintptr, *clrtype.MethodInfo, []uint64, []uint64) error { return nil }}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if ok := r.Apply(m, false); ok {
		t.Fatal("Apply must refuse when hasIntrinsicAttribute is false, even with a matching entry")
	}
	if m.Invoker != clrtype.InvokerInterpretedIL {
		t.Fatalf("Invoker = %v, must be left untouched", m.Invoker)
	}
}

func TestIntrinsicApplyInstallsWhenAttributed(t *testing.T) {
	r := NewIntrinsicRegistry()
	m := consoleMethod("Beep")
	if err := r.Register(Entry{Signature: Signature(m), MethodPtr: 7, Invoke: func(uintptr, *clrtype.MethodInfo, []uint64, []uint64) error { return nil }}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if ok := r.Apply(m, true); !ok {
		t.Fatal("Apply must install a matching entry when attributed")
	}
	if m.Invoker != clrtype.InvokerIntrinsic {
		t.Fatalf("Invoker = %v, want InvokerIntrinsic", m.Invoker)
	}
	if m.MethodPtr != 7 {
		t.Fatalf("MethodPtr = %d, want 7", m.MethodPtr)
	}
}

func TestIntrinsicApplyNoEntryEvenWhenAttributed(t *testing.T) {
	r := NewIntrinsicRegistry()
	m := consoleMethod("NotIntrinsic")
	if ok := r.Apply(m, true); ok {
		t.Fatal("Apply must report false when no entry matches the signature")
	}
}
