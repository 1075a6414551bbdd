package vmexc

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/frame"
)

func installInterpInitializer(t *testing.T, maxStack uint32) {
	t.Helper()
	old := clrtype.InterpInitializer
	clrtype.InterpInitializer = func(m *clrtype.MethodInfo) (*clrtype.InterpMethodInfo, error) {
		return &clrtype.InterpMethodInfo{MaxStackObjectSize: maxStack}, nil
	}
	t.Cleanup(func() { clrtype.InterpInitializer = old })
}

func methodNamed(name string) *clrtype.MethodInfo {
	return &clrtype.MethodInfo{
		Owner:      &clrtype.RtClass{Module: leafModule(), Namespace: "test", Name: "Widget"},
		Name:       name,
		VtableSlot: -1,
	}
}

func TestCaptureWalksTopDownWithinBoundary(t *testing.T) {
	installInterpInitializer(t, 4)
	s, err := frame.NewStack(64, 8)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	sp := s.Capture()
	if _, err := s.EnterFromNative(methodNamed("Outer"), nil); err != nil {
		t.Fatalf("EnterFromNative outer: %v", err)
	}
	if _, err := s.EnterFromNative(methodNamed("Inner"), nil); err != nil {
		t.Fatalf("EnterFromNative inner: %v", err)
	}

	entries := Capture(s, sp)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Method.Name != "Inner" {
		t.Fatalf("entries[0].Method.Name = %q, want Inner (top-down, innermost first)", entries[0].Method.Name)
	}
	if entries[1].Method.Name != "Outer" {
		t.Fatalf("entries[1].Method.Name = %q, want Outer", entries[1].Method.Name)
	}
}

func TestCaptureExcludesFramesBelowBoundary(t *testing.T) {
	installInterpInitializer(t, 4)
	s, err := frame.NewStack(64, 8)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	if _, err := s.EnterFromNative(methodNamed("BelowBoundary"), nil); err != nil {
		t.Fatalf("EnterFromNative: %v", err)
	}
	sp := s.Capture()
	if _, err := s.EnterFromNative(methodNamed("Protected"), nil); err != nil {
		t.Fatalf("EnterFromNative: %v", err)
	}

	entries := Capture(s, sp)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Method.Name != "Protected" {
		t.Fatalf("entries[0].Method.Name = %q, want Protected", entries[0].Method.Name)
	}
}

func TestCaptureEmptyAtBoundary(t *testing.T) {
	s, err := frame.NewStack(64, 8)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	sp := s.Capture()
	if entries := Capture(s, sp); entries != nil {
		t.Fatalf("entries = %v, want nil when frame stack is at the boundary", entries)
	}
}

func TestFrameInfoAtReturnsEntryAndBounds(t *testing.T) {
	entries := []TraceEntry{{IPOffset: 10}, {IPOffset: 20}}

	info, ok := FrameInfoAt(entries, 0)
	if !ok || info.ILOffset != 10 {
		t.Fatalf("FrameInfoAt(0) = %+v, ok=%v", info, ok)
	}
	if _, ok := FrameInfoAt(entries, 2); ok {
		t.Fatal("FrameInfoAt must report not-ok past the end of entries")
	}
	if _, ok := FrameInfoAt(entries, -1); ok {
		t.Fatal("FrameInfoAt must report not-ok for a negative skip")
	}
}
