package frame

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/pe"
)

func leafModule() *clrtype.Module {
	return &clrtype.Module{Name: "test", Image: &pe.Image{}}
}

func testMethod(name string, argSlots uint32) *clrtype.MethodInfo {
	return &clrtype.MethodInfo{
		Owner:              &clrtype.RtClass{Module: leafModule(), Namespace: "test", Name: "Widget"},
		Name:               name,
		ArgStackObjectSize: argSlots * 8,
		VtableSlot:         -1,
	}
}

func installInterpInitializer(t *testing.T, maxStack uint32) {
	t.Helper()
	old := clrtype.InterpInitializer
	clrtype.InterpInitializer = func(m *clrtype.MethodInfo) (*clrtype.InterpMethodInfo, error) {
		return &clrtype.InterpMethodInfo{MaxStackObjectSize: maxStack}, nil
	}
	t.Cleanup(func() { clrtype.InterpInitializer = old })
}

func TestEnterFromNativeCopiesArgsAndAllocatesEvalSlots(t *testing.T) {
	installInterpInitializer(t, 4)
	s, _ := NewStack(64, 8)
	defer s.Close()

	method := testMethod("DoWork", 2)
	idx, err := s.EnterFromNative(method, []uint64{11, 22})
	if err != nil {
		t.Fatalf("EnterFromNative: %v", err)
	}
	frame := s.Frame(idx)
	if frame.Method != method {
		t.Fatal("frame.Method must be the entered method")
	}
	if frame.EvalStackSize != 4 {
		t.Fatalf("EvalStackSize = %d, want 4", frame.EvalStackSize)
	}
	if s.Eval[frame.EvalStackBase] != 11 || s.Eval[frame.EvalStackBase+1] != 22 {
		t.Fatal("EnterFromNative must copy the method's argument slots into the new frame base")
	}
	if s.EvalTop != frame.EvalStackBase+4 {
		t.Fatalf("EvalTop = %d, want %d", s.EvalTop, frame.EvalStackBase+4)
	}
}

func TestEnterFromNativeMissingInterpInitializerFails(t *testing.T) {
	old := clrtype.InterpInitializer
	clrtype.InterpInitializer = nil
	defer func() { clrtype.InterpInitializer = old }()

	s, _ := NewStack(64, 8)
	defer s.Close()
	if _, err := s.EnterFromNative(testMethod("DoWork", 0), nil); err == nil {
		t.Fatal("expected an error with no InterpInitializer installed")
	}
}

func TestEnterFromInterpAdvancesEvalTopFromFrameBase(t *testing.T) {
	installInterpInitializer(t, 4)
	s, _ := NewStack(64, 8)
	defer s.Close()
	s.EvalTop = 10

	idx, err := s.EnterFromInterp(testMethod("Callee", 1), 10)
	if err != nil {
		t.Fatalf("EnterFromInterp: %v", err)
	}
	frame := s.Frame(idx)
	if frame.EvalStackBase != 10 {
		t.Fatalf("EvalStackBase = %d, want 10", frame.EvalStackBase)
	}
	if s.EvalTop != 14 {
		t.Fatalf("EvalTop = %d, want 14", s.EvalTop)
	}
	if frame.OldEvalStackTop != 10 {
		t.Fatalf("OldEvalStackTop = %d, want 10", frame.OldEvalStackTop)
	}
}

func TestEnterFromInterpOverflowFails(t *testing.T) {
	installInterpInitializer(t, 100)
	s, _ := NewStack(64, 8)
	defer s.Close()

	if _, err := s.EnterFromInterp(testMethod("Callee", 0), 0); err == nil {
		t.Fatal("expected StackOverflow when frameBase+max_stack exceeds eval stack size")
	}
}

func TestLeaveNormalUnwind(t *testing.T) {
	installInterpInitializer(t, 4)
	s, _ := NewStack(64, 8)
	defer s.Close()

	// sp brackets the whole nested invocation, captured before its
	// boundary (outermost) frame is pushed — matching how an orchestrator
	// starting a nested execution uses a single save point across every
	// return in that invocation's call tree.
	sp := s.Capture()
	outerIdx, _ := s.EnterFromNative(testMethod("Outer", 0), nil)
	innerIdx, err := s.EnterFromNative(testMethod("Inner", 0), nil)
	if err != nil {
		t.Fatalf("EnterFromNative inner: %v", err)
	}
	beforeLeaveEvalTop := s.EvalTop

	prev, ok := s.Leave(sp, innerIdx)
	if !ok {
		t.Fatal("Leave must succeed for a non-boundary frame returning to its caller")
	}
	if prev != outerIdx {
		t.Fatalf("prev = %d, want %d", prev, outerIdx)
	}
	if s.FrameTop != innerIdx {
		t.Fatalf("FrameTop = %d, want %d", s.FrameTop, innerIdx)
	}
	if s.EvalTop == beforeLeaveEvalTop {
		t.Fatal("Leave must restore EvalTop to the frame's OldEvalStackTop")
	}
}

func TestLeaveRefusesToUnwindPastSavePoint(t *testing.T) {
	installInterpInitializer(t, 4)
	s, _ := NewStack(64, 8)
	defer s.Close()

	sp := s.Capture() // captured BEFORE idx's frame is entered: idx is the boundary
	idx, _ := s.EnterFromNative(testMethod("Boundary", 0), nil)

	if _, ok := s.Leave(sp, idx); ok {
		t.Fatal("Leave must refuse to unwind the save point's own boundary frame")
	}
}

func TestLeaveDebugPoisonFillsTombstone(t *testing.T) {
	installInterpInitializer(t, 4)
	s, _ := NewStack(64, 8)
	defer s.Close()

	outerIdx, _ := s.EnterFromNative(testMethod("Outer", 0), nil)
	sp := SavePoint{oldFrameStackTop: outerIdx}
	innerIdx, _ := s.EnterFromNative(testMethod("Inner", 0), nil)

	DebugPoison = true
	defer func() { DebugPoison = false }()
	if _, ok := s.Leave(sp, innerIdx); !ok {
		t.Fatal("Leave should succeed here")
	}
	frame := s.Frame(innerIdx)
	if frame.Method != nil {
		t.Fatal("DebugPoison must nil out the left frame's Method pointer")
	}
	if frame.IP != tombstone {
		t.Fatalf("IP = %#x, want tombstone %#x", frame.IP, uint32(tombstone))
	}
}

func TestEnterAndLeaveICallOrIntrinsic(t *testing.T) {
	s, _ := NewStack(64, 2)
	defer s.Close()

	method := testMethod("Write", 0)
	old := s.EnterFromICallOrIntrinsic(method)
	if s.FrameTop != old+1 {
		t.Fatalf("FrameTop = %d, want %d", s.FrameTop, old+1)
	}
	if s.Frame(old).Method != method {
		t.Fatal("icall frame must record the called method")
	}
	s.LeaveFromICallOrIntrinsic(old)
	if s.FrameTop != old {
		t.Fatalf("FrameTop = %d, want %d after leaving", s.FrameTop, old)
	}
}

func TestEnterFromICallOrIntrinsicSkipsWhenFrameStackFull(t *testing.T) {
	s, _ := NewStack(64, 1)
	defer s.Close()

	s.Frames[0] = InterpFrame{}
	s.FrameTop = 1

	old := s.EnterFromICallOrIntrinsic(testMethod("Write", 0))
	if old != 1 {
		t.Fatalf("old = %d, want 1", old)
	}
	if s.FrameTop != 1 {
		t.Fatal("EnterFromICallOrIntrinsic must not grow a full frame stack")
	}
}
