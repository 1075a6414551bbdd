package frame

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/vmlog"
)

// interpData returns method's InterpMethodInfo, lazily materializing it
// through clrtype.InterpInitializer on first use — enter_frame_from_native's
// "if (!imi) init_interpreter_method(method)" cache-miss path.
func interpData(method *clrtype.MethodInfo) (*clrtype.InterpMethodInfo, error) {
	if method.InterpData != nil {
		return method.InterpData, nil
	}
	if clrtype.InterpInitializer == nil {
		return nil, clrerrors.New(clrerrors.PhaseFrame, clrerrors.KindExecutionEngine).
			Detail("no InterpInitializer installed for %s", method.Name).Build()
	}
	imi, err := clrtype.InterpInitializer(method)
	if err != nil {
		return nil, err
	}
	method.InterpData = imi
	return imi, nil
}

// EnterFromNative enters a frame for a method called directly by the
// host, with arguments in a flat native-side buffer: enter_frame_from_native.
// It allocates a frame and max_stack eval slots, copies the method's
// argument slots into the new frame's eval base, and returns the new
// frame's index.
func (s *Stack) EnterFromNative(method *clrtype.MethodInfo, args []uint64) (uint32, error) {
	imi, err := interpData(method)
	if err != nil {
		return 0, err
	}
	frame, err := s.allocFrame()
	if err != nil {
		return 0, err
	}
	idx := s.FrameTop - 1
	frame.Method = method
	frame.OldEvalStackTop = s.EvalTop

	base, err := s.allocEvalSlots(imi.MaxStackObjectSize)
	if err != nil {
		return 0, err
	}
	frame.EvalStackBase = base
	frame.EvalStackSize = imi.MaxStackObjectSize

	if n := method.ArgStackObjectSize / 8; n > 0 {
		copy(s.Eval[base:base+n], args)
	}
	frame.IP = 0
	vmlog.Debugf("frame: enter_from_native %s.%s::%s", method.Owner.Namespace, method.Owner.Name, method.Name)
	return idx, nil
}

// EnterFromInterp enters a frame for a call made from IL: the caller
// has already pushed the arguments contiguously at frameBase on this
// same eval stack. Only the eval-stack top is advanced, by max_stack
// slots past frameBase.
func (s *Stack) EnterFromInterp(method *clrtype.MethodInfo, frameBase uint32) (uint32, error) {
	imi, err := interpData(method)
	if err != nil {
		return 0, err
	}
	frame, err := s.allocFrame()
	if err != nil {
		return 0, err
	}
	idx := s.FrameTop - 1
	frame.Method = method
	frame.OldEvalStackTop = s.EvalTop

	newTop := uint64(frameBase) + uint64(imi.MaxStackObjectSize)
	if newTop > uint64(len(s.Eval)) {
		return 0, clrerrors.StackOverflow(clrerrors.PhaseFrame)
	}
	s.EvalTop = uint32(newTop)
	frame.EvalStackBase = frameBase
	frame.EvalStackSize = imi.MaxStackObjectSize
	frame.IP = 0
	vmlog.Debugf("frame: enter_from_interp %s.%s::%s", method.Owner.Namespace, method.Owner.Name, method.Name)
	return idx, nil
}

// EnterFromICallOrIntrinsic pushes a frame for stack-trace purposes only
// — the eval stack is untouched and the icall runs native. If the frame
// stack is already full the entry is silently skipped (stack-trace
// capture is best-effort, never a reason to fail an icall); the
// returned old top is still valid to pass to LeaveFromICallOrIntrinsic.
func (s *Stack) EnterFromICallOrIntrinsic(method *clrtype.MethodInfo) uint32 {
	old := s.FrameTop
	if s.FrameTop < uint32(len(s.Frames)) {
		s.Frames[s.FrameTop] = InterpFrame{Method: method}
		s.FrameTop++
	}
	return old
}

// LeaveFromICallOrIntrinsic restores the frame stack to the top
// EnterFromICallOrIntrinsic returned.
func (s *Stack) LeaveFromICallOrIntrinsic(oldFrameTop uint32) {
	s.FrameTop = oldFrameTop
}

// Frame returns the frame at idx.
func (s *Stack) Frame(idx uint32) *InterpFrame {
	return &s.Frames[idx]
}

// SavePoint records a frame-stack boundary a nested execution must not
// unwind past: MachineStateSavePoint.
type SavePoint struct {
	oldFrameStackTop uint32
}

// Capture takes a SavePoint at the stack's current frame depth.
func (s *Stack) Capture() SavePoint {
	return SavePoint{oldFrameStackTop: s.FrameTop}
}

// Boundary returns the frame depth sp was captured at, the index below
// which a stack-trace walk or an unwind honoring sp must not descend.
func (sp SavePoint) Boundary() uint32 {
	return sp.oldFrameStackTop
}

// tombstone is the poison value DebugPoison writes into a left frame's
// numeric fields, leanclr's 0xDD byte fill. The Method pointer is set
// to nil rather than poisoned: a Go pointer field must always hold a
// valid reference or nil, since the garbage collector traces it by
// type regardless of debug mode.
const tombstone = 0xDDDDDDDD

// DebugPoison enables leave-frame tombstone fill, for catching
// use-after-leave bugs in a dispatch loop under development.
var DebugPoison = false

// Leave pops the frame at idx, which is taken to be the current top (idx
// is not checked against FrameTop), and restores the eval stack to the frame's recorded OldEvalStackTop. If
// idx is at or before sp's boundary, the unwind refuses to proceed:
// ok is false and the caller (an interpreter dispatch loop composing
// nested executions) must stop rather than continue interpreting a
// now-nonexistent outer frame.
func (s *Stack) Leave(sp SavePoint, idx uint32) (prevIdx uint32, ok bool) {
	if idx <= sp.oldFrameStackTop {
		return 0, false
	}
	frame := &s.Frames[idx]
	s.FrameTop = idx
	s.EvalTop = frame.OldEvalStackTop
	if DebugPoison {
		frame.Method = nil
		frame.EvalStackBase = tombstone
		frame.EvalStackSize = tombstone
		frame.OldEvalStackTop = tombstone
		frame.IP = tombstone
	} else {
		*frame = InterpFrame{}
	}
	return idx - 1, true
}
