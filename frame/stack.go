// Package frame owns the process-wide evaluation stack and frame stack
// IL execution runs on (spec.md §4.8), and the enter/leave bookkeeping
// that a call-path (native->interp, interp->interp, icall/intrinsic)
// requires. The per-opcode dispatch loop that actually advances a
// frame's IP is an external collaborator; this package only manages the
// two stacks beneath it.
package frame

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
)

// Default sizes mirror leanclr's vm::Settings defaults.
const (
	DefaultEvalStackSlots  = 1024 * 128
	DefaultFrameStackDepth = 1024 * 2
)

// InterpFrame is one activation record on the frame stack.
type InterpFrame struct {
	Method          *clrtype.MethodInfo
	EvalStackBase   uint32 // slot index into Stack.Eval
	EvalStackSize   uint32
	OldEvalStackTop uint32
	IP              uint32 // byte offset into Method.InterpData.Codes
}

// Stack is a machine's pair of process-wide stacks. A single-threaded
// embedder installs one Stack as the active machine state; an embedder
// running multiple interpreters must give each its own Stack (spec.md's
// single-threaded-and-cooperative model: no locking inside this
// package).
type Stack struct {
	Eval     []uint64
	EvalTop  uint32
	evalFree func()

	Frames   []InterpFrame
	FrameTop uint32
}

// NewStack allocates a Stack with the given eval-slot and frame-depth
// capacities. The eval stack is backed by platform-specific guard-paged
// memory where available (allocEvalStack); the frame stack is a plain
// Go slice, never raw-mapped memory, because InterpFrame.Method is a
// pointer the garbage collector must be able to trace — unlike the flat
// uint64 eval slots, it cannot safely live outside Go-managed memory.
func NewStack(evalSlots, frameDepth uint32) (*Stack, error) {
	if evalSlots == 0 {
		evalSlots = DefaultEvalStackSlots
	}
	if frameDepth == 0 {
		frameDepth = DefaultFrameStackDepth
	}
	eval, release, err := allocEvalStack(evalSlots)
	if err != nil {
		return nil, clrerrors.New(clrerrors.PhaseFrame, clrerrors.KindExecutionEngine).
			Detail("allocating eval stack: %v", err).Build()
	}
	return &Stack{
		Eval:     eval,
		evalFree: release,
		Frames:   make([]InterpFrame, frameDepth),
	}, nil
}

// Close releases the eval stack's backing memory. Frame stacks backed
// by plain Go slices need no explicit release.
func (s *Stack) Close() {
	if s.evalFree != nil {
		s.evalFree()
		s.evalFree = nil
	}
}

// allocEvalSlots advances EvalTop by size slots, failing StackOverflow
// if that would run past the stack's capacity.
func (s *Stack) allocEvalSlots(size uint32) (uint32, error) {
	if uint64(s.EvalTop)+uint64(size) > uint64(len(s.Eval)) {
		return 0, clrerrors.StackOverflow(clrerrors.PhaseFrame)
	}
	base := s.EvalTop
	s.EvalTop += size
	return base, nil
}

// allocFrame reserves the next frame record, failing StackOverflow if
// the frame stack is full.
func (s *Stack) allocFrame() (*InterpFrame, error) {
	if uint64(s.FrameTop)+1 > uint64(len(s.Frames)) {
		return nil, clrerrors.StackOverflow(clrerrors.PhaseFrame)
	}
	f := &s.Frames[s.FrameTop]
	s.FrameTop++
	return f, nil
}

// FreeFrame pops the current top frame unconditionally, asserting its
// recorded OldEvalStackTop matches oldEvalStackTop, and restores EvalTop
// to it: free_frame_stack. It pairs with EnterFromNative/EnterFromInterp
// the way Leave's refusal pairs with a SavePoint: once Leave signals a
// nested invocation has unwound back to its own boundary frame (ok ==
// false), the orchestrator that started that invocation calls FreeFrame
// to actually tear the boundary frame down, passing the eval-stack top
// it observed before entering it.
func (s *Stack) FreeFrame(oldEvalStackTop uint32) error {
	if s.FrameTop == 0 {
		return clrerrors.New(clrerrors.PhaseFrame, clrerrors.KindExecutionEngine).
			Detail("free_frame_stack on an empty frame stack").Build()
	}
	s.FrameTop--
	if s.Frames[s.FrameTop].OldEvalStackTop != oldEvalStackTop {
		return clrerrors.New(clrerrors.PhaseFrame, clrerrors.KindExecutionEngine).
			Detail("free_frame_stack eval-stack-top mismatch").Build()
	}
	s.EvalTop = oldEvalStackTop
	return nil
}
