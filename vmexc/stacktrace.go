package vmexc

import (
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/frame"
)

// TraceEntry is one (method, IL offset) pair from a captured stack
// trace: leanclr's trace_ips array element.
type TraceEntry struct {
	Method   *clrtype.MethodInfo
	IPOffset uint32
}

// Capture walks stack's frame stack top-down, from its current depth
// down to (but excluding) sp's boundary — the topmost try/catch
// boundary the active unwind will honor — building the trace_ips array
// spec.md §4.9 describes. Frames pushed only for icall/intrinsic
// stack-trace bookkeeping (no IP of their own yet) still contribute an
// entry at offset 0.
func Capture(stack *frame.Stack, sp frame.SavePoint) []TraceEntry {
	boundary := sp.Boundary()
	if stack.FrameTop <= boundary {
		return nil
	}
	entries := make([]TraceEntry, 0, stack.FrameTop-boundary)
	for idx := stack.FrameTop; idx > boundary; idx-- {
		f := stack.Frame(idx - 1)
		if f.Method == nil {
			continue
		}
		entries = append(entries, TraceEntry{Method: f.Method, IPOffset: f.IP})
	}
	return entries
}

// StackFrameInfo is the reflection-facing view of one captured trace
// entry, shaped after SystemDiagnosticsStackFrame::get_frame_info. No
// internal-call entry in icall's corlib table reads it.
// File/line information is always the stub zero value, spec.md §4.9's
// "file/line (stub: zero) on demand" — this runtime never carries PDB
// or embedded sequence-point data.
type StackFrameInfo struct {
	Method       *clrtype.MethodInfo
	ILOffset     int32
	NativeOffset int32
	FileName     string
	LineNumber   int32
	ColumnNumber int32
}

// FrameInfoAt returns the skip-th frame (0 = innermost) of a captured
// trace, for System.Diagnostics.StackFrame::get_frame_info.
func FrameInfoAt(entries []TraceEntry, skip int) (StackFrameInfo, bool) {
	if skip < 0 || skip >= len(entries) {
		return StackFrameInfo{}, false
	}
	e := entries[skip]
	return StackFrameInfo{
		Method:       e.Method,
		ILOffset:     int32(e.IPOffset),
		NativeOffset: -1,
	}, true
}
