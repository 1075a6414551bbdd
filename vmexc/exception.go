// Package vmexc maps the runtime's internal error kinds onto managed
// exception classes and owns the current-exception slot and stack-trace
// capture (spec.md §4.9).
package vmexc

import (
	"sync"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
	"github.com/clrvm/clrvm/vmlog"
)

// classRef names a corlib exception class by namespace+name, resolved
// lazily through ClassResolver rather than held as a *clrtype.RtClass
// directly — corlib isn't loaded yet when this table is built.
type classRef struct{ Namespace, Name string }

// Taxonomy maps each runtime-raised Kind to its corlib exception class
// (spec.md §4.9's table), grounded on leanclr's
// get_exception_klass_of_runtime_error switch in rt_exception.cpp.
var Taxonomy = map[clrerrors.Kind]classRef{
	clrerrors.KindNotImplemented:      {"System", "NotImplementedException"},
	clrerrors.KindStackOverflow:       {"System", "StackOverflowException"},
	clrerrors.KindInvalidCast:         {"System", "InvalidCastException"},
	clrerrors.KindNullReference:       {"System", "NullReferenceException"},
	clrerrors.KindArrayTypeMismatch:   {"System", "ArrayTypeMismatchException"},
	clrerrors.KindIndexOutOfRange:     {"System", "IndexOutOfRangeException"},
	clrerrors.KindOutOfMemory:         {"System", "OutOfMemoryException"},
	clrerrors.KindArithmetic:          {"System", "ArithmeticException"},
	clrerrors.KindDivideByZero:        {"System", "DivideByZeroException"},
	clrerrors.KindOverflow:            {"System", "OverflowException"},
	clrerrors.KindArgument:            {"System", "ArgumentException"},
	clrerrors.KindArgumentNull:        {"System", "ArgumentNullException"},
	clrerrors.KindArgumentOutOfRange:  {"System", "ArgumentOutOfRangeException"},
	clrerrors.KindTypeLoad:            {"System", "TypeLoadException"},
	clrerrors.KindMissingField:        {"System", "MissingFieldException"},
	clrerrors.KindMissingMethod:       {"System", "MissingMethodException"},
	clrerrors.KindMissingMember:       {"System", "MissingMemberException"},
	clrerrors.KindBadImageFormat:      {"System", "BadImageFormatException"},
	clrerrors.KindEntryPointNotFound:  {"System", "EntryPointNotFoundException"},
	clrerrors.KindNotSupported:        {"System", "NotSupportedException"},
	clrerrors.KindTypeUnloaded:        {"System", "TypeUnloadedException"},
	clrerrors.KindExecutionEngine:     {"System", "ExecutionEngineException"},
}

var executionEngineRef = classRef{"System", "ExecutionEngineException"}

// ClassResolver resolves a corlib class by namespace+name; installed by
// the runtime facade once corlib is loaded. Taxonomy lookups and Raise
// fail until it's set.
var ClassResolver func(namespace, name string) (*clrtype.RtClass, error)

// ReportUnhandled is called with a still-pending exception when
// execution returns to the native embedder without it having been
// cleared: Exception::report_unhandled_exception. Left nil, nothing is
// reported — spec.md's "if none, nothing is printed".
var ReportUnhandled func(ex *object.RtObject)

var (
	mu          sync.Mutex
	currentSlot []*object.RtObject
	traces      = map[*object.RtObject][]TraceEntry{}
)

// Initialize allocates the one-element fixed GC-root reference array the
// current-exception slot lives in: Exception::initialize.
func Initialize(alloc object.Allocator) error {
	mu.Lock()
	defer mu.Unlock()
	slot, err := alloc.AllocateFixedReferenceArray(1)
	if err != nil {
		return err
	}
	currentSlot = slot
	return nil
}

// CurrentException returns the pending exception, or nil.
func CurrentException() *object.RtObject {
	mu.Lock()
	defer mu.Unlock()
	if currentSlot == nil {
		return nil
	}
	return currentSlot[0]
}

// SetCurrent installs ex as the pending exception: set_current_exception.
func SetCurrent(ex *object.RtObject) {
	mu.Lock()
	defer mu.Unlock()
	if currentSlot != nil {
		currentSlot[0] = ex
	}
}

// ClearCurrent reads and clears the pending exception in one step: the
// interpreter's unwind path calls this, get_and_clear_current_exception.
// It also forgets any captured trace for the cleared exception, since
// once control has consumed it from the slot this package has no other
// way to know it's no longer needed.
func ClearCurrent() *object.RtObject {
	mu.Lock()
	ex := (*object.RtObject)(nil)
	if currentSlot != nil {
		ex = currentSlot[0]
		currentSlot[0] = nil
	}
	mu.Unlock()
	if ex != nil {
		ForgetTrace(ex)
	}
	return ex
}

func resolveClass(ref classRef) (*clrtype.RtClass, error) {
	if ClassResolver == nil {
		return nil, clrerrors.New(clrerrors.PhaseRaise, clrerrors.KindExecutionEngine).
			Detail("no ClassResolver installed to resolve %s.%s", ref.Namespace, ref.Name).Build()
	}
	return ClassResolver(ref.Namespace, ref.Name)
}

// RaiseKind allocates an exception instance for kind and installs it as
// the current exception: raise_error_as_exception / raise_internal_runtime_error_as_exception.
// KindManagedException passes through to the current-exception slot
// unchanged, since that kind signals "an exception is already pending",
// never a fresh allocation. If kind's own class fails to resolve or
// allocate, an ExecutionEngineException is substituted, matching the
// original's fallback when the primary allocation fails.
func RaiseKind(kind clrerrors.Kind, alloc object.Allocator) (*object.RtObject, error) {
	if kind == clrerrors.KindManagedException {
		return CurrentException(), nil
	}
	ref, ok := Taxonomy[kind]
	if !ok {
		ref = executionEngineRef
	}
	ex, err := allocateException(ref, alloc)
	if err != nil {
		vmlog.Debugf("vmexc: failed allocating %s.%s (%v), falling back to ExecutionEngineException", ref.Namespace, ref.Name, err)
		ex, err = allocateException(executionEngineRef, alloc)
		if err != nil {
			return nil, err
		}
	}
	SetCurrent(ex)
	return ex, nil
}

func allocateException(ref classRef, alloc object.Allocator) (*object.RtObject, error) {
	class, err := resolveClass(ref)
	if err != nil {
		return nil, err
	}
	return alloc.AllocateObject(class)
}

// RaiseObject installs an already-constructed exception instance (a
// managed `throw`) as the current exception: raise_exception.
func RaiseObject(ex *object.RtObject) *object.RtObject {
	SetCurrent(ex)
	return ex
}

// SetTrace associates entries with ex, the side table standing in for
// leanclr's RtException.trace_ips managed field — this package doesn't
// own corlib's field layout, so it can't write through the object's own
// fields directly. Unlike the real field, a Go map keeps ex reachable
// for as long as its entry lives; ForgetTrace must be called once the
// trace is no longer needed (ClearCurrent does this for the common case
// of an exception that only ever lived in the current-exception slot).
func SetTrace(ex *object.RtObject, entries []TraceEntry) {
	mu.Lock()
	defer mu.Unlock()
	traces[ex] = entries
}

// Trace returns the stack-trace entries captured for ex, if any.
func Trace(ex *object.RtObject) []TraceEntry {
	mu.Lock()
	defer mu.Unlock()
	return traces[ex]
}

// ReportIfUnhandled clears the pending exception, if one is set, and
// reports it: the interpreter's top-level return path calls
// get_and_clear_current_exception then Exception::report_unhandled_exception
// with the result. With no ReportUnhandled installed, nothing is
// printed (spec.md §4.9).
func ReportIfUnhandled() {
	ex := ClearCurrent()
	if ex == nil {
		return
	}
	if ReportUnhandled != nil {
		ReportUnhandled(ex)
	}
}

// ForgetTrace releases ex's captured trace entries.
func ForgetTrace(ex *object.RtObject) {
	mu.Lock()
	defer mu.Unlock()
	delete(traces, ex)
}
