package clrerrors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the runtime's pipeline the error occurred.
type Phase string

const (
	PhaseLoad        Phase = "load"        // PE/metadata parsing
	PhaseMaterialize Phase = "materialize" // class/field/method construction
	PhaseLayout      Phase = "layout"      // field layout
	PhaseVtable      Phase = "vtable"      // virtual table construction
	PhaseBox         Phase = "box"         // boxing/unboxing
	PhaseArray       Phase = "array"       // array allocation/indexing
	PhaseString      Phase = "string"      // string allocation/interning
	PhaseDelegate    Phase = "delegate"    // delegate bind/invoke
	PhaseFrame       Phase = "frame"       // frame/eval stack management
	PhaseRaise       Phase = "raise"       // exception raising
	PhaseICall       Phase = "icall"       // internal-call dispatch
	PhaseAttribute   Phase = "attribute"   // custom attribute decoding
	PhaseExecute     Phase = "execute"     // general execution-engine boundary
)

// Kind categorizes the error. The set matches the runtime's managed
// exception taxonomy (spec §4.9) plus the internal RtErr variants (spec §7).
type Kind string

const (
	KindBadImageFormat     Kind = "bad_image_format"
	KindModuleAlreadyLoaded Kind = "module_already_loaded"
	KindFileNotFound       Kind = "file_not_found"
	KindTypeLoad           Kind = "type_load"
	KindTypeUnloaded       Kind = "type_unloaded"
	KindMissingField       Kind = "missing_field"
	KindMissingMethod      Kind = "missing_method"
	KindMissingMember      Kind = "missing_member"
	KindInvalidCast        Kind = "invalid_cast"
	KindNullReference      Kind = "null_reference"
	KindArrayTypeMismatch  Kind = "array_type_mismatch"
	KindIndexOutOfRange    Kind = "index_out_of_range"
	KindOutOfMemory        Kind = "out_of_memory"
	KindArithmetic         Kind = "arithmetic"
	KindDivideByZero       Kind = "divide_by_zero"
	KindOverflow           Kind = "overflow"
	KindArgument           Kind = "argument"
	KindArgumentNull       Kind = "argument_null"
	KindArgumentOutOfRange Kind = "argument_out_of_range"
	KindNotImplemented     Kind = "not_implemented"
	KindNotSupported       Kind = "not_supported"
	KindEntryPointNotFound Kind = "entry_point_not_found"
	KindExecutionEngine    Kind = "execution_engine"
	KindManagedException   Kind = "managed_exception"
	KindStackOverflow      Kind = "stack_overflow"
)

// Error is the structured error type used throughout the runtime.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by Phase and Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Path sets the field/token path.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns.

// BadImageFormat creates a malformed-metadata error.
func BadImageFormat(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindBadImageFormat).Detail(detail, args...).Build()
}

// TypeLoad creates a type-load-failure error.
func TypeLoad(path []string, detail string) *Error {
	return New(PhaseMaterialize, KindTypeLoad).Path(path...).Detail("%s", detail).Build()
}

// IndexOutOfRange creates an array-bounds error.
func IndexOutOfRange(phase Phase, path []string, index, length int) *Error {
	return New(phase, KindIndexOutOfRange).
		Path(path...).
		Detail("index %d out of range for length %d", index, length).
		Build()
}

// StackOverflow creates a frame/eval stack overflow error.
func StackOverflow(phase Phase) *Error {
	return New(phase, KindStackOverflow).Build()
}

// NotImplemented creates a not-implemented error.
func NotImplemented(phase Phase, detail string) *Error {
	return New(phase, KindNotImplemented).Detail("%s", detail).Build()
}

// ManagedException wraps an already-raised managed exception. The caller
// should look at the current-exception slot for the actual object.
func ManagedException(cause error) *Error {
	return New(PhaseRaise, KindManagedException).Cause(cause).Build()
}
