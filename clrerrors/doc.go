// Package clrerrors provides the structured error type used throughout the
// runtime.
//
// Errors are categorized by Phase (where in the runtime the error occurred)
// and Kind (the error category, corresponding to the runtime's managed
// exception taxonomy). The Error type carries enough context — a field/token
// path, a detail message, and a cause chain — to translate cleanly into a
// managed exception at the execution-engine boundary.
//
// Use the Builder for structured construction:
//
//	err := clrerrors.New(clrerrors.PhaseVtable, clrerrors.KindExecutionEngine).
//		Path("MyClass", "MyMethod").
//		Detail("no method_impl found for slot %d", slot).
//		Build()
//
// Or use a convenience constructor for a common pattern:
//
//	err := clrerrors.IndexOutOfRange(clrerrors.PhaseArray, []string{"arr"}, idx, length)
//
// All errors implement the standard error interface and support
// errors.Is/errors.As.
package clrerrors
