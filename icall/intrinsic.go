package icall

import "github.com/clrvm/clrvm/clrtype"

// IntrinsicRegistry is the parallel table spec.md §4.10 describes for
// intrinsics: entries here only ever replace a method's invoker when the
// candidate method also carries the Intrinsic custom attribute in
// metadata (System.Threading.Volatile.Read/Write, Interlocked ops,
// Object..ctor's no-op body, and similar) — an ordinary internal-call
// lookup never falls through to it. It reuses Registry's storage and
// concurrency discipline under a distinct type so the two tables can
// never be confused at a call site.
type IntrinsicRegistry struct {
	*Registry
}

// NewIntrinsicRegistry returns an empty IntrinsicRegistry.
func NewIntrinsicRegistry() *IntrinsicRegistry {
	return &IntrinsicRegistry{Registry: NewRegistry()}
}

// Apply installs an intrinsic replacement on m when hasIntrinsicAttribute
// is true and m's signature has a matching entry. The attribute check
// itself lives with the caller (the attribute package decodes whether
// Intrinsic is present) — this package only knows how to apply the
// substitution once asked to.
func (r *IntrinsicRegistry) Apply(m *clrtype.MethodInfo, hasIntrinsicAttribute bool) bool {
	if !hasIntrinsicAttribute {
		return false
	}
	e, ok := r.Lookup(Signature(m))
	if !ok {
		return false
	}
	m.MethodPtr = e.MethodPtr
	m.InvokeMethodPtr = e.Invoke
	m.Invoker = clrtype.InvokerIntrinsic
	return true
}
