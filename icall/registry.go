// Package icall is the process-wide registry of internal-call and
// intrinsic method invokers (spec.md §4.10): the host-side bodies a
// materialized MethodInfo adopts in place of interpreted IL when its
// ImplFlags mark it internal-call, or when an Intrinsic custom attribute
// names a faster replacement.
package icall

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/pe"
)

// Entry is one internal-call table row: {signature_string, function_pointer,
// invoker_fn} per spec.md §4.10. Signature is the textual method key —
// "Namespace.Class::Name(ParamType,ParamType)" — the same canonical form a
// materialized method computes from its own Owner/Name/ParamTypesigs to
// look itself up.
type Entry struct {
	Signature string
	MethodPtr uintptr
	Invoke    clrtype.Invoker
}

// Registry is a signature-string-keyed table of Entry, guarded the way
// linker.Namespace guards its funcs map: a single RWMutex, write path takes
// the full lock, reads (the hot path — every internal-call method looks
// itself up once at class-materialization time) take the read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds e to the registry. Registering a signature that already
// has an entry is an error — unlike linker.Namespace.DefineFunc's
// overwrite-on-redefine, a corlib icall table redefining a signature is a
// build-time mistake, not an expected override.
func (r *Registry) Register(e Entry) error {
	if e.Signature == "" {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("internal-call entry has an empty signature").Build()
	}
	if e.Invoke == nil {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("internal-call entry %q has a nil invoker", e.Signature).Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Signature]; exists {
		return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
			Detail("internal-call signature %q already registered", e.Signature).Build()
	}
	r.entries[e.Signature] = e
	return nil
}

// RegisterTable bulk-registers entries, the way runtime initialization
// loads each per-area table (internal_call_stubs.cpp's
// Append(entries, XModule::get_internal_call_entries()) pattern, one call
// per corlib namespace). A malformed entry doesn't abort the whole table:
// every entry is attempted, and per-entry failures are aggregated with
// multierr so the caller sees every bad signature in one error, not just
// the first.
func (r *Registry) RegisterTable(entries []Entry) error {
	var errs error
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Lookup resolves signature to its entry.
func (r *Registry) Lookup(signature string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[signature]
	return e, ok
}

// Len reports how many entries are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve looks m up by its canonical Signature and, on a hit, installs
// the entry's invoker and function pointer onto m: "every method flagged
// as internal-call looks itself up in this registry by its canonical
// signature and adopts the entry's invoker_fn as its invoke_method_ptr and
// function_pointer as its method_ptr" (spec.md §4.10). Called once per
// method at class-materialization time; it reports false (leaving m
// untouched) when no entry matches, so the caller can raise
// MissingMethod for a method declared internal-call with no backing
// entry.
func (r *Registry) Resolve(m *clrtype.MethodInfo) bool {
	e, ok := r.Lookup(Signature(m))
	if !ok {
		return false
	}
	m.MethodPtr = e.MethodPtr
	m.InvokeMethodPtr = e.Invoke
	m.Invoker = clrtype.InvokerInternalCall
	return true
}

// Signature computes a method's canonical internal-call lookup key from
// its owner class and parameter typesigs: "Namespace.Class::Name(T,T)".
// Instance methods do not list an implicit this parameter, mirroring the
// signature strings the original source's icall tables are written
// against literally.
func Signature(m *clrtype.MethodInfo) string {
	var b []byte
	if m.Owner != nil {
		if m.Owner.Namespace != "" {
			b = append(b, m.Owner.Namespace...)
			b = append(b, '.')
		}
		b = append(b, m.Owner.Name...)
		b = append(b, ':', ':')
	}
	b = append(b, m.Name...)
	b = append(b, '(')
	for i, p := range m.ParamTypesigs {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, typeName(p)...)
	}
	b = append(b, ')')
	return string(b)
}

// typeName renders a typesig the way internal-call tables spell parameter
// types in their signature strings: CLR type names, not CLS keywords
// ("Int32", never "int"). Class/value-type typesigs resolve their owning
// RtClass through the declaring module's TypeDef table to recover the
// namespace-qualified name; every other shape is built structurally.
func typeName(t *clrtype.Typesig) string {
	if t == nil {
		return ""
	}
	switch t.Elem {
	case clrtype.ElemBoolean:
		return "Boolean"
	case clrtype.ElemChar:
		return "Char"
	case clrtype.ElemI1:
		return "SByte"
	case clrtype.ElemU1:
		return "Byte"
	case clrtype.ElemI2:
		return "Int16"
	case clrtype.ElemU2:
		return "UInt16"
	case clrtype.ElemI4:
		return "Int32"
	case clrtype.ElemU4:
		return "UInt32"
	case clrtype.ElemI8:
		return "Int64"
	case clrtype.ElemU8:
		return "UInt64"
	case clrtype.ElemR4:
		return "Single"
	case clrtype.ElemR8:
		return "Double"
	case clrtype.ElemString:
		return "String"
	case clrtype.ElemObject:
		return "Object"
	case clrtype.ElemI:
		return "IntPtr"
	case clrtype.ElemU:
		return "UIntPtr"
	case clrtype.ElemPtr:
		return typeName(t.Element) + "*"
	case clrtype.ElemByRef:
		return typeName(t.Element) + "&"
	case clrtype.ElemSZArray:
		return typeName(t.Element) + "[]"
	case clrtype.ElemValueType, clrtype.ElemClass:
		return classTypeName(t)
	default:
		return ""
	}
}

func classTypeName(t *clrtype.Typesig) string {
	if t.TypeDefMod == nil {
		return ""
	}
	_, rid := pe.DecodeToken(t.TypeDefToken)
	c, err := t.TypeDefMod.ClassByTypeDefRid(rid)
	if err != nil || c == nil {
		return ""
	}
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}
