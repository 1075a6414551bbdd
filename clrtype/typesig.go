package clrtype

import (
	"fmt"
	"strings"
	"sync"

	"github.com/clrvm/clrvm/pe"
)

// ElementType is the metadata element-type tag a typesig carries (a
// narrowed subset of ECMA-335 §II.23.1.16 covering what this runtime
// materializes).
type ElementType byte

const (
	ElemVoid ElementType = iota
	ElemBoolean
	ElemChar
	ElemI1
	ElemU1
	ElemI2
	ElemU2
	ElemI4
	ElemU4
	ElemI8
	ElemU8
	ElemR4
	ElemR8
	ElemString
	ElemPtr
	ElemByRef
	ElemValueType
	ElemClass
	ElemVar     // generic type parameter
	ElemArray   // multi-dim array
	ElemGenericInst
	ElemTypedByRef
	ElemI
	ElemU
	ElemFnPtr
	ElemObject
	ElemSZArray
	ElemMVar // generic method parameter
)

// Typesig is an immutable, pool-interned type reference. Two typesigs for
// the same type are pointer-equal (spec.md §3.3); the pool enforces this
// via content-hash-then-equality lookup, grounded on wasm.Module.AddType's
// "scan and reuse, else append" interning idiom, generalized from a flat
// slice to a map for the larger key space here.
type Typesig struct {
	Elem ElementType
	ByRef bool

	// ElemValueType / ElemClass: the referenced TypeDef/TypeRef.
	TypeDefToken pe.Token
	TypeDefMod   *Module

	// ElemGenericInst: base type-def plus interned argument vector.
	GenericBase *Typesig
	GenericArgs []*Typesig

	// ElemPtr / ElemByRef / ElemSZArray: the element typesig.
	Element *Typesig

	// ElemArray: element typesig plus rank/bounds.
	Rank   int
	Bounds []ArrayBound

	// ElemVar / ElemMVar: the generic parameter's ordinal and owner.
	GenericParamNumber int
	GenericParamOwner  pe.Token

	// ElemFnPtr: a function signature.
	FnPtrReturn *Typesig
	FnPtrParams []*Typesig
}

// ArrayBound is one dimension's declared size and lower bound (0 when
// unspecified, the CLI default).
type ArrayBound struct {
	Size       int32
	LowerBound int32
}

// key returns a content-hash-friendly string uniquely describing the
// typesig's shape, used as the pool's map key.
func (t *Typesig) key() string {
	var b strings.Builder
	writeTypesigKey(&b, t)
	return b.String()
}

func writeTypesigKey(b *strings.Builder, t *Typesig) {
	fmt.Fprintf(b, "%d", t.Elem)
	if t.ByRef {
		b.WriteByte('&')
	}
	switch t.Elem {
	case ElemValueType, ElemClass:
		fmt.Fprintf(b, ":%p:%08x", t.TypeDefMod, t.TypeDefToken)
	case ElemGenericInst:
		b.WriteByte('<')
		writeTypesigKey(b, t.GenericBase)
		for _, a := range t.GenericArgs {
			b.WriteByte(',')
			writeTypesigKey(b, a)
		}
		b.WriteByte('>')
	case ElemPtr, ElemByRef, ElemSZArray:
		b.WriteByte('[')
		writeTypesigKey(b, t.Element)
		b.WriteByte(']')
	case ElemArray:
		fmt.Fprintf(b, "[%d", t.Rank)
		writeTypesigKey(b, t.Element)
		b.WriteByte(']')
	case ElemVar, ElemMVar:
		fmt.Fprintf(b, ":%d:%08x", t.GenericParamNumber, t.GenericParamOwner)
	case ElemFnPtr:
		b.WriteByte('(')
		writeTypesigKey(b, t.FnPtrReturn)
		for _, p := range t.FnPtrParams {
			b.WriteByte(',')
			writeTypesigKey(b, p)
		}
		b.WriteByte(')')
	}
}

// Pool interns typesigs process-wide: generic instantiations and
// SZArray/Ptr/ByRef wrappers are memoized across every module, since two
// modules can each reference "List<int>" and must see the same pointer.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*Typesig
}

// NewPool returns an empty typesig pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[string]*Typesig)}
}

// Intern returns the canonical, pointer-equal instance for t's shape,
// inserting t as that canonical instance on first sight.
func (p *Pool) Intern(t *Typesig) *Typesig {
	k := t.key()
	p.mu.RLock()
	if existing, ok := p.entries[k]; ok {
		p.mu.RUnlock()
		return existing
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.entries[k]; ok {
		return existing
	}
	p.entries[k] = t
	return t
}

// ByValue interns a non-byref typesig for a TypeDef/TypeRef token within
// mod.
func (p *Pool) ByValue(mod *Module, tok pe.Token) *Typesig {
	return p.Intern(&Typesig{Elem: ElemValueType, TypeDefMod: mod, TypeDefToken: tok})
}

// SZArrayOf interns the SZArray-of-elem typesig.
func (p *Pool) SZArrayOf(elem *Typesig) *Typesig {
	return p.Intern(&Typesig{Elem: ElemSZArray, Element: elem})
}

// PtrTo interns the Ptr-of-elem typesig.
func (p *Pool) PtrTo(elem *Typesig) *Typesig {
	return p.Intern(&Typesig{Elem: ElemPtr, Element: elem})
}

// ByRefTo interns the ByRef-of-elem typesig.
func (p *Pool) ByRefTo(elem *Typesig) *Typesig {
	return p.Intern(&Typesig{Elem: elem.Elem, ByRef: true, Element: elem, TypeDefMod: elem.TypeDefMod, TypeDefToken: elem.TypeDefToken})
}

// GenericInstOf interns a generic instantiation of base with args.
func (p *Pool) GenericInstOf(base *Typesig, args []*Typesig) *Typesig {
	return p.Intern(&Typesig{Elem: ElemGenericInst, GenericBase: base, GenericArgs: args})
}

// VarOf interns a generic class-parameter reference.
func (p *Pool) VarOf(owner pe.Token, number int) *Typesig {
	return p.Intern(&Typesig{Elem: ElemVar, GenericParamOwner: owner, GenericParamNumber: number})
}

// MVarOf interns a generic method-parameter reference.
func (p *Pool) MVarOf(owner pe.Token, number int) *Typesig {
	return p.Intern(&Typesig{Elem: ElemMVar, GenericParamOwner: owner, GenericParamNumber: number})
}

// IsPrimitive reports whether e is one of the built-in value-type element
// kinds that never needs a TypeDef lookup to classify.
func (e ElementType) IsPrimitive() bool {
	switch e {
	case ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2, ElemI4, ElemU4,
		ElemI8, ElemU8, ElemR4, ElemR8, ElemI, ElemU:
		return true
	}
	return false
}

// StackSlotSize returns the number of 8-byte evaluation-stack slots an
// on-stack value of this element type occupies, per spec.md §6.1. Compound
// types (ElemValueType) are sized by their class's instance size elsewhere;
// this covers everything decidable from the tag alone.
func (e ElementType) StackSlotSize() int {
	switch e {
	case ElemVoid:
		return 0
	default:
		return 1
	}
}
