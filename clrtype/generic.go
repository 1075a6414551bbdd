package clrtype

import "github.com/clrvm/clrvm/pe"

// GenericContainer holds a class or method's own generic-parameter list,
// each resolved lazily to a synthesized GenericParam class the first time
// it is referenced (spec.md §3.2, §4.5).
type GenericContainer struct {
	Owner  pe.Token // TypeOrMethodDef-coded token owning these parameters
	Params []*GenericParamInfo
}

// GenericParamInfo is one GenericParam metadata row plus its lazily
// synthesized class.
type GenericParamInfo struct {
	Name    string
	Number  int
	Flags   uint16
	classed *RtClass
}

// genericParamCache synthesizes and memoizes the per-(owner, number)
// RtClass for a generic parameter, process-wide — spec.md §3.2's "generic
// parameter classes ... synthesized lazily and memoized in process-wide
// tables keyed by their ... generic-param identity."
type genericParamCache struct {
	entries map[pe.Token]map[int]*RtClass
}

func newGenericParamCache() *genericParamCache {
	return &genericParamCache{entries: make(map[pe.Token]map[int]*RtClass)}
}

func (g *genericParamCache) get(owner pe.Token, number int, make_ func() *RtClass) *RtClass {
	byNumber, ok := g.entries[owner]
	if !ok {
		byNumber = make(map[int]*RtClass)
		g.entries[owner] = byNumber
	}
	if c, ok := byNumber[number]; ok {
		return c
	}
	c := make_()
	byNumber[number] = c
	return c
}

// InflateTypesig substitutes a class's generic arguments for Var/MVar
// occurrences in sig, used when materializing a GenericInst's fields and
// methods (spec.md §4.3 "GenericInst: inflate ... with the instantiation's
// generic context").
func InflateTypesig(pool *Pool, sig *Typesig, classArgs, methodArgs []*Typesig) *Typesig {
	switch sig.Elem {
	case ElemVar:
		if sig.GenericParamNumber < len(classArgs) {
			return classArgs[sig.GenericParamNumber]
		}
		return sig
	case ElemMVar:
		if sig.GenericParamNumber < len(methodArgs) {
			return methodArgs[sig.GenericParamNumber]
		}
		return sig
	case ElemSZArray:
		return pool.SZArrayOf(InflateTypesig(pool, sig.Element, classArgs, methodArgs))
	case ElemPtr:
		return pool.PtrTo(InflateTypesig(pool, sig.Element, classArgs, methodArgs))
	case ElemByRef:
		return pool.ByRefTo(InflateTypesig(pool, sig.Element, classArgs, methodArgs))
	case ElemGenericInst:
		args := make([]*Typesig, len(sig.GenericArgs))
		for i, a := range sig.GenericArgs {
			args[i] = InflateTypesig(pool, a, classArgs, methodArgs)
		}
		return pool.GenericInstOf(sig.GenericBase, args)
	default:
		return sig
	}
}

// Instantiate builds (or returns the memoized) RtClass for a generic
// instantiation of base with args, inflating its fields and methods under
// the new generic context. Grounded on spec.md §4.3's GenericInst family
// and §8's round-trip law that repeated instantiation is pointer-stable.
func (m *Module) Instantiate(pool *Pool, base *RtClass, args []*Typesig) (*RtClass, error) {
	sig := pool.GenericInstOf(base.ByValTypesig, args)
	key := sig.key()

	m.mu.RLock()
	if existing, ok := m.genericInsts[key]; ok {
		m.mu.RUnlock()
		return existing, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.genericInsts[key]; ok {
		return existing, nil
	}

	c := m.arena.NewClass()
	c.Module = m
	c.Token = base.Token
	c.Namespace = base.Namespace
	c.Name = base.Name
	c.Flags = base.Flags
	c.Family = FamilyGenericInst
	c.Parent = base.Parent
	c.ByValTypesig = sig
	c.GenericContainer = base.GenericContainer

	for _, f := range base.Fields {
		nf := m.arena.NewField()
		*nf = *f
		nf.Owner = c
		nf.Typesig = InflateTypesig(pool, f.Typesig, args, nil)
		c.Fields = append(c.Fields, nf)
	}
	for _, meth := range base.Methods {
		nm := m.arena.NewMethod()
		*nm = *meth
		nm.Owner = c
		nm.ReturnTypesig = InflateTypesig(pool, meth.ReturnTypesig, args, nil)
		params := make([]*Typesig, len(meth.ParamTypesigs))
		for i, p := range meth.ParamTypesigs {
			params[i] = InflateTypesig(pool, p, args, nil)
		}
		nm.ParamTypesigs = params
		c.Methods = append(c.Methods, nm)
	}
	c.Interfaces = base.Interfaces

	m.genericInsts[key] = c
	return c, nil
}
