package clrtype

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/pe"
)

// ResolveMethodToken resolves a MethodDefOrRef-coded token (table: Method
// or MemberRef) to the MethodInfo it names, materializing the owning
// class as needed. Used by the attribute decoder to locate a custom
// attribute's constructor from its CustomAttribute.Type column, and
// generally useful anywhere a call site needs a method reference resolved
// the same way the runtime's own call/callvirt opcodes would.
func (m *Module) ResolveMethodToken(tok pe.Token) (*MethodInfo, error) {
	table, rid := pe.DecodeToken(tok)
	switch table {
	case pe.TableMethod:
		return m.methodByRid(rid)
	case pe.TableMemberRef:
		return m.resolveMemberRefMethod(rid)
	default:
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("unsupported MethodDefOrRef table %v", table).Build()
	}
}

// ResolveTypeToken resolves a TypeDefOrRef-coded token the same way a
// signature's embedded class/valuetype reference would be followed. A
// thin export of resolveTypeDefOrRef for packages outside clrtype (the
// attribute decoder, resolving a CAEnum or CASystemType by token) that
// need the same TypeRef/AssemblyRef-following behavior call/callvirt use.
func (m *Module) ResolveTypeToken(tok pe.Token) (*RtClass, error) {
	return m.resolveTypeDefOrRef(tok)
}

// methodByRid finds the MethodInfo owning Method-table row rid by
// scanning every TypeDef's materialized method list. There is no reverse
// rid->class index since classes materialize lazily; a direct Method
// token almost always names a method declared in this same module, so
// the scan stays within one module's TypeDef table.
func (m *Module) methodByRid(rid uint32) (*MethodInfo, error) {
	want := pe.EncodeToken(pe.TableMethod, rid)
	count := m.Image.RowCount(pe.TableTypeDef)
	for typeRid := uint32(1); typeRid <= count; typeRid++ {
		class, err := m.ClassByTypeDefRid(typeRid)
		if err != nil {
			return nil, err
		}
		if err := class.initMethods(); err != nil {
			return nil, err
		}
		for _, meth := range class.Methods {
			if meth.Token == want {
				return meth, nil
			}
		}
	}
	return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindMissingMethod).
		Path(m.Name).Detail("Method rid %d is not owned by any TypeDef", rid).Build()
}

// resolveMemberRefMethod resolves a MemberRef row naming a method: its
// owning type through the same TypeDefOrRef resolution call/callvirt
// would use, then a name+signature-shape match against that type's own
// materialized methods.
func (m *Module) resolveMemberRefMethod(rid uint32) (*MethodInfo, error) {
	ref, ok := m.Image.ReadMemberRefRow(rid)
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("MemberRef rid %d out of range", rid).Build()
	}
	class, err := m.resolveTypeDefOrRef(ref.Class)
	if err != nil {
		return nil, err
	}
	if err := class.initMethods(); err != nil {
		return nil, err
	}
	_, params, _, err := m.decodeMethodSignature(ref.Signature)
	if err != nil {
		return nil, err
	}
	for _, meth := range class.Methods {
		if meth.Name != ref.Name || len(meth.ParamTypesigs) != len(params) {
			continue
		}
		match := true
		for i := range params {
			if !typesigShapeEqual(meth.ParamTypesigs[i], params[i]) {
				match = false
				break
			}
		}
		if match {
			return meth, nil
		}
	}
	return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindMissingMethod).
		Path(m.Name).Detail("MemberRef %s not found on %s.%s", ref.Name, class.Namespace, class.Name).Build()
}
