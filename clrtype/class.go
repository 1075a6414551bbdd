package clrtype

import (
	"sync"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/pe"
)

// Family classifies a class's materialization path, chosen by its by-value
// typesig's element type (spec.md §4.3).
type Family byte

const (
	FamilyTypeDef Family = iota
	FamilyGenericInst
	FamilyArrayOrSZArray
	FamilyGenericParam
	FamilyTypeOrFnPtr
)

// InitPart names one independently-initializable piece of a class, tracked
// in RtClass.initFlags. RuntimeClassInit is set by the execution engine
// once the type's static constructor finishes, not by Initialize.
type InitPart uint32

const (
	InitSuperTypes InitPart = 1 << iota
	InitInterfaceTypes
	InitNestedClasses
	InitField
	InitMethod
	InitProperty
	InitEvent
	InitVirtualTable
	InitRuntimeClassInit
)

// ExtraFlag is the extra-flags bitmask spec.md §3.2 lists alongside the
// metadata TypeDef flags.
type ExtraFlag uint32

const (
	ExtraValueType ExtraFlag = 1 << iota
	ExtraReferenceType
	ExtraEnum
	ExtraNullable
	ExtraHasReferences
	ExtraArrayOrSZArray
	ExtraHasStaticCtor
	ExtraHasFinalizer
	ExtraGeneric
)

// RtClass is a materialized type descriptor (spec.md §3.2).
type RtClass struct {
	Module    *Module
	Token     pe.Token
	Rid       uint32
	Namespace string
	Name      string
	Flags     uint32
	Extra     ExtraFlag
	Family    Family

	Parent         *RtClass
	DeclaringClass *RtClass // non-nil iff nested
	ElementClass   *RtClass // self, enum underlying type, array/ptr element, or nullable's value type
	CastClass      *RtClass

	ByValTypesig *Typesig
	ByRefTypesig *Typesig

	GenericContainer *GenericContainer

	Interfaces []*RtClass
	SuperTypes []*RtClass // index i = ancestor at depth i; SuperTypes[HierarchyDepth()] == self

	Fields     []*FieldInfo
	Methods    []*MethodInfo
	Properties []*PropertyInfo
	Events     []*EventInfo

	Vtable         []VtableSlot
	InterfaceSlots map[*RtClass]int // interface -> offset into Vtable

	StaticStorage []byte

	InstanceSize uint32 // without RtObject header
	Alignment    uint32
	StaticSize   uint32

	Extends pe.Token // TypeDefOrRef coded token; 0 if none (System.Object or an interface)

	fieldListStart  uint32
	methodListStart uint32

	mu        sync.Mutex
	initFlags InitPart
}

// HierarchyDepth returns this class's index into its own SuperTypes.
func (c *RtClass) HierarchyDepth() int {
	return len(c.SuperTypes) - 1
}

// HasClassParentFast is the constant-time ancestor test spec.md §4.3
// describes: b is an ancestor of c iff c's super-types array is at least
// as deep and holds b at that depth.
func (c *RtClass) HasClassParentFast(b *RtClass) bool {
	d := b.HierarchyDepth()
	return d <= c.HierarchyDepth() && c.SuperTypes[d] == b
}

// IsAssignableFrom reports whether a value of class from can be used
// where class c is expected: identity, class hierarchy, or interface
// implementation.
func (c *RtClass) IsAssignableFrom(from *RtClass) bool {
	if c == from {
		return true
	}
	if from.HasClassParentFast(c) {
		return true
	}
	for _, iface := range from.Interfaces {
		if iface == c || iface.HasClassParentFast(c) {
			return true
		}
	}
	return false
}

func (c *RtClass) hasFlag(f InitPart) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initFlags&f != 0
}

func (c *RtClass) setFlag(f InitPart) {
	c.mu.Lock()
	c.initFlags |= f
	c.mu.Unlock()
}

// Initialize runs initialize_all: every part except RuntimeClassInit, in
// the dependency order C3 requires (super types and interfaces before
// fields/methods/vtable).
func (c *RtClass) Initialize() error {
	if err := c.initSuperTypes(); err != nil {
		return err
	}
	if err := c.initInterfaceTypes(); err != nil {
		return err
	}
	if err := c.initNestedClasses(); err != nil {
		return err
	}
	if err := c.initFields(); err != nil {
		return err
	}
	if err := c.initMethods(); err != nil {
		return err
	}
	if err := c.initProperties(); err != nil {
		return err
	}
	if err := c.initEvents(); err != nil {
		return err
	}
	if err := c.initVirtualTable(); err != nil {
		return err
	}
	return nil
}

// IsCctorNotFinished reports whether the static constructor has not yet
// been run by the execution engine (spec.md §4.3).
func (c *RtClass) IsCctorNotFinished() bool {
	return !c.hasFlag(InitRuntimeClassInit)
}

// MarkCctorFinished sets RuntimeClassInit; called exactly once per class
// by the execution engine after a successful .cctor run.
func (c *RtClass) MarkCctorFinished() {
	c.setFlag(InitRuntimeClassInit)
}

func (c *RtClass) initSuperTypes() error {
	if c.hasFlag(InitSuperTypes) {
		return nil
	}
	switch c.Family {
	case FamilyTypeDef:
		if c.Extends == 0 {
			c.SuperTypes = []*RtClass{c}
			c.setFlag(InitSuperTypes)
			return nil
		}
		parent, err := c.Module.resolveTypeDefOrRef(c.Extends)
		if err != nil {
			return err
		}
		if err := parent.initSuperTypes(); err != nil {
			return err
		}
		c.Parent = parent
		c.SuperTypes = append(append([]*RtClass{}, parent.SuperTypes...), c)
	default:
		// Arrays/generic instances/generic params inherit System.Object's
		// chain unless a more specific base was already assigned by their
		// family-specific constructor.
		if c.Parent != nil {
			if err := c.Parent.initSuperTypes(); err != nil {
				return err
			}
			c.SuperTypes = append(append([]*RtClass{}, c.Parent.SuperTypes...), c)
		} else {
			c.SuperTypes = []*RtClass{c}
		}
	}
	c.setFlag(InitSuperTypes)
	return nil
}

func (c *RtClass) initInterfaceTypes() error {
	if c.hasFlag(InitInterfaceTypes) {
		return nil
	}
	defer c.setFlag(InitInterfaceTypes)

	if c.Family != FamilyTypeDef {
		return nil
	}
	img := c.Module.Image
	count := img.RowCount(pe.TableInterfaceImpl)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadInterfaceImplRow(rid)
		if !ok || row.Class != c.Rid {
			continue
		}
		iface, err := c.Module.resolveTypeDefOrRef(row.Interface)
		if err != nil {
			return err
		}
		if err := iface.initInterfaceTypes(); err != nil {
			return err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}
	return nil
}

func (c *RtClass) initNestedClasses() error {
	if c.hasFlag(InitNestedClasses) {
		return nil
	}
	c.setFlag(InitNestedClasses)
	if c.Family != FamilyTypeDef {
		return nil
	}
	img := c.Module.Image
	count := img.RowCount(pe.TableNestedClass)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadNestedClassRow(rid)
		if !ok || row.EnclosingClass != c.Rid {
			continue
		}
		nested, err := c.Module.ClassByTypeDefRid(row.NestedClass)
		if err != nil {
			return err
		}
		nested.DeclaringClass = c
	}
	return nil
}

// resolveTypeDefOrRef resolves a TypeDef or TypeRef token to a class,
// following TypeRef.ResolutionScope through the registry when the
// reference is external. A TypeSpec token is not resolved: it is reported
// as BadImageFormat.
func (m *Module) resolveTypeDefOrRef(tok pe.Token) (*RtClass, error) {
	table, rid := pe.DecodeToken(tok)
	switch table {
	case pe.TableTypeDef:
		return m.ClassByTypeDefRid(rid)
	case pe.TableTypeRef:
		return m.resolveTypeRef(rid)
	default:
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("unsupported TypeDefOrRef table %v", table).Build()
	}
}

func (m *Module) resolveTypeRef(rid uint32) (*RtClass, error) {
	ref, ok := m.Image.ReadTypeRefRow(rid)
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("TypeRef rid %d out of range", rid).Build()
	}
	scopeTable, scopeRid := pe.DecodeToken(ref.ResolutionScope)
	target := m
	if scopeTable == pe.TableAssemblyRef && m.registry != nil {
		asmRef, ok := m.Image.ReadAssemblyRefRow(scopeRid)
		if !ok {
			return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
				Path(m.Name).Detail("AssemblyRef rid %d out of range", scopeRid).Build()
		}
		resolved, err := m.registry.ResolveAssemblyRef(asmRef)
		if err != nil {
			return nil, err
		}
		target = resolved
	}
	return target.ClassByName(ref.Namespace+"."+ref.Name, false, true)
}
