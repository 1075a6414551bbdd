package clrtype

import "github.com/clrvm/clrvm/pe"

// InvokerKind classifies how a method's body is ultimately executed
// (spec.md §3.4's "invoker type").
type InvokerKind byte

const (
	InvokerInterpretedIL InvokerKind = iota
	InvokerInternalCall
	InvokerIntrinsic
	InvokerPInvoke
	InvokerDelegateCtor
	InvokerDelegateInvoke
	InvokerArrayAccessor
)

// MethodInfo is a materialized method (spec.md §3.4).
type MethodInfo struct {
	Owner     *RtClass
	Name      string
	Token     pe.Token
	Flags     uint16
	ImplFlags uint16
	RVA       uint32

	ReturnTypesig *Typesig
	ParamTypesigs []*Typesig

	GenericContainer *GenericContainer

	MethodPtr             uintptr // native entry: interp trampoline addr placeholder, icall fn, or P/Invoke thunk
	InvokeMethodPtr        Invoker
	VirtualInvokeMethodPtr Invoker
	Invoker                InvokerKind

	ArgStackObjectSize uint32 // total stack-slot bytes for this+params
	RetStackObjectSize uint32

	VtableSlot int // -1 if non-virtual

	IsStatic   bool
	IsVirtual  bool
	IsAbstract bool
	IsNewSlot  bool
	IsFinal    bool

	InterpData *InterpMethodInfo // nil until lazily materialized by InterpInitializer
}

// InterpMethodInfo is a method's decoded-IL view: the frame machine only
// needs its eval-stack depth and code window, never the opcodes
// themselves (the decoder and per-opcode dispatch loop are an external
// collaborator, spec.md's Non-goals).
type InterpMethodInfo struct {
	Codes              []byte
	MaxStackObjectSize uint32
}

// InterpInitializer lazily materializes a method's InterpMethodInfo on
// first frame entry. The embedding interpreter installs it; the frame
// machine calls it through Method.interp_data the way enter_frame_from_native
// calls Interpreter::init_interpreter_method on a cache miss.
var InterpInitializer func(m *MethodInfo) (*InterpMethodInfo, error)

// Invoker is the uniform invoker ABI contract spec.md §6.1 defines:
// fn(methodPtr, method, paramSlots, retSlots) -> error.
type Invoker func(methodPtr uintptr, method *MethodInfo, paramSlots, retSlots []uint64) error

const (
	methodFlagStatic     = 0x0010
	methodFlagVirtual    = 0x0040
	methodFlagFinal      = 0x0020
	methodFlagNewSlot    = 0x0100
	methodFlagAbstract   = 0x0400
)

func (c *RtClass) initMethods() error {
	if c.hasFlag(InitMethod) {
		return nil
	}
	defer c.setFlag(InitMethod)
	if c.Family != FamilyTypeDef {
		return nil
	}
	img := c.Module.Image
	lo, hi := c.methodRange()
	for rid := lo; rid < hi; rid++ {
		row, ok := img.ReadMethodRow(rid)
		if !ok {
			continue
		}
		m := c.Module.arena.NewMethod()
		m.Owner = c
		m.Name = row.Name
		m.Token = pe.EncodeToken(pe.TableMethod, rid)
		m.Flags = row.Flags
		m.ImplFlags = row.ImplFlags
		m.RVA = row.RVA
		m.IsStatic = row.Flags&methodFlagStatic != 0
		m.IsVirtual = row.Flags&methodFlagVirtual != 0
		m.IsFinal = row.Flags&methodFlagFinal != 0
		m.IsNewSlot = row.Flags&methodFlagNewSlot != 0
		m.IsAbstract = row.Flags&methodFlagAbstract != 0
		m.VtableSlot = -1

		ret, params, _, err := c.Module.decodeMethodSignature(row.Signature)
		if err != nil {
			return err
		}
		m.ReturnTypesig = ret
		m.ParamTypesigs = params
		m.ArgStackObjectSize, m.RetStackObjectSize = computeStackObjectSizes(m)

		if row.Name == ".cctor" {
			c.Extra |= ExtraHasStaticCtor
		}
		if row.Name == "Finalize" {
			c.Extra |= ExtraHasFinalizer
		}

		c.Methods = append(c.Methods, m)
	}
	return nil
}

func (c *RtClass) methodRange() (lo, hi uint32) {
	lo = c.methodListStart
	if lo == 0 {
		lo = 1
	}
	hi = c.Module.Image.RowCount(pe.TableMethod) + 1
	if next, ok := c.Module.Image.ReadTypeDefRow(c.Rid + 1); ok {
		hi = next.MethodList
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// computeStackObjectSizes sums the parameter/return stack-slot widths
// spec.md §4.5/§6.1 describe: implicit this (if instance) occupies slot
// 0, each parameter consumes ceil(size/8) slots.
func computeStackObjectSizes(m *MethodInfo) (argSize, retSize uint32) {
	if !m.IsStatic {
		argSize += 8
	}
	for _, p := range m.ParamTypesigs {
		size, _ := fieldSizeAlign(p)
		argSize += ceilToSlots(size) * 8
	}
	if m.ReturnTypesig != nil && m.ReturnTypesig.Elem != ElemVoid {
		size, _ := fieldSizeAlign(m.ReturnTypesig)
		retSize = ceilToSlots(size) * 8
	}
	return argSize, retSize
}

func ceilToSlots(size uint32) uint32 {
	if size == 0 {
		return 1
	}
	return (size + 7) / 8
}

// SignatureEquals compares two methods' return and parameter typesigs,
// ignoring calling convention, for the override-matching search in C3/C5.
func SignatureEquals(a, b *MethodInfo) bool {
	if a.Name != b.Name {
		return false
	}
	if len(a.ParamTypesigs) != len(b.ParamTypesigs) {
		return false
	}
	if !typesigShapeEqual(a.ReturnTypesig, b.ReturnTypesig) {
		return false
	}
	for i := range a.ParamTypesigs {
		if !typesigShapeEqual(a.ParamTypesigs[i], b.ParamTypesigs[i]) {
			return false
		}
	}
	return true
}

func typesigShapeEqual(a, b *Typesig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.key() == b.key()
}
