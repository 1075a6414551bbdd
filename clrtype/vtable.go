package clrtype

import (
	"go.uber.org/multierr"

	"github.com/clrvm/clrvm/pe"
)

// VtableSlot is one entry of a class's virtual-invoke table.
type VtableSlot struct {
	MethodImpl  *MethodInfo // nil if still unresolved (abstract, or a bug)
	Declaration *MethodInfo // the method signature this slot was introduced for
	explicit    bool        // set by an explicit MethodImpl row; protects against override search
}

// initVirtualTable runs the ten-step vtable-building algorithm of spec.md
// §4.3. Steps are numbered in comments to match the spec text exactly.
func (c *RtClass) initVirtualTable() error {
	if c.hasFlag(InitVirtualTable) {
		return nil
	}
	defer c.setFlag(InitVirtualTable)

	// 1. Require super-types, interfaces, and methods initialized,
	// including recursively for all interfaces.
	if err := c.initSuperTypes(); err != nil {
		return err
	}
	if err := c.initInterfaceTypes(); err != nil {
		return err
	}
	if err := c.initMethods(); err != nil {
		return err
	}
	var errs error
	for _, iface := range c.Interfaces {
		if err := iface.initVirtualTable(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}

	// 2. Partition this class's own virtual methods into new-slot and
	// override.
	var newSlot, override []*MethodInfo
	for _, m := range c.Methods {
		if !m.IsVirtual {
			continue
		}
		if m.IsNewSlot {
			newSlot = append(newSlot, m)
		} else {
			override = append(override, m)
		}
	}

	isRoot := c.Parent == nil
	if isRoot {
		// 3. No parent: this is an interface or System.Object. Allocate
		// one vtable of length |new_slot|.
		c.Vtable = make([]VtableSlot, len(newSlot))
		for i, m := range newSlot {
			m.VtableSlot = i
			impl := m
			if m.IsAbstract {
				impl = nil
			}
			c.Vtable[i] = VtableSlot{MethodImpl: impl, Declaration: m}
		}
		return c.assertNonAbstractComplete()
	}

	if err := c.Parent.initVirtualTable(); err != nil {
		return err
	}

	// 4. Inherit parent's vtable and interface-offset table. For each
	// declared interface, reuse an offset if the parent already has one,
	// otherwise append and extend.
	c.Vtable = append([]VtableSlot(nil), c.Parent.Vtable...)
	c.InterfaceSlots = make(map[*RtClass]int, len(c.Parent.InterfaceSlots)+len(c.Interfaces))
	for iface, off := range c.Parent.InterfaceSlots {
		c.InterfaceSlots[iface] = off
	}
	for _, iface := range c.Interfaces {
		if _, ok := c.InterfaceSlots[iface]; ok {
			continue
		}
		offset := len(c.Vtable)
		c.InterfaceSlots[iface] = offset
		for _, slot := range iface.Vtable {
			c.Vtable = append(c.Vtable, VtableSlot{MethodImpl: nil, Declaration: slot.Declaration})
		}
	}

	// 5. Extend the vtable with one entry per new-slot method.
	newSlotStart := len(c.Vtable)
	for _, m := range newSlot {
		slot := len(c.Vtable)
		m.VtableSlot = slot
		impl := m
		if m.IsAbstract {
			impl = nil
		}
		c.Vtable = append(c.Vtable, VtableSlot{MethodImpl: impl, Declaration: m})
	}

	// 6. Apply explicit MethodImpl rows.
	if err := c.applyExplicitMethodImpls(); err != nil {
		return err
	}

	// 7. For each override method, search the hierarchy virtual-method
	// list from nearest parent outwards; first unmarked slot with a
	// matching signature is overridden, propagating to parent entries
	// whose method_impl matched.
	for _, m := range override {
	search:
		for anc := c.Parent; anc != nil; anc = anc.Parent {
			for _, am := range anc.Methods {
				slotIdx := am.VtableSlot
				if !am.IsVirtual || slotIdx < 0 || slotIdx >= len(c.Vtable) || c.Vtable[slotIdx].explicit || !SignatureEquals(am, m) {
					continue
				}
				slot := &c.Vtable[slotIdx]
				matched := slot.MethodImpl
				slot.MethodImpl = m
				m.VtableSlot = slotIdx
				propagateOverride(c.Parent, matched, m, slotIdx)
				break search
			}
		}
	}

	// 8. For each new-slot method, scan across newly introduced interface
	// slots; fill a matching slot with the new method as the implicit
	// implementation.
	for _, m := range newSlot {
		for slotIdx := len(c.Parent.Vtable); slotIdx < newSlotStart; slotIdx++ {
			slot := &c.Vtable[slotIdx]
			if slot.explicit || slot.MethodImpl != nil || slot.Declaration == nil {
				continue
			}
			if SignatureEquals(slot.Declaration, m) {
				slot.MethodImpl = m
				break
			}
		}
	}

	// 9. For every still-null interface slot, search the entire hierarchy
	// virtual list for a signature match (inherited default
	// implementation).
	for slotIdx := range c.Vtable {
		slot := &c.Vtable[slotIdx]
		if slot.MethodImpl != nil || slot.Declaration == nil {
			continue
		}
		if found := findSignatureMatchInHierarchy(c, slot.Declaration); found != nil {
			slot.MethodImpl = found
		}
	}

	// 10. Assert completeness (non-abstract classes only).
	return c.assertNonAbstractComplete()
}

func (c *RtClass) applyExplicitMethodImpls() error {
	img := c.Module.Image
	count := img.RowCount(pe.TableMethodImpl)
	var errs error
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadMethodImplRow(rid)
		if !ok || row.Class != c.Rid {
			continue
		}
		declTable, declRid := pe.DecodeToken(row.MethodDeclaration)
		if declTable != pe.TableMethod {
			continue // MemberRef declarations resolved through cross-module lookup, out of scope here
		}
		var declClass *RtClass
		var slotIdx = -1
		for iface, off := range c.InterfaceSlots {
			for i, m := range iface.Methods {
				if pe.EncodeToken(pe.TableMethod, declRid) == m.Token {
					slotIdx = off + m.VtableSlot
					declClass = iface
					_ = i
					break
				}
			}
			if slotIdx >= 0 {
				break
			}
		}
		if slotIdx < 0 {
			for anc := c.Parent; anc != nil; anc = anc.Parent {
				for _, m := range anc.Methods {
					if pe.EncodeToken(pe.TableMethod, declRid) == m.Token {
						slotIdx = m.VtableSlot
						declClass = anc
						break
					}
				}
				if slotIdx >= 0 {
					break
				}
			}
		}
		if slotIdx < 0 || slotIdx >= len(c.Vtable) {
			continue
		}
		_ = declClass

		bodyTable, bodyRid := pe.DecodeToken(row.MethodBody)
		if bodyTable != pe.TableMethod {
			continue
		}
		var body *MethodInfo
		for _, m := range c.Methods {
			if m.Token == pe.EncodeToken(pe.TableMethod, bodyRid) {
				body = m
				break
			}
		}
		if body == nil {
			continue
		}
		c.Vtable[slotIdx].MethodImpl = body
		c.Vtable[slotIdx].explicit = true
		body.VtableSlot = slotIdx
	}
	return errs
}

// propagateOverride updates any ancestor vtable entry whose method_impl
// was the matched ancestor method, so devirtualized calls through a
// parent's own vtable array still see the most-derived override.
func propagateOverride(parent *RtClass, matched, newImpl *MethodInfo, slotIdx int) {
	for anc := parent; anc != nil; anc = anc.Parent {
		if slotIdx >= len(anc.Vtable) {
			continue
		}
		if anc.Vtable[slotIdx].MethodImpl == matched {
			anc.Vtable[slotIdx].MethodImpl = newImpl
		}
	}
}

func findSignatureMatchInHierarchy(c *RtClass, decl *MethodInfo) *MethodInfo {
	for anc := c; anc != nil; anc = anc.Parent {
		for _, m := range anc.Methods {
			if m.IsVirtual && SignatureEquals(m, decl) {
				return m
			}
		}
	}
	for _, iface := range c.Interfaces {
		for _, m := range iface.Methods {
			if SignatureEquals(m, decl) {
				return m
			}
		}
	}
	return nil
}

// assertNonAbstractComplete enforces spec.md §3.2's invariant: every
// vtable entry has a non-null method_impl once built, except slot 1 of the
// initial Object vtable (see SPEC_FULL.md §6's open-question decisions).
func (c *RtClass) assertNonAbstractComplete() error {
	if c.Flags&0x00000080 != 0 { // TypeAttributes.Abstract
		return nil
	}
	isRootObject := c.Parent == nil && len(c.Interfaces) == 0
	for i, slot := range c.Vtable {
		if slot.MethodImpl == nil {
			if isRootObject && i == 1 {
				continue
			}
			return vtableIncomplete(c, i)
		}
	}
	return nil
}

func vtableIncomplete(c *RtClass, slot int) error {
	return classLoadError(c, "vtable slot %d has no implementation", slot)
}
