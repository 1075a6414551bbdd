package clrtype

import (
	"github.com/clrvm/clrvm/pe"
)

// FieldInfo is a materialized field (spec.md §3.4).
type FieldInfo struct {
	Owner   *RtClass
	Name    string
	Token   pe.Token
	Flags   uint16
	Typesig *Typesig
	Offset  uint32 // from the instance's logical start

	IsStatic  bool
	IsLiteral bool // constant-only; excluded from static storage
	HasRVA    bool
	RVAOffset int // raw file offset into the PE image, if HasRVA

	ConstantBlob []byte // Constant row's value, if IsLiteral
	ConstantType byte
}

const (
	fieldFlagStatic  = 0x0010
	fieldFlagLiteral = 0x0040
	fieldFlagHasRVA  = 0x0100 // FieldAttributes.HasFieldRVA
)

func (c *RtClass) initFields() error {
	if c.hasFlag(InitField) {
		return nil
	}
	if err := c.initSuperTypes(); err != nil {
		return err
	}
	defer c.setFlag(InitField)

	switch c.Family {
	case FamilyTypeDef:
		if err := c.loadTypeDefFields(); err != nil {
			return err
		}
	case FamilyArrayOrSZArray, FamilyTypeOrFnPtr:
		// No instance fields; size is computed by the object layer instead.
	case FamilyGenericInst, FamilyGenericParam:
		// Fields were already inflated by Instantiate, or there are none.
	}
	return layoutClass(c)
}

func (c *RtClass) loadTypeDefFields() error {
	img := c.Module.Image
	lo, hi := c.fieldRange()
	for rid := lo; rid < hi; rid++ {
		row, ok := img.ReadFieldRow(rid)
		if !ok {
			continue
		}
		f := c.Module.arena.NewField()
		f.Owner = c
		f.Name = row.Name
		f.Token = pe.EncodeToken(pe.TableField, rid)
		f.Flags = row.Flags
		f.IsStatic = row.Flags&fieldFlagStatic != 0
		f.IsLiteral = row.Flags&fieldFlagLiteral != 0
		f.HasRVA = row.Flags&fieldFlagHasRVA != 0
		sig, err := c.Module.decodeFieldSignature(row.Signature)
		if err != nil {
			return err
		}
		f.Typesig = sig

		if f.IsLiteral {
			if cnst, ok := findConstant(img, pe.EncodeToken(pe.TableField, rid)); ok {
				f.ConstantBlob = cnst.Value
				f.ConstantType = cnst.Type
			}
		}
		if f.HasRVA {
			if rva, ok := findFieldRVA(img, rid); ok {
				if off, ok := img.RVAFileOffset(rva); ok {
					f.RVAOffset = off
				}
			}
		}
		c.Fields = append(c.Fields, f)
	}
	return nil
}

// fieldRange returns [lo, hi) rids belonging to this TypeDef, using the
// next TypeDef's FieldList as the exclusive upper bound (or the table's
// row count + 1 for the last TypeDef).
func (c *RtClass) fieldRange() (lo, hi uint32) {
	lo = c.fieldListStart
	if lo == 0 {
		lo = 1
	}
	hi = c.Module.Image.RowCount(pe.TableField) + 1
	if next, ok := c.Module.Image.ReadTypeDefRow(c.Rid + 1); ok {
		hi = next.FieldList
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func findConstant(img *pe.Image, parent pe.Token) (pe.ConstantRow, bool) {
	count := img.RowCount(pe.TableConstant)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadConstantRow(rid)
		if ok && row.Parent == parent {
			return row, true
		}
	}
	return pe.ConstantRow{}, false
}

func findFieldRVA(img *pe.Image, fieldRid uint32) (uint32, bool) {
	count := img.RowCount(pe.TableFieldRVA)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadFieldRVARow(rid)
		if ok && row.Field == fieldRid {
			return row.RVA, true
		}
	}
	return 0, false
}

// layoutClass runs sequential or explicit field layout (spec.md §4.4) and
// fills InstanceSize/Alignment/StaticSize.
func layoutClass(c *RtClass) error {
	explicit := c.Flags&0x00000010 != 0 // TypeAttributes.ExplicitLayout bit of LayoutMask
	var instOff uint32
	if c.Parent != nil {
		instOff = c.Parent.InstanceSize
	}
	var staticOff uint32
	maxAlign := uint32(4)

	classLayout, hasLayout := findClassLayout(c.Module.Image, c.Rid)
	pack := uint32(8)
	if hasLayout && classLayout.PackingSize != 0 {
		pack = uint32(classLayout.PackingSize)
	}

	for _, f := range c.Fields {
		if f.IsLiteral || f.HasRVA {
			continue
		}
		size, align := fieldSizeAlign(f.Typesig)
		if explicit {
			if off, ok := findFieldLayout(c.Module.Image, f.Token); ok {
				f.Offset = off
			}
			continue
		}
		if f.IsStatic {
			staticOff = alignUp(staticOff, minU32(align, pack))
			f.Offset = staticOff
			staticOff += size
		} else {
			instOff = alignUp(instOff, minU32(align, pack))
			f.Offset = instOff
			instOff += size
		}
		if align > maxAlign {
			maxAlign = align
		}
	}

	if explicit {
		maxEnd := instOff
		for _, f := range c.Fields {
			if f.IsStatic || f.IsLiteral || f.HasRVA {
				continue
			}
			size, _ := fieldSizeAlign(f.Typesig)
			if end := f.Offset + size; end > maxEnd {
				maxEnd = end
			}
		}
		instOff = maxEnd
	}
	if hasLayout && classLayout.ClassSize > instOff {
		instOff = classLayout.ClassSize
	}

	c.InstanceSize = instOff
	c.Alignment = maxAlign
	c.StaticSize = staticOff
	if c.StaticSize > 0 {
		c.StaticStorage = make([]byte, c.StaticSize)
	}
	return nil
}

func findClassLayout(img *pe.Image, typeDefRid uint32) (pe.ClassLayoutRow, bool) {
	count := img.RowCount(pe.TableClassLayout)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadClassLayoutRow(rid)
		if ok && row.Parent == typeDefRid {
			return row, true
		}
	}
	return pe.ClassLayoutRow{}, false
}

func findFieldLayout(img *pe.Image, fieldToken pe.Token) (uint32, bool) {
	_, fieldRid := pe.DecodeToken(fieldToken)
	count := img.RowCount(pe.TableFieldLayout)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadFieldLayoutRow(rid)
		if ok && row.Field == fieldRid {
			return row.Offset, true
		}
	}
	return 0, false
}

// fieldSizeAlign returns the storage size and alignment of a field's
// typesig. Reference types and pointers are pointer-sized (8); primitives
// use their natural size; ElemValueType defers to the referenced class's
// own instance size once it has been laid out (recursion terminates
// because a value type cannot contain itself by value).
func fieldSizeAlign(sig *Typesig) (size, align uint32) {
	switch sig.Elem {
	case ElemBoolean, ElemI1, ElemU1:
		return 1, 1
	case ElemChar, ElemI2, ElemU2:
		return 2, 2
	case ElemI4, ElemU4, ElemR4:
		return 4, 4
	case ElemI8, ElemU8, ElemR8, ElemI, ElemU, ElemPtr, ElemFnPtr, ElemByRef,
		ElemString, ElemClass, ElemObject, ElemSZArray, ElemArray:
		return 8, 8
	case ElemValueType:
		if sig.TypeDefMod != nil {
			if c, err := sig.TypeDefMod.resolveTypeDefOrRef(sig.TypeDefToken); err == nil {
				if err := c.initFields(); err == nil {
					a := c.Alignment
					if a == 0 {
						a = 1
					}
					return maxU32(c.InstanceSize, 1), a
				}
			}
		}
		return 8, 8
	default:
		return 8, 8
	}
}

// ElementSize returns an array element class's per-slot storage size: a
// value-type element occupies its own instance size, a reference-type
// element occupies one pointer-sized slot (spec.md §4.6's
// element_stack_location_size).
func ElementSize(c *RtClass) uint32 {
	if c.Extra&ExtraValueType != 0 {
		return maxU32(c.InstanceSize, 1)
	}
	return 8
}

func alignUp(off, align uint32) uint32 {
	if align == 0 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
