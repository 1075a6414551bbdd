package clrtype

import "github.com/clrvm/clrvm/pe"

// PropertyInfo is a materialized property (spec.md §3.4).
type PropertyInfo struct {
	Owner     *RtClass
	Name      string
	Flags     uint16
	Signature []byte
	GetMethod *MethodInfo
	SetMethod *MethodInfo
}

const (
	methodSemanticsSetter = 0x0001
	methodSemanticsGetter = 0x0002
)

func (c *RtClass) initProperties() error {
	if c.hasFlag(InitProperty) {
		return nil
	}
	defer c.setFlag(InitProperty)
	if c.Family != FamilyTypeDef {
		return nil
	}
	if err := c.initMethods(); err != nil {
		return err
	}

	img := c.Module.Image
	mapRid, ok := findPropertyMap(img, c.Rid)
	if !ok {
		return nil
	}
	lo, hi := propertyRange(img, mapRid)
	for rid := lo; rid < hi; rid++ {
		row, ok := img.ReadPropertyRow(rid)
		if !ok {
			continue
		}
		p := c.Module.arena.NewProperty()
		p.Owner = c
		p.Name = row.Name
		p.Flags = row.Flags
		p.Signature = row.Type
		tok := pe.EncodeToken(pe.TableProperty, rid)
		c.bindPropertyAccessors(p, tok)
		c.Properties = append(c.Properties, p)
	}
	return nil
}

func (c *RtClass) bindPropertyAccessors(p *PropertyInfo, propToken pe.Token) {
	img := c.Module.Image
	count := img.RowCount(pe.TableMethodSemantics)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadMethodSemanticsRow(rid)
		if !ok || row.Association != propToken {
			continue
		}
		method := c.methodByRid(row.Method)
		if method == nil {
			continue
		}
		switch {
		case row.Semantics&methodSemanticsGetter != 0:
			p.GetMethod = method
		case row.Semantics&methodSemanticsSetter != 0:
			p.SetMethod = method
		}
	}
}

func (c *RtClass) methodByRid(rid uint32) *MethodInfo {
	tok := pe.EncodeToken(pe.TableMethod, rid)
	for _, m := range c.Methods {
		if m.Token == tok {
			return m
		}
	}
	return nil
}

func findPropertyMap(img *pe.Image, typeDefRid uint32) (rid uint32, ok bool) {
	count := img.RowCount(pe.TablePropertyMap)
	for r := uint32(1); r <= count; r++ {
		row, ok := img.ReadPropertyMapRow(r)
		if ok && row.Parent == typeDefRid {
			return r, true
		}
	}
	return 0, false
}

func propertyRange(img *pe.Image, mapRid uint32) (lo, hi uint32) {
	row, _ := img.ReadPropertyMapRow(mapRid)
	lo = row.PropertyList
	if lo == 0 {
		lo = 1
	}
	hi = img.RowCount(pe.TableProperty) + 1
	if next, ok := img.ReadPropertyMapRow(mapRid + 1); ok {
		hi = next.PropertyList
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
