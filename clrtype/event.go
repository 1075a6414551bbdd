package clrtype

import "github.com/clrvm/clrvm/pe"

// EventInfo is a materialized event (spec.md §3.4).
type EventInfo struct {
	Owner        *RtClass
	Name         string
	Flags        uint16
	Type         pe.Token
	AddMethod    *MethodInfo
	RemoveMethod *MethodInfo
	RaiseMethod  *MethodInfo
}

const (
	methodSemanticsAddOn    = 0x0008
	methodSemanticsRemoveOn = 0x0010
	methodSemanticsFire     = 0x0020
)

func (c *RtClass) initEvents() error {
	if c.hasFlag(InitEvent) {
		return nil
	}
	defer c.setFlag(InitEvent)
	if c.Family != FamilyTypeDef {
		return nil
	}
	if err := c.initMethods(); err != nil {
		return err
	}

	img := c.Module.Image
	mapRid, ok := findEventMap(img, c.Rid)
	if !ok {
		return nil
	}
	lo, hi := eventRange(img, mapRid)
	for rid := lo; rid < hi; rid++ {
		row, ok := img.ReadEventRow(rid)
		if !ok {
			continue
		}
		e := c.Module.arena.NewEvent()
		e.Owner = c
		e.Name = row.Name
		e.Flags = row.EventFlags
		e.Type = row.EventType
		tok := pe.EncodeToken(pe.TableEvent, rid)
		c.bindEventAccessors(e, tok)
		c.Events = append(c.Events, e)
	}
	return nil
}

func (c *RtClass) bindEventAccessors(e *EventInfo, eventToken pe.Token) {
	img := c.Module.Image
	count := img.RowCount(pe.TableMethodSemantics)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := img.ReadMethodSemanticsRow(rid)
		if !ok || row.Association != eventToken {
			continue
		}
		method := c.methodByRid(row.Method)
		if method == nil {
			continue
		}
		switch {
		case row.Semantics&methodSemanticsAddOn != 0:
			e.AddMethod = method
		case row.Semantics&methodSemanticsRemoveOn != 0:
			e.RemoveMethod = method
		case row.Semantics&methodSemanticsFire != 0:
			e.RaiseMethod = method
		}
	}
}

func findEventMap(img *pe.Image, typeDefRid uint32) (rid uint32, ok bool) {
	count := img.RowCount(pe.TableEventMap)
	for r := uint32(1); r <= count; r++ {
		row, ok := img.ReadEventMapRow(r)
		if ok && row.Parent == typeDefRid {
			return r, true
		}
	}
	return 0, false
}

func eventRange(img *pe.Image, mapRid uint32) (lo, hi uint32) {
	row, _ := img.ReadEventMapRow(mapRid)
	lo = row.EventList
	if lo == 0 {
		lo = 1
	}
	hi = img.RowCount(pe.TableEvent) + 1
	if next, ok := img.ReadEventMapRow(mapRid + 1); ok {
		hi = next.EventList
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
