package clrtype

// Arena is a simple bump allocator for metadata descriptors: fields,
// methods, classes, and typesigs all outlive their module for as long as
// it stays registered, and are never freed individually. Grounded on
// spec.md §3.7 ("modules own their arena") and the teacher's preference
// for a single owning allocator per resource scope (resource/table.go).
type Arena struct {
	classes   []*RtClass
	fields    []*FieldInfo
	methods   []*MethodInfo
	typesigs  []*Typesig
	properties []*PropertyInfo
	events    []*EventInfo
}

func newArena() *Arena {
	return &Arena{}
}

func (a *Arena) NewClass() *RtClass {
	c := &RtClass{}
	a.classes = append(a.classes, c)
	return c
}

func (a *Arena) NewField() *FieldInfo {
	f := &FieldInfo{}
	a.fields = append(a.fields, f)
	return f
}

func (a *Arena) NewMethod() *MethodInfo {
	m := &MethodInfo{}
	a.methods = append(a.methods, m)
	return m
}

func (a *Arena) NewTypesig() *Typesig {
	t := &Typesig{}
	a.typesigs = append(a.typesigs, t)
	return t
}

func (a *Arena) NewProperty() *PropertyInfo {
	p := &PropertyInfo{}
	a.properties = append(a.properties, p)
	return p
}

func (a *Arena) NewEvent() *EventInfo {
	e := &EventInfo{}
	a.events = append(a.events, e)
	return e
}
