package clrtype

import "github.com/clrvm/clrvm/clrerrors"

// classLoadError builds a TypeLoad error rooted at c's full name, for the
// materializer's internal consistency checks (vtable completeness, layout
// failures) that spec.md treats as load-time failures.
func classLoadError(c *RtClass, detail string, args ...any) error {
	path := []string{c.Module.Name, c.Namespace + "." + c.Name}
	return clrerrors.New(clrerrors.PhaseVtable, clrerrors.KindTypeLoad).
		Path(path...).Detail(detail, args...).Build()
}
