// Package clrtype materializes the metadata type system: modules,
// assemblies, typesigs, classes, fields, methods, properties, events, and
// virtual tables.
//
// A Module wraps one pe.Image plus an arena and a set of memoized caches.
// The process-wide Registry maps assembly name to Module; the first
// registered module is the corlib. Classes are never built eagerly —
// Module.ClassByTypeDefRid returns an RtClass shell that is only filled in
// part by part, on demand, via RtClass.Initialize.
package clrtype
