// Package pe parses the PE (Portable Executable) wrapper and ECMA-335 CLI
// metadata of a managed assembly image.
//
// # Loading
//
// Open an assembly either from a path (memory-mapped for zero-copy access)
// or from an in-memory byte slice:
//
//	img, err := pe.OpenImageFile("MyAssembly.dll")
//	img, err := pe.OpenImageData(data)
//
// # Reading metadata rows
//
// Every ECMA-335 table (0x00-0x2C) is exposed through one generic row
// reader plus typed convenience wrappers:
//
//	row, ok := img.ReadRow(pe.TableTypeDef, rid)
//	typeDef, ok := img.ReadTypeDefRow(rid)
//
// Two binary searches are provided over tables that are sorted by a
// "owner" or "key" column, matching the ECMA-335 requirement that tables
// like FieldLayout and InterfaceImpl are emitted in sorted order:
//
//	lo, hi := img.FindRange(pe.TableInterfaceImpl, "Class", typeDefRid)
//	rid, ok := img.FindLastLE(pe.TableClassLayout, "Parent", key)
package pe
