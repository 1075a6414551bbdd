package pe

import "encoding/binary"

// Row is a decoded metadata table row: each column's raw value (a coded
// index's table is already resolved into a token, not just a rid).
type Row struct {
	Values []uint32
	cols   []columnDef
}

// Col returns the value of the named column, or (0, false) if the row has
// no such column.
func (r Row) Col(name string) (uint32, bool) {
	for i, c := range r.cols {
		if c.name == name {
			return r.Values[i], true
		}
	}
	return 0, false
}

// MustCol panics if the column does not exist; used only for columns the
// schema guarantees.
func (r Row) MustCol(name string) uint32 {
	v, ok := r.Col(name)
	if !ok {
		panic("pe: row has no column " + name)
	}
	return v
}

// ReadRow decodes the 1-based row `rid` of `table`. Returns false if the
// table is not present, unsupported, or rid is out of range — rid 0 always
// means "no row" per spec.md §6.2.
func (img *Image) ReadRow(table TableType, rid uint32) (Row, bool) {
	if rid == 0 || table >= MaxTable || !img.Streams.Valid[table] {
		return Row{}, false
	}
	ti := &img.Streams.Tables[table]
	if rid > ti.RowCount || ti.RowWidth == 0 {
		return Row{}, false
	}
	base := int(rid-1) * ti.RowWidth
	values := make([]uint32, len(ti.Columns))
	for i, c := range ti.Columns {
		off := base + ti.Offsets[i]
		w := ti.Widths[i]
		raw := readUint(ti.Data[off:off+w], w)
		values[i] = img.decodeColumn(c, raw, w)
	}
	return Row{Values: values, cols: ti.Columns}, true
}

// RowCount returns the number of rows in a table (0 if not present).
func (img *Image) RowCount(table TableType) uint32 {
	if table >= MaxTable || !img.Streams.Valid[table] {
		return 0
	}
	return img.Streams.Tables[table].RowCount
}

func readUint(b []byte, w int) uint32 {
	switch w {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}

// decodeColumn turns a raw column value into the value ReadRow's caller
// sees: for colCoded columns this means re-encoding as a (table,rid) token
// (spec.md §6.2) rather than leaving the tag bits packed in.
func (img *Image) decodeColumn(c columnDef, raw uint32, width int) uint32 {
	if c.kind != colCoded {
		return raw
	}
	tagBits := codedTagBits[c.coded]
	tables := codedTables[c.coded]
	tagMask := uint32(1)<<tagBits - 1
	tag := raw & tagMask
	rid := raw >> tagBits
	if int(tag) >= len(tables) || rid == 0 {
		return 0
	}
	return EncodeToken(tables[tag], rid)
}

// --- typed convenience wrappers -------------------------------------------

// ModuleRow is the decoded Module (0x00) table row.
type ModuleRow struct {
	Name              string
	Mvid              [16]byte
}

func (img *Image) ReadModuleRow(rid uint32) (ModuleRow, bool) {
	r, ok := img.ReadRow(TableModule, rid)
	if !ok {
		return ModuleRow{}, false
	}
	return ModuleRow{
		Name: img.StringHeap(r.MustCol("Name")),
		Mvid: img.GUIDHeap(r.MustCol("Mvid")),
	}, true
}

// TypeDefRow is the decoded TypeDef (0x02) table row, with heap/coded
// columns already resolved.
type TypeDefRow struct {
	Name       string
	Namespace  string
	Flags      uint32
	Extends    uint32 // token, 0 if none
	FieldList  uint32 // 1-based rid into Field
	MethodList uint32 // 1-based rid into Method
}

func (img *Image) ReadTypeDefRow(rid uint32) (TypeDefRow, bool) {
	r, ok := img.ReadRow(TableTypeDef, rid)
	if !ok {
		return TypeDefRow{}, false
	}
	return TypeDefRow{
		Flags:      r.MustCol("Flags"),
		Name:       img.StringHeap(r.MustCol("TypeName")),
		Namespace:  img.StringHeap(r.MustCol("TypeNamespace")),
		Extends:    r.MustCol("Extends"),
		FieldList:  r.MustCol("FieldList"),
		MethodList: r.MustCol("MethodList"),
	}, true
}

// TypeRefRow is the decoded TypeRef (0x01) table row.
type TypeRefRow struct {
	Name            string
	Namespace       string
	ResolutionScope uint32
}

func (img *Image) ReadTypeRefRow(rid uint32) (TypeRefRow, bool) {
	r, ok := img.ReadRow(TableTypeRef, rid)
	if !ok {
		return TypeRefRow{}, false
	}
	return TypeRefRow{
		ResolutionScope: r.MustCol("ResolutionScope"),
		Name:            img.StringHeap(r.MustCol("TypeName")),
		Namespace:       img.StringHeap(r.MustCol("TypeNamespace")),
	}, true
}

// FieldRow is the decoded Field (0x04) table row.
type FieldRow struct {
	Name      string
	Flags     uint16
	Signature []byte
}

func (img *Image) ReadFieldRow(rid uint32) (FieldRow, bool) {
	r, ok := img.ReadRow(TableField, rid)
	if !ok {
		return FieldRow{}, false
	}
	return FieldRow{
		Flags:     uint16(r.MustCol("Flags")),
		Name:      img.StringHeap(r.MustCol("Name")),
		Signature: img.BlobHeap(r.MustCol("Signature")),
	}, true
}

// MethodRow is the decoded Method (0x06) table row.
type MethodRow struct {
	Name      string
	Signature []byte
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	ParamList uint32
}

func (img *Image) ReadMethodRow(rid uint32) (MethodRow, bool) {
	r, ok := img.ReadRow(TableMethod, rid)
	if !ok {
		return MethodRow{}, false
	}
	return MethodRow{
		RVA:       r.MustCol("RVA"),
		ImplFlags: uint16(r.MustCol("ImplFlags")),
		Flags:     uint16(r.MustCol("Flags")),
		Name:      img.StringHeap(r.MustCol("Name")),
		Signature: img.BlobHeap(r.MustCol("Signature")),
		ParamList: r.MustCol("ParamList"),
	}, true
}

// ParamRow is the decoded Param (0x08) table row.
type ParamRow struct {
	Name     string
	Flags    uint16
	Sequence uint16
}

func (img *Image) ReadParamRow(rid uint32) (ParamRow, bool) {
	r, ok := img.ReadRow(TableParam, rid)
	if !ok {
		return ParamRow{}, false
	}
	return ParamRow{
		Flags:    uint16(r.MustCol("Flags")),
		Sequence: uint16(r.MustCol("Sequence")),
		Name:     img.StringHeap(r.MustCol("Name")),
	}, true
}

// InterfaceImplRow is the decoded InterfaceImpl (0x09) table row.
type InterfaceImplRow struct {
	Class     uint32 // TypeDef rid
	Interface uint32 // token
}

func (img *Image) ReadInterfaceImplRow(rid uint32) (InterfaceImplRow, bool) {
	r, ok := img.ReadRow(TableInterfaceImpl, rid)
	if !ok {
		return InterfaceImplRow{}, false
	}
	return InterfaceImplRow{Class: r.MustCol("Class"), Interface: r.MustCol("Interface")}, true
}

// MemberRefRow is the decoded MemberRef (0x0A) table row.
type MemberRefRow struct {
	Name      string
	Signature []byte
	Class     uint32 // token
}

func (img *Image) ReadMemberRefRow(rid uint32) (MemberRefRow, bool) {
	r, ok := img.ReadRow(TableMemberRef, rid)
	if !ok {
		return MemberRefRow{}, false
	}
	return MemberRefRow{
		Class:     r.MustCol("Class"),
		Name:      img.StringHeap(r.MustCol("Name")),
		Signature: img.BlobHeap(r.MustCol("Signature")),
	}, true
}

// ConstantRow is the decoded Constant (0x0B) table row.
type ConstantRow struct {
	Value  []byte
	Type   byte
	Parent uint32 // token
}

func (img *Image) ReadConstantRow(rid uint32) (ConstantRow, bool) {
	r, ok := img.ReadRow(TableConstant, rid)
	if !ok {
		return ConstantRow{}, false
	}
	return ConstantRow{
		Type:   byte(r.MustCol("Type")),
		Parent: r.MustCol("Parent"),
		Value:  img.BlobHeap(r.MustCol("Value")),
	}, true
}

// CustomAttributeRow is the decoded CustomAttribute (0x0C) table row.
type CustomAttributeRow struct {
	Value  []byte
	Parent uint32 // token
	Type   uint32 // token (Method or MemberRef)
}

func (img *Image) ReadCustomAttributeRow(rid uint32) (CustomAttributeRow, bool) {
	r, ok := img.ReadRow(TableCustomAttribute, rid)
	if !ok {
		return CustomAttributeRow{}, false
	}
	return CustomAttributeRow{
		Parent: r.MustCol("Parent"),
		Type:   r.MustCol("Type"),
		Value:  img.BlobHeap(r.MustCol("Value")),
	}, true
}

// ClassLayoutRow is the decoded ClassLayout (0x0F) table row.
type ClassLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
	Parent      uint32 // TypeDef rid
}

func (img *Image) ReadClassLayoutRow(rid uint32) (ClassLayoutRow, bool) {
	r, ok := img.ReadRow(TableClassLayout, rid)
	if !ok {
		return ClassLayoutRow{}, false
	}
	return ClassLayoutRow{
		PackingSize: uint16(r.MustCol("PackingSize")),
		ClassSize:   r.MustCol("ClassSize"),
		Parent:      r.MustCol("Parent"),
	}, true
}

// FieldLayoutRow is the decoded FieldLayout (0x10) table row.
type FieldLayoutRow struct {
	Offset uint32
	Field  uint32 // Field rid
}

func (img *Image) ReadFieldLayoutRow(rid uint32) (FieldLayoutRow, bool) {
	r, ok := img.ReadRow(TableFieldLayout, rid)
	if !ok {
		return FieldLayoutRow{}, false
	}
	return FieldLayoutRow{Offset: r.MustCol("Offset"), Field: r.MustCol("Field")}, true
}

// EventMapRow is the decoded EventMap (0x12) table row.
type EventMapRow struct {
	Parent    uint32
	EventList uint32
}

func (img *Image) ReadEventMapRow(rid uint32) (EventMapRow, bool) {
	r, ok := img.ReadRow(TableEventMap, rid)
	if !ok {
		return EventMapRow{}, false
	}
	return EventMapRow{Parent: r.MustCol("Parent"), EventList: r.MustCol("EventList")}, true
}

// EventRow is the decoded Event (0x14) table row.
type EventRow struct {
	Name       string
	EventFlags uint16
	EventType  uint32 // token
}

func (img *Image) ReadEventRow(rid uint32) (EventRow, bool) {
	r, ok := img.ReadRow(TableEvent, rid)
	if !ok {
		return EventRow{}, false
	}
	return EventRow{
		EventFlags: uint16(r.MustCol("EventFlags")),
		Name:       img.StringHeap(r.MustCol("Name")),
		EventType:  r.MustCol("EventType"),
	}, true
}

// PropertyMapRow is the decoded PropertyMap (0x15) table row.
type PropertyMapRow struct {
	Parent       uint32
	PropertyList uint32
}

func (img *Image) ReadPropertyMapRow(rid uint32) (PropertyMapRow, bool) {
	r, ok := img.ReadRow(TablePropertyMap, rid)
	if !ok {
		return PropertyMapRow{}, false
	}
	return PropertyMapRow{Parent: r.MustCol("Parent"), PropertyList: r.MustCol("PropertyList")}, true
}

// PropertyRow is the decoded Property (0x17) table row.
type PropertyRow struct {
	Name  string
	Type  []byte
	Flags uint16
}

func (img *Image) ReadPropertyRow(rid uint32) (PropertyRow, bool) {
	r, ok := img.ReadRow(TableProperty, rid)
	if !ok {
		return PropertyRow{}, false
	}
	return PropertyRow{
		Flags: uint16(r.MustCol("Flags")),
		Name:  img.StringHeap(r.MustCol("Name")),
		Type:  img.BlobHeap(r.MustCol("Type")),
	}, true
}

// MethodSemanticsRow is the decoded MethodSemantics (0x18) table row.
type MethodSemanticsRow struct {
	Semantics   uint16
	Method      uint32 // Method rid
	Association uint32 // token (Event or Property)
}

func (img *Image) ReadMethodSemanticsRow(rid uint32) (MethodSemanticsRow, bool) {
	r, ok := img.ReadRow(TableMethodSemantics, rid)
	if !ok {
		return MethodSemanticsRow{}, false
	}
	return MethodSemanticsRow{
		Semantics:   uint16(r.MustCol("Semantics")),
		Method:      r.MustCol("Method"),
		Association: r.MustCol("Association"),
	}, true
}

// MethodImplRow is the decoded MethodImpl (0x19) table row.
type MethodImplRow struct {
	Class             uint32 // TypeDef rid
	MethodBody        uint32 // token
	MethodDeclaration uint32 // token
}

func (img *Image) ReadMethodImplRow(rid uint32) (MethodImplRow, bool) {
	r, ok := img.ReadRow(TableMethodImpl, rid)
	if !ok {
		return MethodImplRow{}, false
	}
	return MethodImplRow{
		Class:             r.MustCol("Class"),
		MethodBody:        r.MustCol("MethodBody"),
		MethodDeclaration: r.MustCol("MethodDeclaration"),
	}, true
}

// ModuleRefRow is the decoded ModuleRef (0x1A) table row.
type ModuleRefRow struct{ Name string }

func (img *Image) ReadModuleRefRow(rid uint32) (ModuleRefRow, bool) {
	r, ok := img.ReadRow(TableModuleRef, rid)
	if !ok {
		return ModuleRefRow{}, false
	}
	return ModuleRefRow{Name: img.StringHeap(r.MustCol("Name"))}, true
}

// TypeSpecRow is the decoded TypeSpec (0x1B) table row.
type TypeSpecRow struct{ Signature []byte }

func (img *Image) ReadTypeSpecRow(rid uint32) (TypeSpecRow, bool) {
	r, ok := img.ReadRow(TableTypeSpec, rid)
	if !ok {
		return TypeSpecRow{}, false
	}
	return TypeSpecRow{Signature: img.BlobHeap(r.MustCol("Signature"))}, true
}

// ImplMapRow is the decoded ImplMap (0x1C) table row (P/Invoke mapping).
type ImplMapRow struct {
	ImportName     string
	MappingFlags   uint16
	MemberForwarded uint32
	ImportScope    uint32
}

func (img *Image) ReadImplMapRow(rid uint32) (ImplMapRow, bool) {
	r, ok := img.ReadRow(TableImplMap, rid)
	if !ok {
		return ImplMapRow{}, false
	}
	return ImplMapRow{
		MappingFlags:    uint16(r.MustCol("MappingFlags")),
		MemberForwarded: r.MustCol("MemberForwarded"),
		ImportName:      img.StringHeap(r.MustCol("ImportName")),
		ImportScope:     r.MustCol("ImportScope"),
	}, true
}

// FieldRVARow is the decoded FieldRVA (0x1D) table row.
type FieldRVARow struct {
	RVA   uint32
	Field uint32
}

func (img *Image) ReadFieldRVARow(rid uint32) (FieldRVARow, bool) {
	r, ok := img.ReadRow(TableFieldRVA, rid)
	if !ok {
		return FieldRVARow{}, false
	}
	return FieldRVARow{RVA: r.MustCol("RVA"), Field: r.MustCol("Field")}, true
}

// AssemblyRow is the decoded Assembly (0x20) table row.
type AssemblyRow struct {
	Name           string
	Culture        string
	PublicKey      []byte
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
}

func (img *Image) ReadAssemblyRow(rid uint32) (AssemblyRow, bool) {
	r, ok := img.ReadRow(TableAssembly, rid)
	if !ok {
		return AssemblyRow{}, false
	}
	return AssemblyRow{
		MajorVersion:   uint16(r.MustCol("MajorVersion")),
		MinorVersion:   uint16(r.MustCol("MinorVersion")),
		BuildNumber:    uint16(r.MustCol("BuildNumber")),
		RevisionNumber: uint16(r.MustCol("RevisionNumber")),
		Flags:          r.MustCol("Flags"),
		PublicKey:      img.BlobHeap(r.MustCol("PublicKey")),
		Name:           img.StringHeap(r.MustCol("Name")),
		Culture:        img.StringHeap(r.MustCol("Culture")),
	}, true
}

// AssemblyRefRow is the decoded AssemblyRef (0x23) table row.
type AssemblyRefRow struct {
	Name             string
	Culture          string
	PublicKeyOrToken []byte
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
	Flags            uint32
}

func (img *Image) ReadAssemblyRefRow(rid uint32) (AssemblyRefRow, bool) {
	r, ok := img.ReadRow(TableAssemblyRef, rid)
	if !ok {
		return AssemblyRefRow{}, false
	}
	return AssemblyRefRow{
		MajorVersion:     uint16(r.MustCol("MajorVersion")),
		MinorVersion:     uint16(r.MustCol("MinorVersion")),
		BuildNumber:      uint16(r.MustCol("BuildNumber")),
		RevisionNumber:   uint16(r.MustCol("RevisionNumber")),
		Flags:            r.MustCol("Flags"),
		PublicKeyOrToken: img.BlobHeap(r.MustCol("PublicKeyOrToken")),
		Name:             img.StringHeap(r.MustCol("Name")),
		Culture:          img.StringHeap(r.MustCol("Culture")),
	}, true
}

// NestedClassRow is the decoded NestedClass (0x29) table row.
type NestedClassRow struct {
	NestedClass    uint32
	EnclosingClass uint32
}

func (img *Image) ReadNestedClassRow(rid uint32) (NestedClassRow, bool) {
	r, ok := img.ReadRow(TableNestedClass, rid)
	if !ok {
		return NestedClassRow{}, false
	}
	return NestedClassRow{NestedClass: r.MustCol("NestedClass"), EnclosingClass: r.MustCol("EnclosingClass")}, true
}

// GenericParamRow is the decoded GenericParam (0x2A) table row.
type GenericParamRow struct {
	Name   string
	Number uint16
	Flags  uint16
	Owner  uint32 // token
}

func (img *Image) ReadGenericParamRow(rid uint32) (GenericParamRow, bool) {
	r, ok := img.ReadRow(TableGenericParam, rid)
	if !ok {
		return GenericParamRow{}, false
	}
	return GenericParamRow{
		Number: uint16(r.MustCol("Number")),
		Flags:  uint16(r.MustCol("Flags")),
		Owner:  r.MustCol("Owner"),
		Name:   img.StringHeap(r.MustCol("Name")),
	}, true
}

// MethodSpecRow is the decoded MethodSpec (0x2B) table row.
type MethodSpecRow struct {
	Method        uint32 // token
	Instantiation []byte
}

func (img *Image) ReadMethodSpecRow(rid uint32) (MethodSpecRow, bool) {
	r, ok := img.ReadRow(TableMethodSpec, rid)
	if !ok {
		return MethodSpecRow{}, false
	}
	return MethodSpecRow{Method: r.MustCol("Method"), Instantiation: img.BlobHeap(r.MustCol("Instantiation"))}, true
}

// GenericParamConstraintRow is the decoded GenericParamConstraint (0x2C) row.
type GenericParamConstraintRow struct {
	Owner      uint32 // GenericParam rid
	Constraint uint32 // token
}

func (img *Image) ReadGenericParamConstraintRow(rid uint32) (GenericParamConstraintRow, bool) {
	r, ok := img.ReadRow(TableGenericParamConstraint, rid)
	if !ok {
		return GenericParamConstraintRow{}, false
	}
	return GenericParamConstraintRow{Owner: r.MustCol("Owner"), Constraint: r.MustCol("Constraint")}, true
}
