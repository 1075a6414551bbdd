package pe

// TableType identifies one of the ECMA-335 metadata tables by its table
// number, 0x00-0x2C. Table numbers and names are grounded on ECMA-335
// §II.22 (cross-checked against saferwall/pe's dotnet.go constant block).
type TableType byte

const (
	TableModule                 TableType = 0x00
	TableTypeRef                TableType = 0x01
	TableTypeDef                TableType = 0x02
	TableFieldPtr               TableType = 0x03
	TableField                  TableType = 0x04
	TableMethodPtr              TableType = 0x05
	TableMethod                 TableType = 0x06
	TableParamPtr               TableType = 0x07
	TableParam                  TableType = 0x08
	TableInterfaceImpl          TableType = 0x09
	TableMemberRef              TableType = 0x0A
	TableConstant               TableType = 0x0B
	TableCustomAttribute        TableType = 0x0C
	TableFieldMarshal           TableType = 0x0D
	TableDeclSecurity           TableType = 0x0E
	TableClassLayout            TableType = 0x0F
	TableFieldLayout            TableType = 0x10
	TableStandAloneSig          TableType = 0x11
	TableEventMap                TableType = 0x12
	TableEventPtr                TableType = 0x13
	TableEvent                  TableType = 0x14
	TablePropertyMap            TableType = 0x15
	TablePropertyPtr            TableType = 0x16
	TableProperty               TableType = 0x17
	TableMethodSemantics        TableType = 0x18
	TableMethodImpl             TableType = 0x19
	TableModuleRef              TableType = 0x1A
	TableTypeSpec               TableType = 0x1B
	TableImplMap                TableType = 0x1C
	TableFieldRVA               TableType = 0x1D
	TableENCLog                 TableType = 0x1E
	TableENCMap                 TableType = 0x1F
	TableAssembly                TableType = 0x20
	TableAssemblyProcessor      TableType = 0x21
	TableAssemblyOS             TableType = 0x22
	TableAssemblyRef            TableType = 0x23
	TableAssemblyRefProcessor   TableType = 0x24
	TableAssemblyRefOS          TableType = 0x25
	TableFile                    TableType = 0x26
	TableExportedType           TableType = 0x27
	TableManifestResource       TableType = 0x28
	TableNestedClass            TableType = 0x29
	TableGenericParam           TableType = 0x2A
	TableMethodSpec             TableType = 0x2B
	TableGenericParamConstraint TableType = 0x2C

	// MaxTable is one past the highest ECMA-defined table number.
	MaxTable = 0x2D
)

// tableNames gives the debug string form of each table number.
var tableNames = map[TableType]string{
	TableModule: "Module", TableTypeRef: "TypeRef", TableTypeDef: "TypeDef",
	TableFieldPtr: "FieldPtr", TableField: "Field", TableMethodPtr: "MethodPtr",
	TableMethod: "Method", TableParamPtr: "ParamPtr", TableParam: "Param",
	TableInterfaceImpl: "InterfaceImpl", TableMemberRef: "MemberRef",
	TableConstant: "Constant", TableCustomAttribute: "CustomAttribute",
	TableFieldMarshal: "FieldMarshal", TableDeclSecurity: "DeclSecurity",
	TableClassLayout: "ClassLayout", TableFieldLayout: "FieldLayout",
	TableStandAloneSig: "StandAloneSig", TableEventMap: "EventMap",
	TableEventPtr: "EventPtr", TableEvent: "Event", TablePropertyMap: "PropertyMap",
	TablePropertyPtr: "PropertyPtr", TableProperty: "Property",
	TableMethodSemantics: "MethodSemantics", TableMethodImpl: "MethodImpl",
	TableModuleRef: "ModuleRef", TableTypeSpec: "TypeSpec", TableImplMap: "ImplMap",
	TableFieldRVA: "FieldRVA", TableENCLog: "ENCLog", TableENCMap: "ENCMap",
	TableAssembly: "Assembly", TableAssemblyProcessor: "AssemblyProcessor",
	TableAssemblyOS: "AssemblyOS", TableAssemblyRef: "AssemblyRef",
	TableAssemblyRefProcessor: "AssemblyRefProcessor", TableAssemblyRefOS: "AssemblyRefOS",
	TableFile: "File", TableExportedType: "ExportedType",
	TableManifestResource: "ManifestResource", TableNestedClass: "NestedClass",
	TableGenericParam: "GenericParam", TableMethodSpec: "MethodSpec",
	TableGenericParamConstraint: "GenericParamConstraint",
}

// String returns the table's ECMA-335 name, or "" if unknown.
func (t TableType) String() string {
	return tableNames[t]
}

// columnKind identifies what a table column holds, which determines both
// its width and how ReadRow decodes it.
type columnKind byte

const (
	colFixed1  columnKind = iota // 1-byte fixed value
	colFixed2                    // 2-byte fixed value
	colFixed4                    // 4-byte fixed value
	colString                    // index into #Strings
	colGUID                      // index into #GUID
	colBlob                      // index into #Blob
	colSimple                    // index into one fixed table (2 or 4 bytes by that table's row count)
	colCoded                     // coded index into one of several tables
)

// codedIndex names the tag-bit schemes of spec.md §4.1.
type codedIndex byte

const (
	codedNone codedIndex = iota
	codedTypeDefOrRef
	codedHasConstant
	codedHasCustomAttribute
	codedHasFieldMarshal
	codedHasDeclSecurity
	codedMemberRefParent
	codedHasSemantics
	codedMethodDefOrRef
	codedMemberForwarded
	codedImplementation
	codedCustomAttributeType
	codedResolutionScope
	codedTypeOrMethodDef
)

// codedTagBits is the number of tag bits spec.md §4.1 assigns to each coded
// index scheme.
var codedTagBits = map[codedIndex]uint{
	codedTypeDefOrRef:        2,
	codedHasConstant:         2,
	codedHasCustomAttribute:  5,
	codedHasFieldMarshal:     1,
	codedHasDeclSecurity:     2,
	codedMemberRefParent:     3,
	codedHasSemantics:        1,
	codedMethodDefOrRef:      1,
	codedMemberForwarded:     1,
	codedImplementation:      2,
	codedCustomAttributeType: 3,
	codedResolutionScope:     2,
	codedTypeOrMethodDef:     1,
}

// codedTables lists, for each coded-index scheme, the tables the low tag
// bits select between, in ECMA-335 tag order.
var codedTables = map[codedIndex][]TableType{
	codedTypeDefOrRef:       {TableTypeDef, TableTypeRef, TableTypeSpec},
	codedHasConstant:        {TableField, TableParam, TableProperty},
	codedHasCustomAttribute: {
		TableMethod, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	},
	codedHasFieldMarshal:     {TableField, TableParam},
	codedHasDeclSecurity:     {TableTypeDef, TableMethod, TableAssembly},
	codedMemberRefParent:     {TableTypeDef, TableTypeRef, TableModuleRef, TableMethod, TableTypeSpec},
	codedHasSemantics:        {TableEvent, TableProperty},
	codedMethodDefOrRef:      {TableMethod, TableMemberRef},
	codedMemberForwarded:     {TableField, TableMethod},
	codedImplementation:      {TableFile, TableAssemblyRef, TableExportedType},
	codedCustomAttributeType: {TableModule /* unused tag 0 */, TableModule /* unused tag 1 */, TableMethod, TableMemberRef, TableModule /* unused tag 4 */},
	codedResolutionScope:     {TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef},
	codedTypeOrMethodDef:     {TableTypeDef, TableMethod},
}
