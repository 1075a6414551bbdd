package pe

// columnDef describes one column of a metadata table row.
type columnDef struct {
	name  string
	kind  columnKind
	coded codedIndex  // set iff kind == colCoded
	table TableType   // set iff kind == colSimple
}

func fixed1(name string) columnDef { return columnDef{name: name, kind: colFixed1} }
func fixed2(name string) columnDef { return columnDef{name: name, kind: colFixed2} }
func fixed4(name string) columnDef { return columnDef{name: name, kind: colFixed4} }
func str(name string) columnDef    { return columnDef{name: name, kind: colString} }
func guid(name string) columnDef   { return columnDef{name: name, kind: colGUID} }
func blob(name string) columnDef   { return columnDef{name: name, kind: colBlob} }
func simple(name string, t TableType) columnDef {
	return columnDef{name: name, kind: colSimple, table: t}
}
func coded(name string, c codedIndex) columnDef {
	return columnDef{name: name, kind: colCoded, coded: c}
}

// tableSchema gives the column list of every ECMA-335 table this runtime
// understands, in row order. Tables not listed here (the *Ptr edit-and-
// continue indirection tables, ENCLog/ENCMap, the unused Assembly* tables)
// have no known row width: parseTableStream accepts them only with zero
// rows and rejects an image that gives one of them any rows as a bad
// image. No typed accessor is offered for them.
var tableSchema = map[TableType][]columnDef{
	TableModule: {fixed2("Generation"), str("Name"), guid("Mvid"), guid("EncId"), guid("EncBaseId")},
	TableTypeRef: {
		coded("ResolutionScope", codedResolutionScope),
		str("TypeName"), str("TypeNamespace"),
	},
	TableTypeDef: {
		fixed4("Flags"), str("TypeName"), str("TypeNamespace"),
		coded("Extends", codedTypeDefOrRef),
		simple("FieldList", TableField),
		simple("MethodList", TableMethod),
	},
	TableField: {fixed2("Flags"), str("Name"), blob("Signature")},
	TableMethod: {
		fixed4("RVA"), fixed2("ImplFlags"), fixed2("Flags"),
		str("Name"), blob("Signature"),
		simple("ParamList", TableParam),
	},
	TableParam: {fixed2("Flags"), fixed2("Sequence"), str("Name")},
	TableInterfaceImpl: {
		simple("Class", TableTypeDef),
		coded("Interface", codedTypeDefOrRef),
	},
	TableMemberRef: {
		coded("Class", codedMemberRefParent),
		str("Name"), blob("Signature"),
	},
	TableConstant: {
		fixed1("Type"), fixed1("Padding"),
		coded("Parent", codedHasConstant),
		blob("Value"),
	},
	TableCustomAttribute: {
		coded("Parent", codedHasCustomAttribute),
		coded("Type", codedCustomAttributeType),
		blob("Value"),
	},
	TableFieldMarshal: {coded("Parent", codedHasFieldMarshal), blob("NativeType")},
	TableDeclSecurity: {
		fixed2("Action"), coded("Parent", codedHasDeclSecurity), blob("PermissionSet"),
	},
	TableClassLayout: {
		fixed2("PackingSize"), fixed4("ClassSize"), simple("Parent", TableTypeDef),
	},
	TableFieldLayout: {fixed4("Offset"), simple("Field", TableField)},
	TableStandAloneSig: {blob("Signature")},
	TableEventMap:      {simple("Parent", TableTypeDef), simple("EventList", TableEvent)},
	TableEvent:         {fixed2("EventFlags"), str("Name"), coded("EventType", codedTypeDefOrRef)},
	TablePropertyMap:   {simple("Parent", TableTypeDef), simple("PropertyList", TableProperty)},
	TableProperty:      {fixed2("Flags"), str("Name"), blob("Type")},
	TableMethodSemantics: {
		fixed2("Semantics"), simple("Method", TableMethod),
		coded("Association", codedHasSemantics),
	},
	TableMethodImpl: {
		simple("Class", TableTypeDef),
		coded("MethodBody", codedMethodDefOrRef),
		coded("MethodDeclaration", codedMethodDefOrRef),
	},
	TableModuleRef: {str("Name")},
	TableTypeSpec:  {blob("Signature")},
	TableImplMap: {
		fixed2("MappingFlags"), coded("MemberForwarded", codedMemberForwarded),
		str("ImportName"), simple("ImportScope", TableModuleRef),
	},
	TableFieldRVA: {fixed4("RVA"), simple("Field", TableField)},
	TableAssembly: {
		fixed4("HashAlgId"), fixed2("MajorVersion"), fixed2("MinorVersion"),
		fixed2("BuildNumber"), fixed2("RevisionNumber"), fixed4("Flags"),
		blob("PublicKey"), str("Name"), str("Culture"),
	},
	TableAssemblyRef: {
		fixed2("MajorVersion"), fixed2("MinorVersion"), fixed2("BuildNumber"),
		fixed2("RevisionNumber"), fixed4("Flags"), blob("PublicKeyOrToken"),
		str("Name"), str("Culture"), blob("HashValue"),
	},
	TableFile: {fixed4("Flags"), str("Name"), blob("HashValue")},
	TableExportedType: {
		fixed4("Flags"), fixed4("TypeDefId"), str("TypeName"), str("TypeNamespace"),
		coded("Implementation", codedImplementation),
	},
	TableManifestResource: {
		fixed4("Offset"), fixed4("Flags"), str("Name"),
		coded("Implementation", codedImplementation),
	},
	TableNestedClass: {simple("NestedClass", TableTypeDef), simple("EnclosingClass", TableTypeDef)},
	TableGenericParam: {
		fixed2("Number"), fixed2("Flags"),
		coded("Owner", codedTypeOrMethodDef), str("Name"),
	},
	TableMethodSpec: {coded("Method", codedMethodDefOrRef), blob("Instantiation")},
	TableGenericParamConstraint: {
		simple("Owner", TableGenericParam),
		coded("Constraint", codedTypeDefOrRef),
	},
}
