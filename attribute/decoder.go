// Package attribute decodes ECMA-335 §II.23.3 custom-attribute blobs
// (spec.md §4.11): the fixed constructor arguments and named field/property
// arguments a CustomAttribute table row carries, without requiring the
// attribute's constructor to actually run.
package attribute

import (
	"encoding/binary"
	"strings"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/pe"
)

// Custom-attribute blob tag bytes (ECMA-335 §II.23.3).
const (
	caBoolean      = 0x02
	caChar         = 0x03
	caI1           = 0x04
	caU1           = 0x05
	caI2           = 0x06
	caU2           = 0x07
	caI4           = 0x08
	caU4           = 0x09
	caI8           = 0x0A
	caU8           = 0x0B
	caR4           = 0x0C
	caR8           = 0x0D
	caString       = 0x0E
	caSZArray      = 0x1D
	caType         = 0x50
	caTaggedObject = 0x51
	caField        = 0x53
	caProperty     = 0x54
	caEnum         = 0x55
)

// Kind discriminates the shapes a decoded attribute argument can take.
type Kind byte

const (
	KindSimple Kind = iota
	KindString
	KindArray
	KindEnum
	KindSystemType
)

// Value is one decoded fixed or named argument. Only the fields relevant
// to its Kind are populated.
type Value struct {
	Kind Kind

	// KindSimple: the raw scalar, width/signedness given by the
	// constructor's (or field's) own declared type. KindEnum: the
	// underlying integer value.
	Scalar uint64

	// KindString / KindSystemType: the decoded string — a string value, or
	// (for KindSystemType) the assembly-qualified type name.
	Str string

	// KindString / KindArray: true when the blob encoded an explicit null
	// (a 0xFF SerString, or NumElem == 0xFFFFFFFF).
	Null bool

	// KindArray: the decoded elements, absent when Null.
	Elements []Value

	// KindEnum: the enum's type name, as named in the blob (fixed-arg
	// enums carry it via their ctor param's own typesig; named-arg enums
	// carry it inline in the type descriptor).
	EnumType string
}

// TypedArgument is one decoded fixed constructor argument.
type TypedArgument struct {
	Value Value
}

// NamedArgument is one decoded field- or property-targeted named argument.
type NamedArgument struct {
	IsField bool // false means property-targeted
	Name    string
	Value   Value
}

// CustomAttributeData is a fully decoded CustomAttribute row: the
// constructor it names plus its fixed and named arguments, matching
// spec.md §4.11's lazy reflection shape.
type CustomAttributeData struct {
	Ctor                 *clrtype.MethodInfo
	ConstructorArguments []TypedArgument
	NamedArguments       []NamedArgument
}

// typeDesc is a named argument's FieldOrPropType descriptor.
type typeDesc struct {
	Tag      byte
	Element  *typeDesc // caSZArray
	EnumName string    // caEnum
}

// reader walks a custom-attribute blob with the same ECMA-335 §II.23.2
// compressed-integer rule clrtype/signature.go's sigReader implements;
// that type is unexported and lives in a different package, so this is a
// parallel, error-returning twin sized for this grammar's larger values
// (u16/u32/u64 fields, SerString names) rather than signature bytes alone.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) u8() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, errTruncated()
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	v, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v), nil
}

func (r *reader) u32() (uint32, error) {
	v, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

func (r *reader) u64() (uint64, error) {
	v, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, errTruncated()
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) compressed() (uint32, error) {
	b0, err := r.u8()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.u8()
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil
	default:
		rest, err := r.bytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	}
}

// serString reads an ECMA-335 §II.23.2 SerString: a lone 0xFF means null,
// otherwise a compressed length prefix followed by that many UTF-8 bytes.
func (r *reader) serString() (s string, isNull bool, err error) {
	mark := r.pos
	b0, err := r.u8()
	if err != nil {
		return "", false, err
	}
	if b0 == 0xFF {
		return "", true, nil
	}
	r.pos = mark
	n, err := r.compressed()
	if err != nil {
		return "", false, err
	}
	data, err := r.bytes(int(n))
	if err != nil {
		return "", false, err
	}
	return string(data), false, nil
}

func errTruncated() error {
	return clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindBadImageFormat).
		Detail("custom attribute blob truncated").Build()
}

// Decode parses row's blob against ctor's declared signature, without
// invoking the constructor.
func Decode(module *clrtype.Module, row pe.CustomAttributeRow) (*CustomAttributeData, error) {
	ctor, err := module.ResolveMethodToken(pe.Token(row.Type))
	if err != nil {
		return nil, err
	}
	r := &reader{b: row.Value}

	prolog, err := r.u16()
	if err != nil {
		return nil, err
	}
	if prolog != 0x0001 {
		return nil, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindBadImageFormat).
			Detail("custom attribute blob prolog 0x%04x, want 0x0001", prolog).Build()
	}

	args := make([]TypedArgument, 0, len(ctor.ParamTypesigs))
	for _, sig := range ctor.ParamTypesigs {
		v, err := readFixedArg(r, module, sig)
		if err != nil {
			return nil, err
		}
		args = append(args, TypedArgument{Value: v})
	}

	numNamed, err := r.u16()
	if err != nil {
		return nil, err
	}
	named := make([]NamedArgument, 0, numNamed)
	for i := 0; i < int(numNamed); i++ {
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		if tag != caField && tag != caProperty {
			return nil, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindBadImageFormat).
				Detail("named argument tag 0x%x, want FIELD or PROPERTY", tag).Build()
		}
		desc, err := readTypeDesc(r)
		if err != nil {
			return nil, err
		}
		name, _, err := r.serString()
		if err != nil {
			return nil, err
		}
		val, err := readValueForDesc(r, module, desc)
		if err != nil {
			return nil, err
		}
		named = append(named, NamedArgument{IsField: tag == caField, Name: name, Value: val})
	}

	return &CustomAttributeData{Ctor: ctor, ConstructorArguments: args, NamedArguments: named}, nil
}

// readFixedArg reads one constructor fixed argument, shaped by the
// constructor's own declared parameter type rather than a self-describing
// tag — except for object-typed parameters, which are tagged (the
// TAGGED_OBJECT case) exactly like a named argument's value.
func readFixedArg(r *reader, module *clrtype.Module, sig *clrtype.Typesig) (Value, error) {
	switch sig.Elem {
	case clrtype.ElemBoolean:
		b, err := r.u8()
		return Value{Kind: KindSimple, Scalar: boolScalar(b != 0)}, err
	case clrtype.ElemI1, clrtype.ElemU1:
		b, err := r.u8()
		return Value{Kind: KindSimple, Scalar: uint64(b)}, err
	case clrtype.ElemChar, clrtype.ElemI2, clrtype.ElemU2:
		v, err := r.u16()
		return Value{Kind: KindSimple, Scalar: uint64(v)}, err
	case clrtype.ElemI4, clrtype.ElemU4, clrtype.ElemR4:
		v, err := r.u32()
		return Value{Kind: KindSimple, Scalar: uint64(v)}, err
	case clrtype.ElemI8, clrtype.ElemU8, clrtype.ElemR8:
		v, err := r.u64()
		return Value{Kind: KindSimple, Scalar: v}, err
	case clrtype.ElemString:
		s, isNull, err := r.serString()
		return Value{Kind: KindString, Str: s, Null: isNull}, err
	case clrtype.ElemSZArray:
		return readFixedArray(r, module, sig.Element)
	case clrtype.ElemValueType:
		class, err := sig.TypeDefMod.ResolveTypeToken(sig.TypeDefToken)
		if err != nil {
			return Value{}, err
		}
		if class.Extra&clrtype.ExtraEnum == 0 {
			return Value{}, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
				Detail("struct-valued constructor argument of type %s.%s is not supported", class.Namespace, class.Name).Build()
		}
		width, err := widthForEnumClass(class)
		if err != nil {
			return Value{}, err
		}
		v, err := readScalarWidth(r, width)
		return Value{Kind: KindEnum, Scalar: v, EnumType: class.Namespace + "." + class.Name}, err
	case clrtype.ElemClass:
		class, err := sig.TypeDefMod.ResolveTypeToken(sig.TypeDefToken)
		if err == nil && class != nil && class.Namespace == "System" && class.Name == "Type" {
			s, isNull, err := r.serString()
			return Value{Kind: KindSystemType, Str: s, Null: isNull}, err
		}
		return Value{}, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
			Detail("reference-typed constructor argument is not supported").Build()
	case clrtype.ElemObject:
		desc, err := readTypeDesc(r)
		if err != nil {
			return Value{}, err
		}
		return readValueForDesc(r, module, desc)
	default:
		return Value{}, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
			Detail("constructor argument element type %v is not supported", sig.Elem).Build()
	}
}

func readFixedArray(r *reader, module *clrtype.Module, elem *clrtype.Typesig) (Value, error) {
	n, err := r.u32()
	if err != nil {
		return Value{}, err
	}
	if n == 0xFFFFFFFF {
		return Value{Kind: KindArray, Null: true}, nil
	}
	elems := make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := readFixedArg(r, module, elem)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	return Value{Kind: KindArray, Elements: elems}, nil
}

// readTypeDesc reads a named argument's FieldOrPropType descriptor. A
// CAEnum descriptor's type name is part of the descriptor itself — read
// here, before the member name and value that follow it in the blob.
func readTypeDesc(r *reader) (*typeDesc, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case caBoolean, caChar, caI1, caU1, caI2, caU2, caI4, caU4, caI8, caU8, caR4, caR8,
		caString, caTaggedObject, caType:
		return &typeDesc{Tag: tag}, nil
	case caSZArray:
		elem, err := readTypeDesc(r)
		if err != nil {
			return nil, err
		}
		return &typeDesc{Tag: tag, Element: elem}, nil
	case caEnum:
		name, _, err := r.serString()
		if err != nil {
			return nil, err
		}
		return &typeDesc{Tag: tag, EnumName: name}, nil
	default:
		return nil, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindBadImageFormat).
			Detail("unrecognized named argument type tag 0x%x", tag).Build()
	}
}

// readValueForDesc reads a value matching a previously-parsed descriptor;
// also used for TAGGED_OBJECT fixed arguments and array elements, whose
// element descriptor is read fresh for each call.
func readValueForDesc(r *reader, module *clrtype.Module, desc *typeDesc) (Value, error) {
	switch desc.Tag {
	case caBoolean:
		b, err := r.u8()
		return Value{Kind: KindSimple, Scalar: boolScalar(b != 0)}, err
	case caChar, caI2, caU2:
		v, err := r.u16()
		return Value{Kind: KindSimple, Scalar: uint64(v)}, err
	case caI1, caU1:
		b, err := r.u8()
		return Value{Kind: KindSimple, Scalar: uint64(b)}, err
	case caI4, caU4, caR4:
		v, err := r.u32()
		return Value{Kind: KindSimple, Scalar: uint64(v)}, err
	case caI8, caU8, caR8:
		v, err := r.u64()
		return Value{Kind: KindSimple, Scalar: v}, err
	case caString:
		s, isNull, err := r.serString()
		return Value{Kind: KindString, Str: s, Null: isNull}, err
	case caType:
		s, isNull, err := r.serString()
		return Value{Kind: KindSystemType, Str: s, Null: isNull}, err
	case caTaggedObject:
		nested, err := readTypeDesc(r)
		if err != nil {
			return Value{}, err
		}
		return readValueForDesc(r, module, nested)
	case caEnum:
		width, err := widthForEnumName(module, desc.EnumName)
		if err != nil {
			return Value{}, err
		}
		v, err := readScalarWidth(r, width)
		return Value{Kind: KindEnum, Scalar: v, EnumType: desc.EnumName}, err
	case caSZArray:
		n, err := r.u32()
		if err != nil {
			return Value{}, err
		}
		if n == 0xFFFFFFFF {
			return Value{Kind: KindArray, Null: true}, nil
		}
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := readValueForDesc(r, module, desc.Element)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, v)
		}
		return Value{Kind: KindArray, Elements: elems}, nil
	default:
		return Value{}, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindBadImageFormat).
			Detail("unrecognized value type tag 0x%x", desc.Tag).Build()
	}
}

func readScalarWidth(r *reader, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := r.u8()
		return uint64(v), err
	case 2:
		v, err := r.u16()
		return uint64(v), err
	case 8:
		return r.u64()
	default:
		v, err := r.u32()
		return uint64(v), err
	}
}

func boolScalar(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// widthForEnumClass returns an enum class's underlying integer width in
// bytes, from its materialized ElementClass (spec.md §3.2's "self, enum
// underlying type, ... " slot). Dispatches on the underlying corlib
// primitive's name rather than a typesig, since ByValTypesig is only
// populated for generic instantiations (clrtype/generic.go), not every
// materialized TypeDef.
func widthForEnumClass(class *clrtype.RtClass) (int, error) {
	underlying := class.ElementClass
	if underlying == nil || underlying.Namespace != "System" {
		return 4, nil
	}
	switch underlying.Name {
	case "Byte", "SByte":
		return 1, nil
	case "Int16", "UInt16", "Char":
		return 2, nil
	case "Int64", "UInt64":
		return 8, nil
	default:
		return 4, nil
	}
}

// widthForEnumName resolves enumName (constructor's assembly first, then
// corlib) and returns its underlying width. An unresolvable name falls
// back to Int32 — the overwhelmingly common enum backing type — rather
// than failing the whole decode over a name this module can't see.
func widthForEnumName(module *clrtype.Module, enumName string) (int, error) {
	class, err := resolveSystemTypeName(module, enumName)
	if err != nil || class == nil {
		return 4, nil
	}
	return widthForEnumClass(class)
}

// resolveSystemTypeName resolves an assembly-qualified type name
// ("Namespace.Name[, AssemblyName]"), searching module first and corlib
// second — the same order clrtype's own cross-module lookups use.
func resolveSystemTypeName(module *clrtype.Module, assemblyQualified string) (*clrtype.RtClass, error) {
	name := assemblyQualified
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if c, err := module.ClassByName(name, false, false); err == nil && c != nil {
		return c, nil
	}
	reg := module.ModuleRegistry()
	if reg == nil {
		return nil, nil
	}
	corlib := reg.Corlib()
	if corlib == nil || corlib == module {
		return nil, nil
	}
	return corlib.ClassByName(name, false, false)
}
