package attribute

import (
	"encoding/binary"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
	"github.com/clrvm/clrvm/pe"
)

// Invoke runs ctor's IL body against target with the given argument
// slots, per spec.md §6.1's evaluation-stack ABI. Instantiate cannot run
// IL itself — that lives in the frame package, which this one must not
// depend on — so the caller (the runtime facade, which sits above both)
// supplies it.
type Invoke func(ctor *clrtype.MethodInfo, target *object.RtObject, args []uint64) error

// Instantiate decodes row, allocates and constructs the attribute object,
// and assigns its field-backed named arguments. It is intentionally
// narrower than Decode: only scalar, string, and enum-valued constructor
// and named arguments are supported, and only field-backed (not
// property-backed) named arguments can be assigned — an attribute naming
// an array-valued or System.Type-valued argument, or a property-backed
// named argument, has no constructible object model here and Instantiate
// reports KindNotSupported directing the caller to Decode instead.
func Instantiate(alloc object.Allocator, module *clrtype.Module, row pe.CustomAttributeRow, invoke Invoke) (*object.RtObject, error) {
	data, err := Decode(module, row)
	if err != nil {
		return nil, err
	}
	class := data.Ctor.Owner
	obj, err := alloc.AllocateObject(class)
	if err != nil {
		return nil, err
	}

	args := make([]uint64, len(data.ConstructorArguments))
	for i, a := range data.ConstructorArguments {
		slot, err := scalarSlot(module, a.Value)
		if err != nil {
			return nil, err
		}
		args[i] = slot
	}
	if err := invoke(data.Ctor, obj, args); err != nil {
		return nil, err
	}

	for _, na := range data.NamedArguments {
		if !na.IsField {
			return nil, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
				Detail("named argument %q targets a property; use Decode instead", na.Name).Build()
		}
		if err := setNamedField(alloc, module, obj, class, na); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// scalarSlot converts a decoded constructor argument into one evaluation-
// stack slot, allocating a string object when needed.
func scalarSlot(module *clrtype.Module, v Value) (uint64, error) {
	switch v.Kind {
	case KindSimple, KindEnum:
		return v.Scalar, nil
	case KindString:
		if v.Null {
			return 0, nil
		}
		str, err := newManagedString(module, v.Str)
		if err != nil {
			return 0, err
		}
		return object.Handle(str), nil
	default:
		return 0, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
			Detail("array- or System.Type-valued constructor arguments are not constructible via Instantiate; use Decode").Build()
	}
}

func setNamedField(alloc object.Allocator, module *clrtype.Module, obj *object.RtObject, class *clrtype.RtClass, na NamedArgument) error {
	f := findField(class, na.Name)
	if f == nil {
		return clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindMissingField).
			Detail("named argument %q names no field on %s.%s", na.Name, class.Namespace, class.Name).Build()
	}

	switch na.Value.Kind {
	case KindSimple, KindEnum:
		width, err := fieldWriteWidth(f.Typesig)
		if err != nil {
			return err
		}
		putScalar(obj.FieldBytes(f, width), width, na.Value.Scalar)
		return nil
	case KindString:
		if f.Typesig.Elem != clrtype.ElemString {
			return clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
				Detail("named argument %q value is a string but field %s is not", na.Name, f.Name).Build()
		}
		var handle uint64
		if !na.Value.Null {
			str, err := newManagedString(module, na.Value.Str)
			if err != nil {
				return err
			}
			handle = object.Handle(str)
			alloc.WriteBarrier(obj, f.Offset, str)
		}
		putScalar(obj.FieldBytes(f, 8), 8, handle)
		return nil
	default:
		return clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
			Detail("named argument %q is array- or System.Type-valued; use Decode instead", na.Name).Build()
	}
}

// findField looks up a non-static field by name on class or an ancestor.
func findField(class *clrtype.RtClass, name string) *clrtype.FieldInfo {
	for c := class; c != nil; c = c.Parent {
		for _, f := range c.Fields {
			if !f.IsStatic && f.Name == name {
				return f
			}
		}
	}
	return nil
}

// fieldWriteWidth returns the byte width a scalar- or enum-valued named
// argument must be written as, matching the field's own declared storage
// width so a write never spills into an adjacent field.
func fieldWriteWidth(sig *clrtype.Typesig) (uint32, error) {
	switch sig.Elem {
	case clrtype.ElemBoolean, clrtype.ElemI1, clrtype.ElemU1:
		return 1, nil
	case clrtype.ElemChar, clrtype.ElemI2, clrtype.ElemU2:
		return 2, nil
	case clrtype.ElemI4, clrtype.ElemU4, clrtype.ElemR4:
		return 4, nil
	case clrtype.ElemI8, clrtype.ElemU8, clrtype.ElemR8:
		return 8, nil
	case clrtype.ElemValueType:
		class, err := sig.TypeDefMod.ResolveTypeToken(sig.TypeDefToken)
		if err != nil {
			return 0, err
		}
		if class.Extra&clrtype.ExtraEnum == 0 {
			return 0, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
				Detail("field of struct type %s.%s is not a supported named argument target", class.Namespace, class.Name).Build()
		}
		width, err := widthForEnumClass(class)
		return uint32(width), err
	default:
		return 0, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindNotSupported).
			Detail("field element type %v is not a supported named argument target", sig.Elem).Build()
	}
}

func putScalar(dst []byte, width uint32, v uint64) {
	switch width {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	default:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func newManagedString(module *clrtype.Module, s string) (*object.RtObject, error) {
	stringClass, err := resolveSystemTypeName(module, "System.String")
	if err != nil {
		return nil, err
	}
	if stringClass == nil {
		return nil, clrerrors.New(clrerrors.PhaseAttribute, clrerrors.KindTypeLoad).
			Detail("System.String is not resolvable from module %s or corlib", module.Name).Build()
	}
	return object.NewString(stringClass, s)
}
