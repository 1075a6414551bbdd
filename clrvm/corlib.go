package clrvm

import "github.com/clrvm/clrvm/clrtype"

// Corlib holds the fixed set of corlib classes the runtime and its
// satellite packages (vmexc's taxonomy, the object model's boxing/array
// paths, the attribute decoder's enum-width resolution) resolve by name
// at bootstrap rather than per use. Grounded on leanclr's class.cpp
// init_corlib_classes / CorLibTypes, trimmed to the subset this runtime
// actually wires a consumer to — reflection, culture, and thread classes
// the original resolves eagerly have no materialized consumer here and
// stay reachable through the ordinary ClassByName path instead.
type Corlib struct {
	Object    *clrtype.RtClass
	Void      *clrtype.RtClass
	String    *clrtype.RtClass
	ValueType *clrtype.RtClass
	Enum      *clrtype.RtClass
	Array     *clrtype.RtClass

	Boolean *clrtype.RtClass
	Char    *clrtype.RtClass
	SByte   *clrtype.RtClass
	Byte    *clrtype.RtClass
	Int16   *clrtype.RtClass
	UInt16  *clrtype.RtClass
	Int32   *clrtype.RtClass
	UInt32  *clrtype.RtClass
	Int64   *clrtype.RtClass
	UInt64  *clrtype.RtClass
	IntPtr  *clrtype.RtClass
	UIntPtr *clrtype.RtClass
	Single  *clrtype.RtClass
	Double  *clrtype.RtClass

	Delegate          *clrtype.RtClass
	MulticastDelegate *clrtype.RtClass

	Exception                  *clrtype.RtClass
	NotImplementedException    *clrtype.RtClass
	StackOverflowException     *clrtype.RtClass
	InvalidCastException       *clrtype.RtClass
	NullReferenceException     *clrtype.RtClass
	ArrayTypeMismatchException *clrtype.RtClass
	IndexOutOfRangeException   *clrtype.RtClass
	OutOfMemoryException       *clrtype.RtClass
	ArithmeticException        *clrtype.RtClass
	DivideByZeroException      *clrtype.RtClass
	OverflowException          *clrtype.RtClass
	ArgumentException          *clrtype.RtClass
	ArgumentNullException      *clrtype.RtClass
	ArgumentOutOfRangeException *clrtype.RtClass
	TypeLoadException          *clrtype.RtClass
	MissingFieldException      *clrtype.RtClass
	MissingMethodException     *clrtype.RtClass
	MissingMemberException     *clrtype.RtClass
	BadImageFormatException    *clrtype.RtClass
	EntryPointNotFoundException *clrtype.RtClass
	NotSupportedException      *clrtype.RtClass
	TypeUnloadedException      *clrtype.RtClass
	ExecutionEngineException   *clrtype.RtClass

	IntrinsicAttribute *clrtype.RtClass
}

// corlibEntry names one fixed class by its assignment target and
// assembly-qualified-free full name.
type corlibEntry struct {
	dest *(*clrtype.RtClass)
	name string
}

func loadCorlibTypes(corlib *clrtype.Module) (*Corlib, error) {
	t := &Corlib{}
	entries := []corlibEntry{
		{&t.Object, "System.Object"},
		{&t.Void, "System.Void"},
		{&t.String, "System.String"},
		{&t.ValueType, "System.ValueType"},
		{&t.Enum, "System.Enum"},
		{&t.Array, "System.Array"},

		{&t.Boolean, "System.Boolean"},
		{&t.Char, "System.Char"},
		{&t.SByte, "System.SByte"},
		{&t.Byte, "System.Byte"},
		{&t.Int16, "System.Int16"},
		{&t.UInt16, "System.UInt16"},
		{&t.Int32, "System.Int32"},
		{&t.UInt32, "System.UInt32"},
		{&t.Int64, "System.Int64"},
		{&t.UInt64, "System.UInt64"},
		{&t.IntPtr, "System.IntPtr"},
		{&t.UIntPtr, "System.UIntPtr"},
		{&t.Single, "System.Single"},
		{&t.Double, "System.Double"},

		{&t.Delegate, "System.Delegate"},
		{&t.MulticastDelegate, "System.MulticastDelegate"},

		{&t.Exception, "System.Exception"},
		{&t.NotImplementedException, "System.NotImplementedException"},
		{&t.StackOverflowException, "System.StackOverflowException"},
		{&t.InvalidCastException, "System.InvalidCastException"},
		{&t.NullReferenceException, "System.NullReferenceException"},
		{&t.ArrayTypeMismatchException, "System.ArrayTypeMismatchException"},
		{&t.IndexOutOfRangeException, "System.IndexOutOfRangeException"},
		{&t.OutOfMemoryException, "System.OutOfMemoryException"},
		{&t.ArithmeticException, "System.ArithmeticException"},
		{&t.DivideByZeroException, "System.DivideByZeroException"},
		{&t.OverflowException, "System.OverflowException"},
		{&t.ArgumentException, "System.ArgumentException"},
		{&t.ArgumentNullException, "System.ArgumentNullException"},
		{&t.ArgumentOutOfRangeException, "System.ArgumentOutOfRangeException"},
		{&t.TypeLoadException, "System.TypeLoadException"},
		{&t.MissingFieldException, "System.MissingFieldException"},
		{&t.MissingMethodException, "System.MissingMethodException"},
		{&t.MissingMemberException, "System.MissingMemberException"},
		{&t.BadImageFormatException, "System.BadImageFormatException"},
		{&t.EntryPointNotFoundException, "System.EntryPointNotFoundException"},
		{&t.NotSupportedException, "System.NotSupportedException"},
		{&t.TypeUnloadedException, "System.TypeUnloadedException"},
		{&t.ExecutionEngineException, "System.ExecutionEngineException"},

		{&t.IntrinsicAttribute, "System.Runtime.CompilerServices.IntrinsicAttribute"},
	}

	for _, e := range entries {
		class, err := corlib.ClassByName(e.name, false, true)
		if err != nil {
			return nil, err
		}
		*e.dest = class
	}
	return t, nil
}
