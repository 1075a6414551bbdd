// Package clrvm is the root facade tying the metadata loader, object
// model, frame machine, exception taxonomy, and internal-call/intrinsic
// registries into one embeddable runtime (spec.md §2's control flow: an
// embedder hands over assembly bytes, calls initialization, then invokes
// a method). Grounded on runtime.Runtime's shape — New/Close plus a
// host registry the embedder populates before first use — generalized
// from a wasm engine handle to a CLI metadata registry and its satellite
// tables.
package clrvm

import (
	"github.com/clrvm/clrvm/attribute"
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/frame"
	"github.com/clrvm/clrvm/icall"
	"github.com/clrvm/clrvm/object"
	"github.com/clrvm/clrvm/pe"
	"github.com/clrvm/clrvm/vmexc"
	"github.com/clrvm/clrvm/vmlog"
)

// AssemblyLoaderFunc supplies an assembly's raw bytes by name (spec.md
// §6.3): the runtime calls it synchronously and takes ownership of the
// returned bytes only through the module it parses them into.
type AssemblyLoaderFunc func(name string) ([]byte, error)

// Options configures a Runtime. The zero value is not ready to use;
// start from DefaultOptions.
type Options struct {
	EvalStackSlots  uint32
	FrameStackDepth uint32

	// ReportUnhandled is called with a still-pending exception when
	// execution returns to the embedder without it having been
	// cleared (spec.md §4.9). Left nil, nothing is reported.
	ReportUnhandled func(ex *object.RtObject)

	// InterpInitializer lazily builds a method's interpreted-IL view
	// on first frame entry. The IL decoder and per-opcode dispatch
	// loop are this runtime's one external collaborator (spec.md's
	// Non-goals); an embedder that runs interpreted IL methods (as
	// opposed to internal-call/intrinsic-only assemblies) must supply
	// this. Left nil, entering a frame for a method with no other
	// invoker fails with ExecutionEngine.
	InterpInitializer func(m *clrtype.MethodInfo) (*clrtype.InterpMethodInfo, error)
}

// DefaultOptions returns the leanclr vm::Settings defaults.
func DefaultOptions() Options {
	return Options{
		EvalStackSlots:  frame.DefaultEvalStackSlots,
		FrameStackDepth: frame.DefaultFrameStackDepth,
	}
}

// Runtime is the embeddable CLI runtime: the module registry plus every
// satellite table and stack the core subsystems share.
type Runtime struct {
	Registry   *clrtype.Registry
	ICalls     *icall.Registry
	Intrinsics *icall.IntrinsicRegistry
	NewObjs    *icall.NewObjRegistry
	Alloc      *object.SimpleAllocator
	Stack      *frame.Stack
	Strings    *object.InternTable

	corlib *Corlib
	invoke attribute.Invoke
}

// New constructs a Runtime and installs the cross-package hooks
// (vmexc.ClassResolver, clrtype.InterpInitializer) that let the
// otherwise-independent core packages cooperate without importing each
// other. Call LoadAssembly for corlib first, then Initialize.
func New(opts Options) (*Runtime, error) {
	if opts.EvalStackSlots == 0 && opts.FrameStackDepth == 0 {
		opts = DefaultOptions()
	}
	stack, err := frame.NewStack(opts.EvalStackSlots, opts.FrameStackDepth)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Registry:   clrtype.NewRegistry(),
		ICalls:     icall.NewRegistry(),
		Intrinsics: icall.NewIntrinsicRegistry(),
		NewObjs:    icall.NewNewObjRegistry(),
		Alloc:      object.NewSimpleAllocator(),
		Stack:      stack,
	}
	rt.invoke = rt.invokeCtor

	vmexc.ClassResolver = rt.resolveCorlibClass
	vmexc.ReportUnhandled = opts.ReportUnhandled
	clrtype.InterpInitializer = opts.InterpInitializer
	return rt, nil
}

// Close releases the Runtime's eval-stack memory.
func (rt *Runtime) Close() {
	rt.Stack.Close()
}

// resolveCorlibClass backs vmexc.ClassResolver: every taxonomy lookup
// resolves a class by namespace+name against the registry's corlib.
func (rt *Runtime) resolveCorlibClass(namespace, name string) (*clrtype.RtClass, error) {
	corlib := rt.Registry.Corlib()
	if corlib == nil {
		return nil, clrerrors.New(clrerrors.PhaseExecute, clrerrors.KindExecutionEngine).
			Detail("no corlib module registered").Build()
	}
	full := name
	if namespace != "" {
		full = namespace + "." + name
	}
	return corlib.ClassByName(full, false, true)
}

// LoadAssembly reads name's bytes via loader, parses them as a PE/CLI
// image, and registers the resulting module. The first module ever
// loaded becomes the corlib (clrtype.Registry.Corlib's contract) — an
// embedder must load corlib before any dependent assembly.
func (rt *Runtime) LoadAssembly(name string, loader AssemblyLoaderFunc) (*clrtype.Module, error) {
	data, err := loader(name)
	if err != nil {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindFileNotFound).
			Path(name).Cause(err).Build()
	}
	img, err := pe.OpenImageData(data)
	if err != nil {
		return nil, err
	}
	module, err := clrtype.Load(name, img)
	if err != nil {
		return nil, err
	}
	if err := rt.Registry.Register(module); err != nil {
		return nil, err
	}
	vmlog.Debugf("clrvm: loaded assembly %s", name)
	return module, nil
}

// Initialize runs the corlib bootstrap spec.md §2 describes: materialize
// the fixed corlib class set, allocate the current-exception slot, and
// create and intern String.Empty. LoadAssembly for corlib must have
// already been called.
func (rt *Runtime) Initialize() (*Corlib, error) {
	corlib := rt.Registry.Corlib()
	if corlib == nil {
		return nil, clrerrors.New(clrerrors.PhaseExecute, clrerrors.KindExecutionEngine).
			Detail("Initialize called with no corlib loaded").Build()
	}

	types, err := loadCorlibTypes(corlib)
	if err != nil {
		return nil, err
	}
	for _, c := range []*clrtype.RtClass{types.Object, types.Array, types.String, types.Delegate} {
		if err := c.Initialize(); err != nil {
			return nil, err
		}
	}

	if err := vmexc.Initialize(rt.Alloc); err != nil {
		return nil, err
	}

	interns, err := object.NewInternTable(types.String)
	if err != nil {
		return nil, err
	}
	rt.Strings = interns
	rt.corlib = types

	icall.Alloc = rt.Alloc
	icallEntries, newObjEntries, err := icall.CorlibTable(icall.CorlibClasses{
		Object: types.Object,
		Array:  types.Array,
		String: types.String,
	})
	if err != nil {
		return nil, err
	}
	if err := rt.ICalls.RegisterTable(icallEntries); err != nil {
		return nil, err
	}
	if err := rt.NewObjs.RegisterTable(newObjEntries); err != nil {
		return nil, err
	}

	vmlog.Debugf("clrvm: initialized corlib %s", corlib.Name)
	return types, nil
}

// MaterializeClass runs class's lazy initialization and then binds
// every internal-call and intrinsic method it declares to its registry
// entry, per spec.md §4.10: "when a class is materialized, every method
// flagged as internal-call looks itself up in this registry."
func (rt *Runtime) MaterializeClass(class *clrtype.RtClass) error {
	if err := class.Initialize(); err != nil {
		return err
	}
	for _, m := range class.Methods {
		if err := rt.bindMethod(class.Module, m); err != nil {
			return err
		}
	}
	return rt.bindDelegateCtor(class)
}

// bindDelegateCtor registers class's own (object, IntPtr) constructor as
// a self-allocating newobj entry when class derives from System.Delegate
// (spec.md §4.10's "newobj variants... live in a parallel table"). Every
// compiler-generated delegate type shares icall.DelegateCtor as its
// constructor body, keyed by its own distinct Signature since each
// delegate type is its own class — unlike the fixed corlib table
// CorlibTable builds once, this runs per materialized class because the
// set of delegate types isn't known until their declaring assemblies
// load.
func (rt *Runtime) bindDelegateCtor(class *clrtype.RtClass) error {
	if rt.corlib == nil || rt.corlib.Delegate == nil {
		return nil
	}
	if class == rt.corlib.Delegate || class == rt.corlib.MulticastDelegate {
		return nil
	}
	if !rt.corlib.Delegate.IsAssignableFrom(class) {
		return nil
	}
	var ctor *clrtype.MethodInfo
	for _, m := range class.Methods {
		if m.Name == ".ctor" && len(m.ParamTypesigs) == 2 {
			ctor = m
			break
		}
	}
	if ctor == nil {
		return nil
	}
	if _, ok := rt.NewObjs.Lookup(ctor); ok {
		return nil
	}
	return rt.NewObjs.Register(icall.NewObjEntry{Signature: icall.Signature(ctor), Func: icall.DelegateCtor})
}

// NewObject constructs an instance of class via ctor: the self-
// allocating-constructor table is consulted first (spec.md §4.10's newobj
// path for strings and delegates, whose instances can't be allocated
// generically before their constructor runs), falling back to the
// ordinary allocate-then-call-ctor path for everything else.
func (rt *Runtime) NewObject(class *clrtype.RtClass, ctor *clrtype.MethodInfo, params []uint64) (*object.RtObject, error) {
	if obj, ok, err := rt.NewObjs.Construct(rt.Alloc, class, ctor, params); ok {
		return obj, err
	}
	obj, err := rt.Alloc.AllocateObject(class)
	if err != nil {
		return nil, err
	}
	full := make([]uint64, len(params)+1)
	full[0] = object.Handle(obj)
	copy(full[1:], params)
	if _, err := rt.Invoke(ctor, full); err != nil {
		return nil, err
	}
	return obj, nil
}

// implFlagInternalCall is MethodImplAttributes.InternalCall (ECMA-335
// §II.23.1.11); clrtype's own ImplFlags decoding stops at the raw u16,
// since interpreting it is a call-dispatch concern, not a metadata one.
const implFlagInternalCall = 0x1000

func (rt *Runtime) bindMethod(module *clrtype.Module, m *clrtype.MethodInfo) error {
	if m.RVA == 0 && m.ImplFlags&implFlagInternalCall != 0 {
		if !rt.ICalls.Resolve(m) {
			return clrerrors.New(clrerrors.PhaseICall, clrerrors.KindMissingMethod).
				Path(m.Owner.Namespace+"."+m.Owner.Name, m.Name).
				Detail("no internal-call entry for %s", icall.Signature(m)).Build()
		}
		return nil
	}
	isIntrinsic, err := rt.hasIntrinsicAttribute(module, m.Token)
	if err != nil {
		return err
	}
	rt.Intrinsics.Apply(m, isIntrinsic)
	return nil
}

// hasIntrinsicAttribute scans tok's custom attributes for
// System.Runtime.CompilerServices.IntrinsicAttribute (spec.md §4.10:
// "applied if and only if the method has been marked with the Intrinsic
// custom attribute"), grounded on leanclr's class.cpp resolving
// cls_intrinsic once at corlib-bootstrap time and comparing against it
// per method.
func (rt *Runtime) hasIntrinsicAttribute(module *clrtype.Module, tok pe.Token) (bool, error) {
	rows := customAttributesForParent(module, tok)
	for _, row := range rows {
		data, err := attribute.Decode(module, row)
		if err != nil {
			return false, err
		}
		owner := data.Ctor.Owner
		if owner.Namespace == "System.Runtime.CompilerServices" && owner.Name == "IntrinsicAttribute" {
			return true, nil
		}
	}
	return false, nil
}

// customAttributesForParent linear-scans the CustomAttribute table for
// rows attached to parent, mirroring methodresolve.go's methodByRid scan
// over TypeDef: there is no reverse parent->row index, and a method's
// own attributes are a handful of rows at most.
func customAttributesForParent(module *clrtype.Module, parent pe.Token) []pe.CustomAttributeRow {
	var rows []pe.CustomAttributeRow
	count := module.Image.RowCount(pe.TableCustomAttribute)
	for rid := uint32(1); rid <= count; rid++ {
		row, ok := module.Image.ReadCustomAttributeRow(rid)
		if ok && pe.Token(row.Parent) == parent {
			rows = append(rows, row)
		}
	}
	return rows
}

// Invoke runs method against args per the uniform evaluation-stack ABI
// (spec.md §6.1), returning the filled return-slot buffer (empty for a
// void method). It enters a frame for stack-trace purposes before
// delegating to the method's own invoker, whether that invoker is
// interpreted IL (requires InterpInitializer), an internal call, or an
// intrinsic — the ABI makes all three indistinguishable at the call
// site.
func (rt *Runtime) Invoke(method *clrtype.MethodInfo, args []uint64) ([]uint64, error) {
	if method.InvokeMethodPtr == nil {
		return nil, clrerrors.New(clrerrors.PhaseExecute, clrerrors.KindMissingMethod).
			Path(method.Owner.Namespace+"."+method.Owner.Name, method.Name).
			Detail("method has no bound invoker").Build()
	}
	ret := make([]uint64, method.RetStackObjectSize/8)

	if method.Invoker == clrtype.InvokerInternalCall || method.Invoker == clrtype.InvokerIntrinsic {
		old := rt.Stack.EnterFromICallOrIntrinsic(method)
		err := method.InvokeMethodPtr(method.MethodPtr, method, args, ret)
		rt.Stack.LeaveFromICallOrIntrinsic(old)
		return ret, err
	}

	oldEvalTop := rt.Stack.EvalTop
	if _, err := rt.Stack.EnterFromNative(method, args); err != nil {
		return nil, err
	}
	invokeErr := method.InvokeMethodPtr(method.MethodPtr, method, args, ret)
	if err := rt.Stack.FreeFrame(oldEvalTop); err != nil {
		return nil, err
	}
	return ret, invokeErr
}

// invokeCtor adapts Invoke to attribute.Invoke's narrower signature, so
// Instantiate can run a custom-attribute constructor the same way any
// other method call runs.
func (rt *Runtime) invokeCtor(ctor *clrtype.MethodInfo, target *object.RtObject, args []uint64) error {
	full := make([]uint64, len(args)+1)
	full[0] = object.Handle(target)
	copy(full[1:], args)
	_, err := rt.Invoke(ctor, full)
	return err
}

// InstantiateAttribute decodes and constructs the attribute row names,
// using this Runtime's own Invoke as the constructor-call mechanism —
// the wiring attribute.Instantiate's Invoke parameter exists for.
func (rt *Runtime) InstantiateAttribute(module *clrtype.Module, row pe.CustomAttributeRow) (*object.RtObject, error) {
	return attribute.Instantiate(rt.Alloc, module, row, rt.invoke)
}
