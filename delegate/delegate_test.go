package delegate

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
	"github.com/clrvm/clrvm/pe"
)

func leafModule() *clrtype.Module {
	return &clrtype.Module{Name: "test", Image: &pe.Image{}}
}

func delegateClass() *clrtype.RtClass {
	return &clrtype.RtClass{Module: leafModule(), Namespace: "System", Name: "Action"}
}

func instanceMethod(name string, paramCount int) *clrtype.MethodInfo {
	return &clrtype.MethodInfo{Name: name, ParamTypesigs: make([]*clrtype.Typesig, paramCount), VtableSlot: -1}
}

func staticMethod(name string, paramCount int) *clrtype.MethodInfo {
	m := instanceMethod(name, paramCount)
	m.IsStatic = true
	return m
}

func recordingInvoker(gotParams *[]uint64, retVal uint64) clrtype.Invoker {
	return func(methodPtr uintptr, method *clrtype.MethodInfo, params, ret []uint64) error {
		*gotParams = append([]uint64{}, params...)
		if len(ret) > 0 {
			ret[0] = retVal
		}
		return nil
	}
}

func TestConstructNonVirtualBindsMethodDirectly(t *testing.T) {
	del := &object.RtObject{Kind: object.KindDelegate}
	target := &object.RtObject{Class: &clrtype.RtClass{Name: "Widget"}}
	method := instanceMethod("DoWork", 0)

	if err := Construct(del, target, method); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if del.DelTarget != target || del.DelMethod != method {
		t.Fatal("Construct must bind target and method as given for a non-virtual method")
	}
}

func TestConstructVirtualResolvesThroughTargetVtable(t *testing.T) {
	decl := instanceMethod("ToString", 0)
	decl.IsVirtual = true
	decl.VtableSlot = 0
	override := instanceMethod("ToString", 0)

	targetClass := &clrtype.RtClass{Name: "Derived"}
	targetClass.Vtable = []clrtype.VtableSlot{{MethodImpl: override, Declaration: decl}}
	target := &object.RtObject{Class: targetClass}

	del := &object.RtObject{Kind: object.KindDelegate}
	if err := Construct(del, target, decl); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if del.DelMethod != override {
		t.Fatal("Construct must resolve a virtual method through the target's own vtable")
	}
}

func TestResolveVirtualUnresolvedSlotFails(t *testing.T) {
	decl := instanceMethod("Abstract", 0)
	decl.VtableSlot = 0
	class := &clrtype.RtClass{Name: "Base"}
	class.Vtable = []clrtype.VtableSlot{{MethodImpl: nil, Declaration: decl}}
	if _, err := ResolveVirtual(class, decl); err == nil {
		t.Fatal("expected an error resolving an unimplemented vtable slot")
	}
}

func TestNewAllocatesAndBinds(t *testing.T) {
	alloc := object.NewSimpleAllocator()
	target := &object.RtObject{Class: &clrtype.RtClass{Name: "Widget"}}
	method := instanceMethod("DoWork", 0)

	del, err := New(alloc, delegateClass(), target, method)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if del.Kind != object.KindDelegate {
		t.Fatalf("Kind = %v, want KindDelegate", del.Kind)
	}
	if del.DelTarget != target || del.DelMethod != method {
		t.Fatal("New must bind the delegate to the given target/method")
	}
}

func TestCloneLikeSourceCopiesState(t *testing.T) {
	alloc := object.NewSimpleAllocator()
	src, _ := New(alloc, delegateClass(), &object.RtObject{Class: &clrtype.RtClass{Name: "Widget"}}, instanceMethod("DoWork", 0))
	src.DelChain = []*object.RtObject{src}

	clone, err := CloneLikeSource(alloc, src)
	if err != nil {
		t.Fatalf("CloneLikeSource: %v", err)
	}
	if clone == src {
		t.Fatal("CloneLikeSource must allocate a distinct instance")
	}
	if clone.DelTarget != src.DelTarget || clone.DelMethod != src.DelMethod {
		t.Fatal("CloneLikeSource must copy the bound target/method")
	}
	if len(clone.DelChain) != 1 {
		t.Fatal("CloneLikeSource must copy the multicast chain")
	}
}

func TestInvokeSingleCastInstanceSameParamCount(t *testing.T) {
	var gotParams []uint64
	targetMethod := instanceMethod("DoWork", 1)
	targetMethod.InvokeMethodPtr = recordingInvoker(&gotParams, 0)
	target := &object.RtObject{Class: &clrtype.RtClass{Name: "Widget"}}

	del := &object.RtObject{Kind: object.KindDelegate, DelTarget: target, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 1)

	params := []uint64{object.Handle(del), 42}
	ret := make([]uint64, 1)
	if err := Invoke(del, invokeDecl, params, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if object.FromHandle(gotParams[0]) != target {
		t.Fatal("Invoke must overwrite slot 0 with the bound target for an instance leaf")
	}
	if gotParams[1] != 42 {
		t.Fatalf("gotParams[1] = %d, want 42", gotParams[1])
	}
}

func TestInvokeSingleCastValueTypeTargetUnwrapsPayload(t *testing.T) {
	var gotParams []uint64
	valueClass := &clrtype.RtClass{Name: "Point", Extra: clrtype.ExtraValueType}
	targetMethod := instanceMethod("Magnitude", 0)
	targetMethod.Owner = valueClass
	targetMethod.InvokeMethodPtr = recordingInvoker(&gotParams, 0)

	target := &object.RtObject{Class: &clrtype.RtClass{Name: "BoxedPoint"}, Data: []byte{1, 2, 3, 4}}
	del := &object.RtObject{Kind: object.KindDelegate, DelTarget: target, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 0)

	if err := Invoke(del, invokeDecl, []uint64{object.Handle(del)}, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	unwrapped := object.FromHandle(gotParams[0])
	if unwrapped == target {
		t.Fatal("Invoke must unwrap a value-type target to a fresh instance, not reuse the boxed object")
	}
	if unwrapped.Class != valueClass {
		t.Fatalf("unwrapped.Class = %v, want the target method's declaring value type", unwrapped.Class)
	}
	if string(unwrapped.Data) != string(target.Data) {
		t.Fatalf("unwrapped.Data = %v, want it to alias the boxed payload %v", unwrapped.Data, target.Data)
	}
}

func TestInvokeSingleCastStaticSkipsDelegateSlot(t *testing.T) {
	var gotParams []uint64
	targetMethod := staticMethod("DoWork", 1)
	targetMethod.InvokeMethodPtr = recordingInvoker(&gotParams, 0)

	del := &object.RtObject{Kind: object.KindDelegate, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 1)

	params := []uint64{object.Handle(del), 7}
	if err := Invoke(del, invokeDecl, params, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(gotParams) != 1 || gotParams[0] != 7 {
		t.Fatalf("gotParams = %v, want [7] (delegate's own this slot skipped)", gotParams)
	}
}

func TestInvokeMulticastKeepsOnlyLastReturn(t *testing.T) {
	var first, second []uint64
	m1 := staticMethod("A", 0)
	m1.InvokeMethodPtr = recordingInvoker(&first, 111)
	m2 := staticMethod("B", 0)
	m2.InvokeMethodPtr = recordingInvoker(&second, 222)

	leaf1 := &object.RtObject{Kind: object.KindDelegate, DelMethod: m1}
	leaf2 := &object.RtObject{Kind: object.KindDelegate, DelMethod: m2}
	del := &object.RtObject{Kind: object.KindDelegate, DelChain: []*object.RtObject{leaf1, leaf2}}
	invokeDecl := instanceMethod("Invoke", 0)
	invokeDecl.RetStackObjectSize = 8

	ret := make([]uint64, 1)
	if err := Invoke(del, invokeDecl, []uint64{object.Handle(del)}, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 222 {
		t.Fatalf("ret[0] = %d, want 222 (only the last leaf's return survives)", ret[0])
	}
}

func TestInvokeOpenInstanceShift(t *testing.T) {
	var gotParams []uint64
	// Delegate declares 2 params; target is an instance method with 1
	// param, taking its this from the delegate's first declared arg.
	targetMethod := instanceMethod("CompareTo", 1)
	targetMethod.InvokeMethodPtr = recordingInvoker(&gotParams, 0)
	del := &object.RtObject{Kind: object.KindDelegate, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 2)

	thisObj := &object.RtObject{Class: &clrtype.RtClass{Name: "Widget"}}
	params := []uint64{object.Handle(del), object.Handle(thisObj), 99}
	if err := Invoke(del, invokeDecl, params, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(gotParams) != 2 || object.FromHandle(gotParams[0]) != thisObj || gotParams[1] != 99 {
		t.Fatalf("gotParams mismatch: %v", gotParams)
	}
}

func TestInvokeClosedOverStaticShift(t *testing.T) {
	var gotParams []uint64
	// Delegate declares 1 param; target is a static method with 2 params,
	// the first supplied by the bound target captured at construction.
	targetMethod := staticMethod("Add", 2)
	targetMethod.InvokeMethodPtr = recordingInvoker(&gotParams, 0)
	bound := &object.RtObject{Class: &clrtype.RtClass{Name: "Box"}}
	del := &object.RtObject{Kind: object.KindDelegate, DelTarget: bound, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 1)

	params := []uint64{object.Handle(del), 5}
	if err := Invoke(del, invokeDecl, params, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(gotParams) != 2 || object.FromHandle(gotParams[0]) != bound || gotParams[1] != 5 {
		t.Fatalf("gotParams mismatch: %v", gotParams)
	}
}

func TestInvokeParamCountMismatchFails(t *testing.T) {
	targetMethod := staticMethod("Weird", 5)
	del := &object.RtObject{Kind: object.KindDelegate, DelMethod: targetMethod}
	invokeDecl := instanceMethod("Invoke", 1)
	params := []uint64{object.Handle(del), 0}
	if err := Invoke(del, invokeDecl, params, nil); err == nil {
		t.Fatal("expected an ExecutionEngine error for a parameter-count mismatch greater than 1")
	}
}

func TestInvokeNilDelegateFails(t *testing.T) {
	if err := Invoke(nil, instanceMethod("Invoke", 0), nil, nil); err == nil {
		t.Fatal("expected a null-reference error invoking a nil delegate")
	}
}
