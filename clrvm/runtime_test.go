package clrvm

import (
	"testing"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/icall"
	"github.com/clrvm/clrvm/pe"
)

func TestCustomAttributesForParentEmptyImage(t *testing.T) {
	module := &clrtype.Module{Image: &pe.Image{}}
	rows := customAttributesForParent(module, pe.EncodeToken(pe.TableMethod, 1))
	if rows != nil {
		t.Fatalf("customAttributesForParent on an empty image = %v, want nil", rows)
	}
}

func TestHasIntrinsicAttributeNoRows(t *testing.T) {
	rt := &Runtime{}
	module := &clrtype.Module{Image: &pe.Image{}}
	got, err := rt.hasIntrinsicAttribute(module, pe.EncodeToken(pe.TableMethod, 1))
	if err != nil {
		t.Fatalf("hasIntrinsicAttribute: %v", err)
	}
	if got {
		t.Fatal("hasIntrinsicAttribute must be false when the method has no custom attributes")
	}
}

func TestBindMethodResolvesInternalCall(t *testing.T) {
	rt, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	called := false
	invoker := func(methodPtr uintptr, m *clrtype.MethodInfo, params, ret []uint64) error {
		called = true
		return nil
	}
	owner := &clrtype.RtClass{Namespace: "System", Name: "Object"}
	m := &clrtype.MethodInfo{Owner: owner, Name: "InternalToString", ImplFlags: implFlagInternalCall}
	if err := rt.ICalls.Register(icall.Entry{Signature: icall.Signature(m), Invoke: invoker}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	module := &clrtype.Module{Image: &pe.Image{}}
	if err := rt.bindMethod(module, m); err != nil {
		t.Fatalf("bindMethod: %v", err)
	}
	if m.Invoker != clrtype.InvokerInternalCall {
		t.Fatalf("m.Invoker = %v, want InvokerInternalCall", m.Invoker)
	}

	ret := make([]uint64, 0)
	if err := m.InvokeMethodPtr(m.MethodPtr, m, nil, ret); err != nil || !called {
		t.Fatalf("bound invoker did not run: err=%v called=%v", err, called)
	}
}

func TestBindMethodMissingInternalCallEntry(t *testing.T) {
	rt, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	owner := &clrtype.RtClass{Namespace: "System", Name: "Object"}
	m := &clrtype.MethodInfo{Owner: owner, Name: "Nonexistent", ImplFlags: implFlagInternalCall}
	module := &clrtype.Module{Image: &pe.Image{}}
	if err := rt.bindMethod(module, m); err == nil {
		t.Fatal("bindMethod must fail when no internal-call entry matches")
	}
}

func TestInvokeDispatchesIntrinsicThroughFrameStack(t *testing.T) {
	rt, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	owner := &clrtype.RtClass{Namespace: "System", Name: "Object"}
	var gotParams []uint64
	m := &clrtype.MethodInfo{
		Owner:           owner,
		Name:            "Ctor",
		Invoker:         clrtype.InvokerIntrinsic,
		InvokeMethodPtr: func(methodPtr uintptr, m *clrtype.MethodInfo, params, ret []uint64) error { gotParams = params; return nil },
	}
	ret, err := rt.Invoke(m, []uint64{42})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(ret) != 0 {
		t.Fatalf("ret = %v, want empty (RetStackObjectSize 0)", ret)
	}
	if len(gotParams) != 1 || gotParams[0] != 42 {
		t.Fatalf("params = %v, want [42]", gotParams)
	}
	if rt.Stack.FrameTop != 0 {
		t.Fatalf("FrameTop after Invoke = %d, want 0", rt.Stack.FrameTop)
	}
}

func TestInvokeRejectsMethodWithNoInvoker(t *testing.T) {
	rt, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	m := &clrtype.MethodInfo{Owner: &clrtype.RtClass{Namespace: "System", Name: "Object"}, Name: "Foo"}
	if _, err := rt.Invoke(m, nil); err == nil {
		t.Fatal("Invoke must fail for a method with no bound invoker")
	}
}

