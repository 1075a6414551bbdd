// Package delegate implements bound (target, method) delegates and
// multicast invocation fan-out (spec.md §4.7).
package delegate

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/object"
)

// maxReturnSlots bounds the scratch buffer every intermediate multicast
// leaf return is staged into before only the last one is kept, mirroring
// the original's fixed MAX_DELEGATE_RESULT_OBJECT_SIZE.
const maxReturnSlots = 128

// ResolveVirtual looks up method's most-derived implementation on class's
// vtable — the virtual-target-resolution half of constructor_delegate.
func ResolveVirtual(class *clrtype.RtClass, method *clrtype.MethodInfo) (*clrtype.MethodInfo, error) {
	if method.VtableSlot < 0 || method.VtableSlot >= len(class.Vtable) {
		return nil, clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
			Detail("%s has no vtable slot on %s.%s", method.Name, class.Namespace, class.Name).Build()
	}
	impl := class.Vtable[method.VtableSlot].MethodImpl
	if impl == nil {
		return nil, clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
			Detail("unresolved virtual slot for %s on %s.%s", method.Name, class.Namespace, class.Name).Build()
	}
	return impl, nil
}

// Construct binds del to (target, method): constructor_delegate. When
// method is virtual and target is non-nil, the bound method is resolved
// through target's own vtable up front, so later invocation never
// re-dispatches virtually.
func Construct(del *object.RtObject, target *object.RtObject, method *clrtype.MethodInfo) error {
	del.DelTarget = target
	if method.IsVirtual && target != nil {
		impl, err := ResolveVirtual(target.Class, method)
		if err != nil {
			return err
		}
		del.DelMethod = impl
		return nil
	}
	del.DelMethod = method
	return nil
}

// New allocates a delegate instance of delegateClass and binds it to
// (target, method): new_delegate.
func New(alloc object.Allocator, delegateClass *clrtype.RtClass, target *object.RtObject, method *clrtype.MethodInfo) (*object.RtObject, error) {
	del, err := alloc.AllocateObject(delegateClass)
	if err != nil {
		return nil, err
	}
	del.Kind = object.KindDelegate
	if err := Construct(del, target, method); err != nil {
		return nil, err
	}
	return del, nil
}

// CloneLikeSource allocates a fresh delegate of source's exact class and
// copies its bound state: AllocDelegateLike_internal. Used by the managed
// Delegate.Combine/Remove machinery to produce a new delegate instance
// without re-running a constructor.
func CloneLikeSource(alloc object.Allocator, source *object.RtObject) (*object.RtObject, error) {
	clone, err := alloc.AllocateObject(source.Class)
	if err != nil {
		return nil, err
	}
	clone.Kind = object.KindDelegate
	clone.DelTarget = source.DelTarget
	clone.DelMethod = source.DelMethod
	clone.DelChain = source.DelChain
	return clone, nil
}

// thisFor returns the this representation targetMethod expects for a
// bound instance target: invoke_delegate_invoker advances the raw this
// pointer past the object header when the target method's declaring class
// is a value type, so the call sees the unboxed payload rather than the
// box. This runtime's boxed instances already carry that payload directly
// in Data (object/object.go's Kind-specific-payload convention), so the
// unwrap is a fresh RtObject aliasing the same Data under the value
// type's own class rather than the boxing class.
func thisFor(targetMethod *clrtype.MethodInfo, target *object.RtObject) *object.RtObject {
	if targetMethod.Owner != nil && targetMethod.Owner.Extra&clrtype.ExtraValueType != 0 {
		return &object.RtObject{Class: targetMethod.Owner, Data: target.Data}
	}
	return target
}

// leaves returns del's invocation list: its multicast chain if it has
// one, else del itself as the sole leaf.
func leaves(del *object.RtObject) []*object.RtObject {
	if del.DelChain != nil {
		return del.DelChain
	}
	return []*object.RtObject{del}
}

// Invoke runs del's bound method(s): invoke_delegate_invoker. method is
// the delegate type's own declared Invoke signature (used only for its
// parameter count and return size); params holds [del, arg1, ..., argN]
// — del occupies the implicit this slot — and the last leaf's return
// value is copied into ret. Intermediate leaf returns are discarded.
func Invoke(del *object.RtObject, method *clrtype.MethodInfo, params, ret []uint64) error {
	if del == nil {
		return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindNullReference).Build()
	}
	delegateParamCount := len(method.ParamTypesigs)
	var scratch [maxReturnSlots]uint64

	for _, leaf := range leaves(del) {
		target := leaf.DelTarget
		targetMethod := leaf.DelMethod
		targetParamCount := len(targetMethod.ParamTypesigs)

		var finalArgs []uint64
		switch delegateParamCount - targetParamCount {
		case 0:
			if targetMethod.IsStatic {
				finalArgs = params[1:]
			} else {
				if target == nil {
					return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindNullReference).Build()
				}
				params[0] = object.Handle(thisFor(targetMethod, target))
				finalArgs = params
			}
		case 1:
			// Open instance delegate: the delegate's first declared
			// parameter supplies the target's implicit this.
			if targetMethod.IsStatic {
				return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
					Detail("open-instance delegate shift requires an instance target method").Build()
			}
			if object.FromHandle(params[1]) == nil {
				return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindNullReference).Build()
			}
			finalArgs = params[1:]
		case -1:
			// Closed-over-static delegate: target was bound with an
			// extra leading parameter at construction time.
			if !targetMethod.IsStatic {
				return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
					Detail("closed-over-static delegate shift requires a static target method").Build()
			}
			params[0] = object.Handle(target)
			finalArgs = params
		default:
			return clrerrors.New(clrerrors.PhaseDelegate, clrerrors.KindExecutionEngine).
				Detail("delegate parameter-count mismatch: delegate=%d target=%d", delegateParamCount, targetParamCount).Build()
		}

		if err := targetMethod.InvokeMethodPtr(targetMethod.MethodPtr, targetMethod, finalArgs, scratch[:]); err != nil {
			return err
		}
	}

	if n := method.RetStackObjectSize / 8; n > 0 {
		copy(ret, scratch[:n])
	}
	return nil
}
