package icall

import (
	"fmt"
	"math"

	"github.com/clrvm/clrvm/object"
)

// GetParam reads the i'th 8-byte stack slot of params as T: spec.md §6.1's
// get_param<T>(params, i). Integer and float kinds read their slot
// directly (sign/zero-extension and IEEE-754 bit patterns already match
// an 8-byte uint64 lane); bool treats any nonzero slot as true;
// *object.RtObject resolves the slot as a handle (object.FromHandle) since
// a raw managed reference never crosses the ABI as a pointer.
func GetParam[T any](params []uint64, i uint32) T {
	var zero T
	slot := params[i]
	switch any(zero).(type) {
	case bool:
		return any(slot != 0).(T)
	case int8:
		return any(int8(slot)).(T)
	case uint8:
		return any(uint8(slot)).(T)
	case int16:
		return any(int16(slot)).(T)
	case uint16:
		return any(uint16(slot)).(T)
	case int32:
		return any(int32(slot)).(T)
	case uint32:
		return any(uint32(slot)).(T)
	case int64:
		return any(int64(slot)).(T)
	case uint64:
		return any(slot).(T)
	case int:
		return any(int(int64(slot))).(T)
	case uintptr:
		return any(uintptr(slot)).(T)
	case float32:
		return any(math.Float32frombits(uint32(slot))).(T)
	case float64:
		return any(math.Float64frombits(slot)).(T)
	case *object.RtObject:
		return any(object.FromHandle(slot)).(T)
	default:
		panic(fmt.Sprintf("icall: GetParam: unsupported slot type %T", zero))
	}
}

// SetReturn writes value into ret's single return slot: spec.md §6.1's
// set_return(ret, value). A method with ret_stack_object_size 0 (void)
// must never call this — ret may be empty.
func SetReturn[T any](ret []uint64, value T) {
	switch v := any(value).(type) {
	case bool:
		ret[0] = boolSlot(v)
	case int8:
		ret[0] = uint64(int64(v))
	case uint8:
		ret[0] = uint64(v)
	case int16:
		ret[0] = uint64(int64(v))
	case uint16:
		ret[0] = uint64(v)
	case int32:
		ret[0] = uint64(int64(v))
	case uint32:
		ret[0] = uint64(v)
	case int64:
		ret[0] = uint64(v)
	case uint64:
		ret[0] = v
	case int:
		ret[0] = uint64(int64(v))
	case uintptr:
		ret[0] = uint64(v)
	case float32:
		ret[0] = uint64(math.Float32bits(v))
	case float64:
		ret[0] = math.Float64bits(v)
	case *object.RtObject:
		ret[0] = object.Handle(v)
	default:
		panic(fmt.Sprintf("icall: SetReturn: unsupported value type %T", value))
	}
}

func boolSlot(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
