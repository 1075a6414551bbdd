package icall

import (
	"math"
	"testing"

	"github.com/clrvm/clrvm/object"
)

func TestGetParamIntegerKinds(t *testing.T) {
	slots := []uint64{0: 1, 1: ^uint64(0), 2: 42}
	if got := GetParam[bool](slots, 0); got != true {
		t.Fatalf("bool = %v", got)
	}
	if got := GetParam[int8](slots, 1); got != -1 {
		t.Fatalf("int8 = %v, want -1", got)
	}
	if got := GetParam[uint32](slots, 2); got != 42 {
		t.Fatalf("uint32 = %v, want 42", got)
	}
}

func TestGetParamFloats(t *testing.T) {
	slots := []uint64{math.Float64bits(3.5), uint64(math.Float32bits(2.5))}
	if got := GetParam[float64](slots, 0); got != 3.5 {
		t.Fatalf("float64 = %v", got)
	}
	if got := GetParam[float32](slots, 1); got != 2.5 {
		t.Fatalf("float32 = %v", got)
	}
}

func TestGetParamObjectHandle(t *testing.T) {
	obj := &object.RtObject{Kind: object.KindPlain}
	h := object.Handle(obj)
	defer object.ReleaseHandle(h)
	slots := []uint64{h}
	if got := GetParam[*object.RtObject](slots, 0); got != obj {
		t.Fatal("GetParam[*object.RtObject] must resolve the handle")
	}
}

func TestGetParamNilObjectHandle(t *testing.T) {
	slots := []uint64{0}
	if got := GetParam[*object.RtObject](slots, 0); got != nil {
		t.Fatalf("GetParam with a zero handle = %v, want nil", got)
	}
}

func TestSetReturnRoundTrip(t *testing.T) {
	ret := make([]uint64, 1)
	SetReturn[int32](ret, -7)
	if got := GetParam[int32](ret, 0); got != -7 {
		t.Fatalf("round trip int32 = %v, want -7", got)
	}

	SetReturn[float64](ret, 1.25)
	if got := GetParam[float64](ret, 0); got != 1.25 {
		t.Fatalf("round trip float64 = %v, want 1.25", got)
	}
}

func TestSetReturnObjectHandle(t *testing.T) {
	obj := &object.RtObject{Kind: object.KindPlain}
	ret := make([]uint64, 1)
	SetReturn[*object.RtObject](ret, obj)
	got := GetParam[*object.RtObject](ret, 0)
	if got != obj {
		t.Fatal("SetReturn/GetParam round trip for *object.RtObject failed")
	}
	object.ReleaseHandle(ret[0])
}

func TestSetReturnNilObjectIsZeroHandle(t *testing.T) {
	ret := make([]uint64, 1)
	SetReturn[*object.RtObject](ret, nil)
	if ret[0] != 0 {
		t.Fatalf("SetReturn(nil) slot = %d, want 0", ret[0])
	}
}

func TestGetParamUnsupportedTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("GetParam with an unsupported type must panic")
		}
	}()
	GetParam[struct{ X int }]([]uint64{0}, 0)
}
