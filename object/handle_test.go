package object

import "testing"

func TestHandleNilIsZero(t *testing.T) {
	if Handle(nil) != 0 {
		t.Fatal("Handle(nil) must be 0")
	}
	if FromHandle(0) != nil {
		t.Fatal("FromHandle(0) must be nil")
	}
}

func TestHandleRoundTrips(t *testing.T) {
	obj := &RtObject{Kind: KindPlain}
	h := Handle(obj)
	if h == 0 {
		t.Fatal("Handle of a non-nil object must not be 0")
	}
	if got := FromHandle(h); got != obj {
		t.Fatal("FromHandle must resolve back to the original object")
	}
}

func TestHandleReuseAfterRelease(t *testing.T) {
	a := &RtObject{Kind: KindPlain}
	h := Handle(a)
	ReleaseHandle(h)
	b := &RtObject{Kind: KindPlain}
	h2 := Handle(b)
	if FromHandle(h2) != b {
		t.Fatal("a reused handle must resolve to the newest occupant")
	}
}
