package frame

import "testing"

func TestNewStackAppliesDefaults(t *testing.T) {
	s, err := NewStack(0, 0)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()
	if len(s.Eval) != DefaultEvalStackSlots {
		t.Fatalf("len(Eval) = %d, want %d", len(s.Eval), DefaultEvalStackSlots)
	}
	if len(s.Frames) != DefaultFrameStackDepth {
		t.Fatalf("len(Frames) = %d, want %d", len(s.Frames), DefaultFrameStackDepth)
	}
}

func TestAllocEvalSlotsAdvancesTop(t *testing.T) {
	s, err := NewStack(16, 4)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	base, err := s.allocEvalSlots(10)
	if err != nil {
		t.Fatalf("allocEvalSlots: %v", err)
	}
	if base != 0 || s.EvalTop != 10 {
		t.Fatalf("base=%d EvalTop=%d, want base=0 EvalTop=10", base, s.EvalTop)
	}
}

func TestAllocEvalSlotsOverflow(t *testing.T) {
	s, err := NewStack(8, 4)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	if _, err := s.allocEvalSlots(9); err == nil {
		t.Fatal("expected StackOverflow allocating more slots than the stack holds")
	}
}

func TestFreeFrameRestoresEvalTopAndAssertsMatch(t *testing.T) {
	s, err := NewStack(16, 4)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	oldEvalTop := s.EvalTop
	frame, err := s.allocFrame()
	if err != nil {
		t.Fatalf("allocFrame: %v", err)
	}
	frame.OldEvalStackTop = oldEvalTop
	s.EvalTop = 5

	if err := s.FreeFrame(oldEvalTop); err != nil {
		t.Fatalf("FreeFrame: %v", err)
	}
	if s.FrameTop != 0 {
		t.Fatalf("FrameTop = %d, want 0", s.FrameTop)
	}
	if s.EvalTop != oldEvalTop {
		t.Fatalf("EvalTop = %d, want %d", s.EvalTop, oldEvalTop)
	}
}

func TestFreeFrameMismatchFails(t *testing.T) {
	s, err := NewStack(16, 4)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	frame, err := s.allocFrame()
	if err != nil {
		t.Fatalf("allocFrame: %v", err)
	}
	frame.OldEvalStackTop = 3
	if err := s.FreeFrame(99); err == nil {
		t.Fatal("expected an error when oldEvalStackTop doesn't match the frame's recorded value")
	}
}

func TestFreeFrameOnEmptyStackFails(t *testing.T) {
	s, err := NewStack(16, 4)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	if err := s.FreeFrame(0); err == nil {
		t.Fatal("expected an error freeing a frame off an empty frame stack")
	}
}

func TestAllocFrameOverflow(t *testing.T) {
	s, err := NewStack(16, 1)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer s.Close()

	if _, err := s.allocFrame(); err != nil {
		t.Fatalf("first allocFrame: %v", err)
	}
	if _, err := s.allocFrame(); err == nil {
		t.Fatal("expected StackOverflow allocating past frame-depth capacity")
	}
}
