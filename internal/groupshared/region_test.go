package groupshared

import "testing"

func TestRegion16_Bounds(t *testing.T) {
	s := New()
	r := s.Region16("hist", 10, 4)

	r.Store(3, 7)
	if got := s.Load16(13, 0); got != 7 {
		t.Errorf("slot 13 = %d, want 7", got)
	}
	if prev := r.Add(3, 1); prev != 7 {
		t.Errorf("Add = %d, want 7", prev)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for index past region end")
		}
	}()
	r.Load(4)
}

func TestRegion16_ConstructionPastCapacityPanics(t *testing.T) {
	s := New()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for region past capacity")
		}
	}()
	s.Region16("too big", Slots16-2, 3)
}

func TestRegion8_Len(t *testing.T) {
	s := New()
	r := s.Region8("dir", 0, 32)
	if r.Len() != 64 {
		t.Errorf("Len() = %d, want 64", r.Len())
	}
	r.Store(63, 0x5A)
	if got := s.Load16(31, 0); got != 0x5A00 {
		t.Errorf("slot 31 = %#x, want 0x5a00", got)
	}
}

func TestSplitRegion16_Resolve(t *testing.T) {
	s := New()
	first := s.Region16("a", 0, 4)
	second := s.Region16("b", 100, 8)
	r := Split(first, second)

	if r.Len() != 12 {
		t.Fatalf("Len() = %d, want 12", r.Len())
	}

	tests := []struct {
		logical int
		slot    int
	}{
		{0, 0},
		{3, 3},
		{4, 100},
		{11, 107},
	}
	for _, tt := range tests {
		if got := r.Slot(tt.logical); got != tt.slot {
			t.Errorf("Slot(%d) = %d, want %d", tt.logical, got, tt.slot)
		}
	}

	for i := range r.Len() {
		r.Store(i, uint32(i+1))
	}
	for i := range r.Len() {
		if got := r.Load(i); got != uint32(i+1) {
			t.Errorf("Load(%d) = %d, want %d", i, got, i+1)
		}
	}
	if got := s.Load16(4, 0); got != 0 {
		t.Errorf("slot 4 between segments = %d, want untouched 0", got)
	}
}
