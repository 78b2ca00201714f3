package freelist

import (
	"sync"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := New(4)
	seen := map[int32]bool{}
	var slots []*Slot
	for i := 0; i < s.Cap(); i++ {
		slot := s.Acquire()
		if slot == nil {
			t.Fatalf("Acquire returned nil before capacity exhausted (i=%d)", i)
		}
		if seen[slot.UUID] {
			t.Fatalf("UUID %d handed out twice", slot.UUID)
		}
		seen[slot.UUID] = true
		slots = append(slots, slot)
	}

	if got := s.Acquire(); got != nil {
		t.Fatalf("Acquire beyond capacity returned non-nil slot %d", got.UUID)
	}

	for _, slot := range slots {
		s.Release(slot)
	}

	for i := 0; i < s.Cap(); i++ {
		if s.Acquire() == nil {
			t.Fatalf("free-list did not refill after release (i=%d)", i)
		}
	}
}

func TestConcurrentAcquireReleaseNeverDuplicates(t *testing.T) {
	const capacity = 64
	const iterations = 2000
	s := New(capacity)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				slot := s.Acquire()
				if slot == nil {
					continue
				}
				s.Release(slot)
			}
		}()
	}
	wg.Wait()

	acquired := map[int32]bool{}
	for {
		slot := s.Acquire()
		if slot == nil {
			break
		}
		if acquired[slot.UUID] {
			t.Fatalf("UUID %d reachable from free-list more than once", slot.UUID)
		}
		acquired[slot.UUID] = true
	}
	if len(acquired) != s.Cap() {
		t.Fatalf("free-list settled with %d slots, want %d", len(acquired), s.Cap())
	}
}
