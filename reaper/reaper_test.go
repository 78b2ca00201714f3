package reaper

import (
	"sync"
	"testing"
	"time"
)

func TestSetThenExpireDeliversBatch(t *testing.T) {
	var mu sync.Mutex
	var got []int32
	done := make(chan struct{})

	r := New(30*time.Millisecond, func(uuids []int32) {
		mu.Lock()
		got = append(got, uuids...)
		mu.Unlock()
		select {
		case <-done:
		default:
			close(done)
		}
	})
	r.Run()
	defer r.Stop()

	r.Set(1)
	r.Set(2)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never delivered a batch")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d expired uuids, want 2 (%v)", len(got), got)
	}
	seen := map[int32]bool{}
	for _, u := range got {
		seen[u] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expired batch missing an expected uuid: %v", got)
	}
}

func TestUnsetPreventsExpiry(t *testing.T) {
	var mu sync.Mutex
	var got []int32

	r := New(30*time.Millisecond, func(uuids []int32) {
		mu.Lock()
		got = append(got, uuids...)
		mu.Unlock()
	})
	r.Run()
	defer r.Stop()

	r.Set(7)
	r.Unset(7)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, u := range got {
		if u == 7 {
			t.Fatalf("uuid 7 was unset but still reported expired: %v", got)
		}
	}
}

func TestZeroTimeoutDisablesReaper(t *testing.T) {
	called := false
	r := New(0, func(uuids []int32) { called = true })
	r.Run()
	r.Set(1)
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	if called {
		t.Fatal("sink invoked despite zero timeout disabling the reaper")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := New(10*time.Millisecond, func(uuids []int32) {})
	r.Run()
	r.Stop()
	r.Stop()
}
