//go:build linux
// +build linux

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/nodalio/reactorcore/endpoint"
)

type recordingSink struct {
	mu      sync.Mutex
	seen    []Flags
	trigger chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{trigger: make(chan struct{}, 16)}
}

func (r *recordingSink) Trigger(h Handler, flags Flags) {
	r.mu.Lock()
	r.seen = append(r.seen, flags)
	r.mu.Unlock()
	r.trigger <- struct{}{}
}

func TestAddDeliversReadableAndRearmRepeats(t *testing.T) {
	m, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, b, err := endpoint.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer endpoint.Close(a)
	defer endpoint.Close(b)

	sink := newRecordingSink()
	handle := new(int)
	if !m.Add(handle, a, Readable|EdgeTriggered|OneShot) {
		t.Fatal("Add failed")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(sink) }()

	if _, err := endpoint.Write(b, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-sink.trigger:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never triggered")
	}

	// One-shot means a second write without Rearm delivers nothing new.
	if _, err := endpoint.Write(b, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-sink.trigger:
		t.Fatal("one-shot registration fired again without Rearm")
	case <-time.After(200 * time.Millisecond):
	}

	if !m.Rearm(handle, a, Readable|EdgeTriggered|OneShot) {
		t.Fatal("Rearm failed")
	}
	select {
	case <-sink.trigger:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never triggered after rearm")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never returned after Close")
	}

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestShutdownDaisyChainJoinsAllWorkers(t *testing.T) {
	m, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const workers = 4
	sink := newRecordingSink()
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() { done <- m.Wait(sink) }()
	}

	// Let every worker reach epoll_wait before closing.
	time.Sleep(100 * time.Millisecond)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for i := 0; i < workers; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("worker %d returned error: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("worker %d never joined", i)
		}
	}

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestRemoveStopsDelivery(t *testing.T) {
	m, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, b, err := endpoint.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer endpoint.Close(a)
	defer endpoint.Close(b)

	sink := newRecordingSink()
	handle := new(int)
	if !m.Add(handle, a, Readable|EdgeTriggered|OneShot) {
		t.Fatal("Add failed")
	}
	if !m.Remove(a) {
		t.Fatal("Remove failed")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(sink) }()

	if _, err := endpoint.Write(b, []byte("z")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-sink.trigger:
		t.Fatal("removed fd still delivered an event")
	case <-time.After(200 * time.Millisecond):
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
	_ = m.Destroy()
}
