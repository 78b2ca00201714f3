// File: reactor/reactor.go
// Package reactor wraps a Linux epoll instance into the readiness
// multiplexer spec.md §4.2 describes: edge-triggered, one-shot-per-
// registration, exclusive-wake-capable, with a self-pipe shutdown
// protocol that daisy-chains across every blocked worker.
//
// Grounded on reactor/epoll_reactor.go and reactor/reactor_linux.go
// (momentics/hioload-ws) for the Go epoll idiom, and on fserv/epoll.hpp
// (original_source) for the exact wait-loop and shutdown contract this
// package must reproduce.
package reactor

import "errors"

// Flags mirror epoll(7) event bits the multiplexer understands. Callers
// never see raw epoll constants; Flags is the package's own vocabulary so
// reactor stays the single place that knows about Linux event numbers.
type Flags uint32

const (
	Readable Flags = 1 << iota
	Writable
	HangUp
	PeerHangUp
	Priority
	Error
	EdgeTriggered
	OneShot
	ExclusiveWake
)

// ClientFlags is the fixed registration flag set §4.3 specifies for a
// live connection slot.
const ClientFlags = Readable | EdgeTriggered | HangUp | PeerHangUp | Priority | OneShot

// ListenerFlags is the fixed registration flag set §4.4 specifies for a
// listening socket: exclusive-wake is critical so a listener readiness
// event rouses exactly one worker.
const ListenerFlags = Readable | EdgeTriggered | ExclusiveWake

// Handler is the per-fd context the multiplexer hands back on delivery.
// It is an opaque token from the reactor's point of view (it is a
// pointer to the caller's *freelist.Slot or listener record); the
// reactor's job is only to carry it through epoll_data and hand it back.
type Handler = any

// Sink receives readiness events from Wait. Implementations are
// ClientPool or ServerPool; Trigger must not block the reactor goroutine
// for longer than processing that one connection's readiness requires,
// since one-shot registration already serializes per-slot delivery.
type Sink interface {
	Trigger(h Handler, flags Flags)
}

// ErrClosed names the closed-multiplexer condition. Add, Rearm and Remove
// report failure with a false result and do not return it.
var ErrClosed = errors.New("reactor: closed")

// DefaultMaxEvents is the default epoll_wait batch size (spec.md §4.2).
const DefaultMaxEvents = 65536
