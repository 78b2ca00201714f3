// File: session/session.go
// Package session defines the ephemeral view over a connection slot that
// is passed to user callbacks.
//
// Grounded on fserv/client_session.hpp (original_source): a session is a
// borrowed (slot, uuid) pair whose lifetime is the callback invocation —
// callers must not stash it and dereference it later (spec.md §3, §9).
package session

import "github.com/nodalio/reactorcore/freelist"

// Ops is the minimal set of slot operations a session needs to expose
// Write/Rearm/Terminate without session importing clientpool (which would
// create an import cycle, since clientpool constructs Sessions).
type Ops interface {
	Write(slot *freelist.Slot, buf []byte) (int, error)
	Rearm(slot *freelist.Slot)
	Terminate(slot *freelist.Slot)
}

// Session is passed by value to on_accepted/on_data/on_oob/on_closed/
// on_error. Do not retain a Session past the callback that received it —
// the slot it wraps may already be back on the free-list, possibly
// serving a different connection under the same UUID, by the time the
// callback returns.
type Session struct {
	slot *freelist.Slot
	ops  Ops
}

// New constructs a Session view over slot. Only clientpool calls this.
func New(slot *freelist.Slot, ops Ops) Session {
	return Session{slot: slot, ops: ops}
}

// UUID returns the slot's stable identifier. It identifies the slot, not
// necessarily the connection: a slot reused after termination carries the
// same UUID for its next, unrelated connection (spec.md §3, §9).
func (s Session) UUID() int32 {
	return s.slot.UUID
}

// Write makes one synchronous send of buf on the connection's non-blocking
// socket, returning the number of bytes actually sent. It does not block,
// queue, or retry, so a short write or an EAGAIN error is possible and is
// the caller's responsibility (spec.md §1 Non-goals, §6).
func (s Session) Write(buf []byte) (int, error) {
	return s.ops.Write(s.slot, buf)
}

// Rearm re-arms the slot's one-shot registration so it resumes receiving
// events. Required after on_data/on_oob or the connection silently
// quiesces (spec.md §6 contracts).
func (s Session) Rearm() {
	s.ops.Rearm(s.slot)
}

// Terminate closes the connection and returns the slot to the free-list.
// Calling Terminate after Rearm is permitted (spec.md §6).
func (s Session) Terminate() {
	s.ops.Terminate(s.slot)
}
