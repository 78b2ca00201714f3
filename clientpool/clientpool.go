// File: clientpool/clientpool.go
// Package clientpool implements the per-connection state machine: it owns
// the slab free-list, registers accepted sockets with a reactor
// multiplexer, drains readiness events in epoll priority order, and
// dispatches to the caller's optional callbacks.
//
// Grounded on fserv/client_pool.hpp (original_source) for add_client,
// trigger, rearm, terminate/terminate_on_close/terminate_on_error, and on
// lowlevel/server/run.go (momentics/hioload-ws) for the worker-goroutine
// run/stop shape.
package clientpool

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/nodalio/reactorcore/endpoint"
	"github.com/nodalio/reactorcore/freelist"
	"github.com/nodalio/reactorcore/reactor"
	"github.com/nodalio/reactorcore/reaper"
	"github.com/nodalio/reactorcore/session"
)

// Callbacks holds the optional per-event hooks. A nil field is simply
// skipped, the Go equivalent of the original's SFINAE enable_client_*
// mixins: a sink that never defines on_oob_received pays nothing for it.
type Callbacks struct {
	OnAccepted func(session.Session)
	OnData     func(session.Session, []byte)
	OnOOB      func(session.Session, byte)
	OnClosed   func(session.Session)
	OnError    func(session.Session)
}

// Pool owns a fixed-capacity slab of connection slots and the worker
// goroutines that drain their readiness events.
type Pool struct {
	slab *freelist.Slab
	mux  *reactor.Multiplexer
	reap *reaper.Reaper
	cb   *Callbacks
	log  zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New constructs a Pool. mux must not yet be shared with any other
// running pool's worker loop. cb may be nil (no callbacks at all) or have
// any subset of its fields set.
func New(slab *freelist.Slab, mux *reactor.Multiplexer, reap *reaper.Reaper, cb *Callbacks, log zerolog.Logger) *Pool {
	if cb == nil {
		cb = &Callbacks{}
	}
	return &Pool{
		slab: slab,
		mux:  mux,
		reap: reap,
		cb:   cb,
		log:  log.With().Str("component", "clientpool").Logger(),
	}
}

// Run starts worker goroutines, one per entry in workers, each blocking in
// the reactor's Wait loop (spec.md §5's thread-per-worker model). A no-op,
// returning false, if already running.
func (p *Pool) Run(workers int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true

	if p.reap != nil {
		p.reap.Run()
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.mux.Wait(p); err != nil {
				p.log.Error().Err(err).Msg("worker exited")
			}
		}()
	}
	return true
}

// Stop joins every worker via the reactor's daisy-chain shutdown, then
// force-terminates every slot still live in the slab, mirroring
// fserv::ClientPool::stop's "reset active clients" pass.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	if p.reap != nil {
		p.reap.Stop()
	}
	if err := p.mux.Close(); err != nil {
		p.log.Error().Err(err).Msg("shutdown relay failed")
	}
	p.wg.Wait()

	slots := p.slab.Slots()
	for i := range slots {
		p.terminate(&slots[i])
	}

	p.running = false
}

// AddClient hands an accepted, non-blocking socket fd to the pool. It
// returns false — closing fd itself — when the slab's free-list is
// exhausted, the admission-control path spec.md's server pool integration
// requires.
func (p *Pool) AddClient(fd int32) bool {
	slot := p.slab.Acquire()
	if slot == nil {
		_ = endpoint.Close(int(fd))
		return false
	}

	slot.FD = fd

	if p.cb.OnAccepted != nil {
		p.cb.OnAccepted(session.New(slot, p))
	}

	if !p.mux.Add(slot, int(fd), reactor.ClientFlags) {
		p.terminate(slot)
		return false
	}

	if p.reap != nil {
		p.reap.Set(slot.UUID)
	}

	return true
}

// ReapCallback is the reaper sink: it closes every slot named by uuids via
// the same path as a peer hang-up, notifying OnClosed. Slots already dead
// (terminated by a racing worker between the reaper's scan and this call)
// are silently skipped via terminateOnClose's FD == 0 guard, matching
// spec.md §9's DEAD-idempotence requirement.
func (p *Pool) ReapCallback(uuids []int32) {
	slots := p.slab.Slots()
	for _, uuid := range uuids {
		if uuid < 0 || int(uuid) >= len(slots) {
			continue
		}
		p.terminateOnClose(&slots[uuid])
	}
}

// Trigger implements reactor.Sink. It reproduces
// fserv::ClientPool::trigger's dispatch order exactly: error first, then
// hang-up/peer-hang-up, then priority (OOB) data, then regular data.
func (p *Pool) Trigger(h reactor.Handler, flags reactor.Flags) {
	slot, ok := h.(*freelist.Slot)
	if !ok {
		return
	}

	if flags&reactor.Error != 0 {
		p.terminateOnError(slot)
		return
	}

	if flags&(reactor.HangUp|reactor.PeerHangUp) != 0 {
		p.terminateOnClose(slot)
		return
	}

	if flags&reactor.Priority != 0 {
		if p.reap != nil {
			p.reap.Set(slot.UUID)
		}
		p.drainOOB(slot)
	}

	if flags&reactor.Readable != 0 {
		if p.reap != nil {
			p.reap.Set(slot.UUID)
		}
		p.drainData(slot)
	}
}

// drainData loops Read until EAGAIN (edge-triggered sockets deliver
// readiness once per transition, so every byte available must be drained
// before returning), dispatching each chunk to OnData.
func (p *Pool) drainData(slot *freelist.Slot) {
	for {
		n, err := endpoint.Read(int(slot.FD), slot.Buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			p.terminateOnError(slot)
			return
		}
		if n == 0 {
			p.terminateOnClose(slot)
			return
		}
		if p.cb.OnData != nil {
			p.cb.OnData(session.New(slot, p), slot.Buf[:n])
		}
	}
}

// drainOOB mirrors fserv::BasicClient::read_oob's SIOCATMARK gate: consult
// AtMark before every read, exactly as spec.md §4.3 point 3 requires. A
// non-transient AtMark error is DEAD-by-error; mark == false means nothing
// urgent is pending, so the loop breaks without delivering; only mark ==
// true is followed by an actual ReadOOB, then the loop re-checks the mark.
func (p *Pool) drainOOB(slot *freelist.Slot) {
	var b [1]byte
	for {
		atMark, err := endpoint.AtMark(int(slot.FD))
		if err != nil {
			p.terminateOnError(slot)
			return
		}
		if !atMark {
			return
		}

		n, err := endpoint.ReadOOB(int(slot.FD), b[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			p.terminateOnError(slot)
			return
		}
		if n == 0 {
			return
		}
		if p.cb.OnOOB != nil {
			p.cb.OnOOB(session.New(slot, p), b[0])
		}
	}
}

// terminateOnClose closes slot's socket, notifies OnClosed, then returns
// slot to the free-list. Safe to call on an already-dead slot (FD == 0):
// it is then a no-op.
func (p *Pool) terminateOnClose(slot *freelist.Slot) {
	if slot.FD == 0 {
		return
	}
	fd := slot.FD
	p.mux.Remove(int(fd))
	_ = endpoint.Close(int(fd))
	slot.FD = 0
	if p.reap != nil {
		p.reap.Unset(slot.UUID)
	}
	if p.cb.OnClosed != nil {
		p.cb.OnClosed(session.New(slot, p))
	}
	p.slab.Release(slot)
}

// terminateOnError closes slot's socket, notifies OnError, then returns
// slot to the free-list. Safe to call on an already-dead slot (FD == 0):
// it is then a no-op.
func (p *Pool) terminateOnError(slot *freelist.Slot) {
	if slot.FD == 0 {
		return
	}
	fd := slot.FD
	p.mux.Remove(int(fd))
	_ = endpoint.Close(int(fd))
	slot.FD = 0
	if p.reap != nil {
		p.reap.Unset(slot.UUID)
	}
	if p.cb.OnError != nil {
		p.cb.OnError(session.New(slot, p))
	}
	p.slab.Release(slot)
}

// terminate closes and frees slot without invoking any callback, matching
// the original's silent public terminate() used for Session.Terminate and
// Stop's final sweep. Idempotent via the FD == 0 check.
func (p *Pool) terminate(slot *freelist.Slot) {
	if slot.FD == 0 {
		return
	}
	fd := slot.FD
	p.mux.Remove(int(fd))
	_ = endpoint.Close(int(fd))
	slot.FD = 0
	if p.reap != nil {
		p.reap.Unset(slot.UUID)
	}
	p.slab.Release(slot)
}

// Write implements session.Ops.
func (p *Pool) Write(slot *freelist.Slot, buf []byte) (int, error) {
	return endpoint.Write(int(slot.FD), buf)
}

// Rearm implements session.Ops: re-registers slot's fd as one-shot so it
// resumes receiving readiness events. Callers must invoke this from
// within OnData/OnOOB or the connection silently quiesces.
func (p *Pool) Rearm(slot *freelist.Slot) {
	p.mux.Rearm(slot, int(slot.FD), reactor.ClientFlags)
}

// Terminate implements session.Ops.
func (p *Pool) Terminate(slot *freelist.Slot) {
	p.terminate(slot)
}
