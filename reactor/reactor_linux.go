//go:build linux
// +build linux

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nodalio/reactorcore/endpoint"
	"golang.org/x/sys/unix"
)

// Multiplexer wraps one epoll instance. It is safe for concurrent use by
// every worker that calls Wait, and for Add/Rearm/Remove calls racing
// against those workers — epoll's own registration table is internally
// synchronized (spec.md §5), and the handler lookup table below uses a
// sync.Map for the same reason.
type Multiplexer struct {
	epfd int

	handlers sync.Map // map[int]Handler, keyed by fd

	selfpipeRead  int // registered with epoll; daisy-chain reads from here
	selfpipeWrite int // close() writes the shutdown token here

	maxEvents int

	// waiting counts workers currently blocked in Wait; it is the daisy
	// chain's relay counter (fserv::EpollWaiter::instance_count_).
	waiting atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

// New creates a Multiplexer with the given epoll_wait batch size. It also
// creates and registers the shutdown self-pipe once, matching
// fserv::EpollWaiter's constructor.
func New(maxEvents int) (*Multiplexer, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	r, w, err := endpoint.Socketpair()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	m := &Multiplexer{
		epfd:          epfd,
		selfpipeRead:  r,
		selfpipeWrite: w,
		maxEvents:     maxEvents,
	}

	ev := &unix.EpollEvent{
		Events: toEpoll(Readable | EdgeTriggered | OneShot),
		Fd:     int32(r),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, r, ev); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(r)
		_ = unix.Close(w)
		return nil, fmt.Errorf("epoll_ctl add selfpipe: %w", err)
	}

	return m, nil
}

func toEpoll(f Flags) uint32 {
	var e uint32
	if f&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if f&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	if f&HangUp != 0 {
		e |= unix.EPOLLHUP
	}
	if f&PeerHangUp != 0 {
		e |= unix.EPOLLRDHUP
	}
	if f&Priority != 0 {
		e |= unix.EPOLLPRI
	}
	if f&EdgeTriggered != 0 {
		e |= unix.EPOLLET
	}
	if f&OneShot != 0 {
		e |= unix.EPOLLONESHOT
	}
	if f&ExclusiveWake != 0 {
		e |= unix.EPOLLEXCLUSIVE
	}
	return e
}

func fromEpoll(e uint32) Flags {
	var f Flags
	if e&unix.EPOLLIN != 0 {
		f |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		f |= Writable
	}
	if e&unix.EPOLLHUP != 0 {
		f |= HangUp
	}
	if e&unix.EPOLLRDHUP != 0 {
		f |= PeerHangUp
	}
	if e&unix.EPOLLPRI != 0 {
		f |= Priority
	}
	if e&unix.EPOLLERR != 0 {
		f |= Error
	}
	return f
}

// Add registers fd for the given flags with handler h as its delivery
// token. Returns false on failure; the caller (client pool / server pool)
// is responsible for the fallout spec.md §7 kind 3 describes.
func (m *Multiplexer) Add(h Handler, fd int, flags Flags) bool {
	ev := &unix.EpollEvent{Events: toEpoll(flags), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return false
	}
	m.handlers.Store(fd, h)
	return true
}

// Rearm re-registers fd as one-shot, the mandatory step after every
// delivery (spec.md §4.2, §6 contracts).
func (m *Multiplexer) Rearm(h Handler, fd int, flags Flags) bool {
	ev := &unix.EpollEvent{Events: toEpoll(flags), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return false
	}
	m.handlers.Store(fd, h)
	return true
}

// Remove de-registers fd. Infallible from the caller's perspective: a
// failure here means the fd is already gone from epoll's table, which is
// the state the caller wanted anyway.
func (m *Multiplexer) Remove(fd int) bool {
	err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	m.handlers.Delete(fd)
	return err == nil
}

// Wait runs one worker loop on the calling goroutine (it does not lock the
// goroutine to an OS thread) and dispatches every readiness event to sink
// until the shutdown token reaches this worker.
//
// It polls epoll_wait with a zero timeout rather than blocking
// indefinitely, matching fserv::EpollWaiter::wait's literal
// epoll_wait(epfd, events, max_events, 0) busy-poll (epoll.hpp:177) and
// spec.md §4.2's "repeatedly polls with a zero timeout" wording exactly.
func (m *Multiplexer) Wait(sink Sink) error {
	m.waiting.Add(1)

	events := make([]unix.EpollEvent, m.maxEvents)
	for {
		n, err := unix.EpollWait(m.epfd, events, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		shuttingDown := false
		for i := 0; i < n; i++ {
			ev := events[i]
			if int(ev.Fd) == m.selfpipeRead {
				var b [1]byte
				_, _ = unix.Read(m.selfpipeRead, b[:])

				if remaining := m.waiting.Add(-1); remaining > 0 {
					if err := m.relay(); err != nil {
						return err
					}
				}
				shuttingDown = true
				break
			}

			val, ok := m.handlers.Load(int(ev.Fd))
			if !ok {
				continue
			}
			sink.Trigger(val, fromEpoll(ev.Events))
		}

		if shuttingDown {
			return nil
		}
	}
}

// Close initiates the daisy-chain shutdown: re-arm the self-pipe
// registration and write one token byte. Exactly one worker consumes the
// token per write; that worker relays it to the next if others remain
// waiting (spec.md §4.2's shutdown protocol invariant).
func (m *Multiplexer) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.relay()
	})
	return m.closeErr
}

func (m *Multiplexer) relay() error {
	ev := &unix.EpollEvent{
		Events: toEpoll(Readable | EdgeTriggered | OneShot),
		Fd:     int32(m.selfpipeRead),
	}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, m.selfpipeRead, ev); err != nil {
		// Failing to rearm the shutdown pipe is fatal: the library can no
		// longer guarantee every worker joins (spec.md §7 kind 7).
		return fmt.Errorf("reactor: failed to rearm shutdown pipe: %w", err)
	}

	var b [1]byte
	if _, err := unix.Write(m.selfpipeWrite, b[:]); err != nil {
		return fmt.Errorf("reactor: failed to write shutdown token: %w", err)
	}
	return nil
}

// Destroy releases the epoll fd and the self-pipe. Must only be called
// after every Wait call has returned.
func (m *Multiplexer) Destroy() error {
	_ = unix.Close(m.selfpipeRead)
	_ = unix.Close(m.selfpipeWrite)
	return unix.Close(m.epfd)
}
