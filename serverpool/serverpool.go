// File: serverpool/serverpool.go
// Package serverpool implements the listener side of the connection plane:
// binding/adding listening sockets, accepting connections in a loop until
// EAGAIN (edge-triggered), and admitting them into a clientpool.Pool.
//
// Grounded on fserv/server_pool.hpp (original_source) for bind/add/
// run/stop/trigger, and on lowlevel/server/listener.go and
// lowlevel/server/run.go (momentics/hioload-ws) for the Go accept-loop and
// blocking-Run/Shutdown-channel idiom.
package serverpool

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/nodalio/reactorcore/clientpool"
	"github.com/nodalio/reactorcore/endpoint"
	"github.com/nodalio/reactorcore/reactor"
)

// ErrAlreadyRunning is returned by Run when the pool is already running.
var ErrAlreadyRunning = errors.New("serverpool: already running")

// listenerRecord is the epoll handler token for one bound listening
// socket. id is assigned by the pool (monotonically, simplifying the
// original's std::map<int, ServerSession, std::greater<>>'s "(max existing
// id)+1" scheme: since listeners are never individually removed from a
// running pool, a monotonic counter produces the same uniqueness
// guarantee with no scan).
type listenerRecord struct {
	id int
	fd int32
}

// Pool owns zero or more listening sockets and the single epoll instance
// multiplexing them; fserv::ServerPool's "server instance listens on only
// one thread" constraint is why Run blocks its caller instead of spawning
// its own worker goroutine.
type Pool struct {
	clients *clientpool.Pool
	mux     *reactor.Multiplexer
	log     zerolog.Logger

	mu        sync.Mutex
	listeners map[int]*listenerRecord
	nextID    int
	running   bool
}

// New constructs a Pool fronting clients. mux must be distinct from the
// Multiplexer clients' Pool uses: listener and client sockets are
// multiplexed on separate epoll instances, mirroring fserv::ServerPool
// embedding its own EpollWaiter alongside ClientPool's.
func New(clients *clientpool.Pool, mux *reactor.Multiplexer, log zerolog.Logger) *Pool {
	return &Pool{
		clients:   clients,
		mux:       mux,
		log:       log.With().Str("component", "serverpool").Logger(),
		listeners: make(map[int]*listenerRecord),
		nextID:    1,
	}
}

// Bind creates, binds, and registers a new listening socket on port,
// backlogged to queuelen.
func (p *Pool) Bind(port, queuelen int) error {
	fd, err := endpoint.Listen(port, queuelen)
	if err != nil {
		return err
	}
	if err := p.Add(int(fd)); err != nil {
		_ = endpoint.Close(fd)
		return err
	}
	return nil
}

// Add registers an already-bound, already-listening, non-blocking socket
// fd as a listener.
func (p *Pool) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	rec := &listenerRecord{id: id, fd: int32(fd)}

	if !p.mux.Add(rec, fd, reactor.ListenerFlags) {
		return errors.New("serverpool: failed to register listener with reactor")
	}

	p.listeners[id] = rec
	p.nextID++
	return nil
}

// Run starts the client pool's workers, then blocks the calling goroutine
// in this pool's own accept loop until Stop is called from elsewhere.
func (p *Pool) Run(workers int) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !p.clients.Run(workers) {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	return p.mux.Wait(p)
}

// Stop initiates the listener reactor's shutdown and then stops the
// client pool, mirroring fserv::ServerPool::stop's ordering.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if err := p.mux.Close(); err != nil {
		p.log.Error().Err(err).Msg("listener shutdown relay failed")
	}
	p.clients.Stop()
}

// Trigger implements reactor.Sink for listener readiness: on error/hang-up
// it closes the listener; otherwise it drains the accept backlog, handing
// each connection to the client pool for admission.
func (p *Pool) Trigger(h reactor.Handler, flags reactor.Flags) {
	rec, ok := h.(*listenerRecord)
	if !ok {
		return
	}

	if flags&(reactor.HangUp|reactor.Error) != 0 {
		_ = endpoint.Close(int(rec.fd))
		return
	}

	for {
		cfd, err := endpoint.Accept(int(rec.fd))
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				p.log.Error().Err(err).Int("listener", rec.id).Msg("accept failed")
			}
			return
		}

		if err := endpoint.Unblock(cfd); err != nil {
			_ = endpoint.Close(cfd)
			continue
		}

		if !p.clients.AddClient(int32(cfd)) {
			p.log.Warn().Int("listener", rec.id).Msg("admission control: free-list exhausted, connection dropped")
		}
	}
}
