// File: reactorcore/reactorcore.go
package reactorcore

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nodalio/reactorcore/clientpool"
	"github.com/nodalio/reactorcore/freelist"
	"github.com/nodalio/reactorcore/reactor"
	"github.com/nodalio/reactorcore/reaper"
	"github.com/nodalio/reactorcore/serverpool"
	"github.com/nodalio/reactorcore/session"
)

// Pool is the application façade wiring every subsystem (free-list,
// reactor, reaper, client pool, server pool) behind a single handle, the
// way fserv::BasicServer composes a ServerPool in original_source.
type Pool struct {
	cfg *Config
	cb  *clientpool.Callbacks
	log zerolog.Logger

	slab    *freelist.Slab
	reap    *reaper.Reaper
	clients *clientpool.Pool
	servers *serverpool.Pool

	active atomic.Int64
}

// New builds a Pool from Config defaults plus the given Options. It
// allocates the slab and both epoll instances (client and listener) up
// front, matching fserv::ServerPool/ClientPool's eagerly-constructed
// EpollWaiter members — only Run starts worker goroutines and the accept
// loop.
func New(opts ...Option) (*Pool, error) {
	p := &Pool{
		cfg: DefaultConfig(),
		cb:  &clientpool.Callbacks{},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.slab = freelist.New(p.cfg.MaxClients)

	clientMux, err := reactor.New(p.cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("reactorcore: client reactor: %w", err)
	}
	listenerMux, err := reactor.New(p.cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("reactorcore: listener reactor: %w", err)
	}

	var clients *clientpool.Pool
	var reap *reaper.Reaper
	if p.cfg.IdleTimeout > 0 {
		reap = reaper.New(p.cfg.IdleTimeout, func(uuids []int32) {
			clients.ReapCallback(uuids)
		})
	}

	clients = clientpool.New(p.slab, clientMux, reap, p.wrapCallbacks(), p.log)

	p.reap = reap
	p.clients = clients
	p.servers = serverpool.New(clients, listenerMux, p.log)

	return p, nil
}

// wrapCallbacks layers the ActiveConnections counter around the caller's
// own callbacks (SPEC_FULL.md §8's supplemented feature: original_source has
// no equivalent counter, so this is new, not a translation).
func (p *Pool) wrapCallbacks() *clientpool.Callbacks {
	return &clientpool.Callbacks{
		OnAccepted: func(s session.Session) {
			p.active.Add(1)
			if p.cb.OnAccepted != nil {
				p.cb.OnAccepted(s)
			}
		},
		OnData: func(s session.Session, b []byte) {
			if p.cb.OnData != nil {
				p.cb.OnData(s, b)
			}
		},
		OnOOB: func(s session.Session, b byte) {
			if p.cb.OnOOB != nil {
				p.cb.OnOOB(s, b)
			}
		},
		OnClosed: func(s session.Session) {
			p.active.Add(-1)
			if p.cb.OnClosed != nil {
				p.cb.OnClosed(s)
			}
		},
		OnError: func(s session.Session) {
			p.active.Add(-1)
			if p.cb.OnError != nil {
				p.cb.OnError(s)
			}
		},
	}
}

// Bind creates a listening socket on port using Config.AcceptQueueLen as
// the backlog.
func (p *Pool) Bind(port int) error {
	return p.servers.Bind(port, p.cfg.AcceptQueueLen)
}

// BindQueuelen creates a listening socket on port with an explicit
// backlog, overriding Config.AcceptQueueLen for this one listener.
func (p *Pool) BindQueuelen(port, queuelen int) error {
	return p.servers.Bind(port, queuelen)
}

// Add registers an already-bound, already-listening, non-blocking socket
// fd as an additional listener.
func (p *Pool) Add(fd int) error {
	return p.servers.Add(fd)
}

// Run starts Config.Workers client-handler goroutines and blocks the
// calling goroutine accepting connections until Stop is called from
// another goroutine.
func (p *Pool) Run() error {
	return p.servers.Run(p.cfg.Workers)
}

// Stop ends the accept loop, stops the reaper and every client worker, and
// returns once those workers have joined. Listening sockets are not
// closed.
func (p *Pool) Stop() {
	p.servers.Stop()
}

// ActiveConnections returns the current count of live connections (those
// between OnAccepted and OnClosed/OnError). Connections ended by
// Session.Terminate, by Stop's final sweep, or by a failed registration
// after OnAccepted fire neither callback and are not subtracted.
func (p *Pool) ActiveConnections() int64 {
	return p.active.Load()
}
