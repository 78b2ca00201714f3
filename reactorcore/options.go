// File: reactorcore/options.go
package reactorcore

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nodalio/reactorcore/session"
)

// Option customizes a Pool before Run is first called.
type Option func(*Pool)

// WithWorkers overrides the client-handler goroutine count.
func WithWorkers(n int) Option {
	return func(p *Pool) { p.cfg.Workers = n }
}

// WithMaxClients overrides the slab capacity.
func WithMaxClients(n int) Option {
	return func(p *Pool) { p.cfg.MaxClients = n }
}

// WithAcceptQueueLen overrides the listen(2) backlog used by Bind.
func WithAcceptQueueLen(n int) Option {
	return func(p *Pool) { p.cfg.AcceptQueueLen = n }
}

// WithIdleTimeout overrides the inactivity timeout. Zero disables the
// reaper.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) { p.cfg.IdleTimeout = d }
}

// WithMaxEvents overrides the epoll_wait batch size.
func WithMaxEvents(n int) Option {
	return func(p *Pool) { p.cfg.MaxEvents = n }
}

// WithLogger attaches a zerolog logger; component sub-loggers are derived
// from it for clientpool/serverpool diagnostics (the reaper does not log).
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithAccepted registers the on-accept callback.
func WithAccepted(fn func(session.Session)) Option {
	return func(p *Pool) { p.cb.OnAccepted = fn }
}

// WithData registers the on-data callback.
func WithData(fn func(session.Session, []byte)) Option {
	return func(p *Pool) { p.cb.OnData = fn }
}

// WithOOB registers the on-out-of-band-byte callback.
func WithOOB(fn func(session.Session, byte)) Option {
	return func(p *Pool) { p.cb.OnOOB = fn }
}

// WithClosed registers the on-peer-closed callback.
func WithClosed(fn func(session.Session)) Option {
	return func(p *Pool) { p.cb.OnClosed = fn }
}

// WithError registers the on-error callback.
func WithError(fn func(session.Session)) Option {
	return func(p *Pool) { p.cb.OnError = fn }
}
