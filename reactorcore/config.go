// File: reactorcore/config.go
// Package reactorcore is the application façade: it wires freelist,
// reactor, reaper, clientpool, and serverpool into the single Pool type
// applications construct, configure via functional options, and run.
//
// Grounded on server/types.go and server/options.go (momentics/hioload-ws)
// for the Config+Option shape, and on fserv/basic_server.hpp
// (original_source) for the default worker/client-count/queue-length
// constants this façade reproduces (kMaxWorkerCount, kMaxClientCount,
// kQueueLen).
package reactorcore

import (
	"time"

	"github.com/nodalio/reactorcore/reactor"
)

// Config holds every tunable the façade exposes. Construct via
// DefaultConfig and override fields with Option functions passed to New.
type Config struct {
	// Workers is the client-handler goroutine count (fserv's
	// kMaxWorkerCount default of 1; most deployments want more).
	Workers int
	// MaxClients bounds the slab's capacity (fserv's kMaxClientCount).
	MaxClients int
	// AcceptQueueLen is the listen(2) backlog (fserv's kQueueLen).
	AcceptQueueLen int
	// IdleTimeout is the inactivity timeout before a connection is
	// reaped. Zero disables the reaper entirely.
	IdleTimeout time.Duration
	// MaxEvents is the epoll_wait batch size for both the client and
	// listener reactors.
	MaxEvents int
}

// DefaultConfig returns the façade's defaults, matching
// fserv/basic_server.hpp's constants where this library has a direct
// analogue.
func DefaultConfig() *Config {
	return &Config{
		Workers:        1,
		MaxClients:     100000,
		AcceptQueueLen: 1000,
		IdleTimeout:    0,
		MaxEvents:      reactor.DefaultMaxEvents,
	}
}
