// File: endpoint/doc.go
// Author grounding: fserv/endpoint.hpp (original_source), transport_linux.go
// (momentics/hioload-ws).
//
// The reactor's edge-triggered + one-shot + exclusive-wake contract is an
// epoll(7)-only concept, so this package (and reactor) only ship a Linux
// implementation; see spec.md's Non-goals ("portability beyond a
// readiness-notification facility with edge-triggered, one-shot, and
// exclusive-wake semantics").
package endpoint
