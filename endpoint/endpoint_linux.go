//go:build linux
// +build linux

// Package endpoint wraps the raw stream-socket operations the reactor and
// the pools build on: create, bind+listen, accept, non-blocking mode,
// read, read-out-of-band, write, close. Every function here is pure with
// respect to Go state — it only touches the kernel socket table — so the
// package carries no locks of its own.
package endpoint

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Listen creates a non-blocking, address-reusing TCP listening socket
// bound to the wildcard address on port and backlogged to queuelen.
func Listen(port int, queuelen int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind :%d: %w", port, err)
	}

	if err := unix.Listen(fd, queuelen); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen :%d: %w", port, err)
	}

	if err := Unblock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// Accept accepts one pending connection on the listening socket fd.
// It returns unix.EAGAIN, unwrapped, when the backlog is drained.
func Accept(fd int) (int, error) {
	cfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	return cfd, nil
}

// Unblock sets fd to non-blocking mode.
func Unblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// Read reads into buf, mirroring recv(2) semantics: 0, nil on orderly
// shutdown; -1 is never returned, errors (including EAGAIN) propagate as
// err so callers distinguish EAGAIN from a real error.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ReadOOB reads at most one byte of TCP urgent data, mirroring
// recv(fd, buf, 1, MSG_OOB). The caller is expected to first consult
// AtMark to decide whether urgent data is actually pending.
func ReadOOB(fd int, buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(fd, buf[:1], unix.MSG_OOB)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AtMark reports whether the socket's read pointer is at the urgent-data
// mark (SIOCATMARK), used to decide whether ReadOOB has anything to
// deliver without blocking on it.
func AtMark(fd int) (bool, error) {
	v, err := unix.IoctlGetInt(fd, unix.SIOCATMARK)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Write sends buf, returning the number of bytes actually written. Short
// writes are possible and are the caller's responsibility to handle; this
// package never loops internally.
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// Socketpair creates a connected pair of UNIX domain stream sockets, used
// by the reactor as the shutdown self-pipe.
func Socketpair() (a int, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, fmt.Errorf("socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}
