//go:build !linux
// +build !linux

package endpoint

import "errors"

// ErrUnsupported is returned by every operation on non-Linux platforms.
// The reactor's readiness contract (edge-triggered, one-shot,
// exclusive-wake) has no portable equivalent; see spec.md Non-goals.
var ErrUnsupported = errors.New("endpoint: unsupported platform, linux epoll required")

func Listen(port int, queuelen int) (int, error)      { return -1, ErrUnsupported }
func Accept(fd int) (int, error)                      { return -1, ErrUnsupported }
func Unblock(fd int) error                            { return ErrUnsupported }
func Read(fd int, buf []byte) (int, error)            { return 0, ErrUnsupported }
func ReadOOB(fd int, buf []byte) (int, error)          { return 0, ErrUnsupported }
func AtMark(fd int) (bool, error)                     { return false, ErrUnsupported }
func Write(fd int, buf []byte) (int, error)           { return 0, ErrUnsupported }
func Close(fd int) error                              { return ErrUnsupported }
func Socketpair() (a int, b int, err error)            { return -1, -1, ErrUnsupported }
