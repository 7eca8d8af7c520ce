//go:build !linux && !windows
// +build !linux,!windows

// File: mux/reactor/reactor_other.go
// unix.Select-based fallback Reactor for non-Linux Unix platforms
// (darwin, the BSDs).

package reactor

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdSetBit/fdSetIsSet operate on unix.FdSet generically across the
// BSD-family GOOS variants, whose Bits element width (32 or 64 bits)
// differs by platform.
func fdSetWordBits() int { return int(unsafe.Sizeof(unix.FdSet{}.Bits[0])) * 8 }

func fdSetBit(set *unix.FdSet, fd int) {
	bits := fdSetWordBits()
	set.Bits[fd/bits] |= 1 << (uint(fd) % uint(bits))
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	bits := fdSetWordBits()
	return set.Bits[fd/bits]&(1<<(uint(fd)%uint(bits))) != 0
}

type selectReactor struct {
	fds map[int]struct{}
}

// New constructs the select(2)-backed fallback Reactor.
func New() (Reactor, error) {
	return &selectReactor{fds: make(map[int]struct{})}, nil
}

func (r *selectReactor) Add(fd uintptr) error {
	r.fds[int(fd)] = struct{}{}
	return nil
}

func (r *selectReactor) Remove(fd uintptr) error {
	delete(r.fds, int(fd))
	return nil
}

func (r *selectReactor) Poll(timeoutMs int) ([]uintptr, error) {
	if len(r.fds) == 0 {
		return nil, nil
	}
	var set unix.FdSet
	maxFd := 0
	for fd := range r.fds {
		fdSetBit(&set, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}
	tv := unix.NsecToTimeval(time.Duration(timeoutMs * int(time.Millisecond)).Nanoseconds())
	n, err := unix.Select(maxFd+1, &set, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]uintptr, 0, n)
	for fd := range r.fds {
		if fdSetIsSet(&set, fd) {
			ready = append(ready, uintptr(fd))
		}
	}
	return ready, nil
}

func (r *selectReactor) Close() error {
	r.fds = nil
	return nil
}
