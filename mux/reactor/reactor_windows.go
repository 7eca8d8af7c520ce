//go:build windows
// +build windows

// File: mux/reactor/reactor_windows.go
// Windows Reactor backed by WSAPoll, the readiness-polling counterpart
// to epoll/select on this platform. WSAPoll's socket-handle-plus-timeout
// model fits the bounded-timeout readiness-wait loop this package needs.

package reactor

import (
	"golang.org/x/sys/windows"
)

type wsaPollReactor struct {
	fds map[windows.Handle]struct{}
}

// New constructs the Windows WSAPoll-backed Reactor.
func New() (Reactor, error) {
	return &wsaPollReactor{fds: make(map[windows.Handle]struct{})}, nil
}

func (r *wsaPollReactor) Add(fd uintptr) error {
	r.fds[windows.Handle(fd)] = struct{}{}
	return nil
}

func (r *wsaPollReactor) Remove(fd uintptr) error {
	delete(r.fds, windows.Handle(fd))
	return nil
}

func (r *wsaPollReactor) Poll(timeoutMs int) ([]uintptr, error) {
	if len(r.fds) == 0 {
		return nil, nil
	}
	pollFds := make([]windows.WSAPollFD, 0, len(r.fds))
	for fd := range r.fds {
		pollFds = append(pollFds, windows.WSAPollFD{Fd: fd, Events: windows.POLLRDNORM})
	}
	n, err := windows.WSAPoll(pollFds, int32(timeoutMs))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]uintptr, 0, n)
	for _, pfd := range pollFds {
		if pfd.Revents&(windows.POLLRDNORM|windows.POLLHUP|windows.POLLERR) != 0 {
			ready = append(ready, uintptr(pfd.Fd))
		}
	}
	return ready, nil
}

func (r *wsaPollReactor) Close() error {
	r.fds = nil
	return nil
}
