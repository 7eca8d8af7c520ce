//go:build linux
// +build linux

// File: mux/reactor/reactor_linux.go
// Linux epoll(7)-based Reactor.

package reactor

import (
	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd int
	fds  map[int32]struct{}
}

// New constructs the Linux epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollReactor{epfd: epfd, fds: make(map[int32]struct{})}, nil
}

func (r *epollReactor) Add(fd uintptr) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &event); err != nil {
		return err
	}
	r.fds[int32(fd)] = struct{}{}
	return nil
}

func (r *epollReactor) Remove(fd uintptr) error {
	if _, ok := r.fds[int32(fd)]; !ok {
		return nil
	}
	delete(r.fds, int32(fd))
	// Events argument is ignored by EPOLL_CTL_DEL on recent kernels but
	// older kernels require a non-nil pointer.
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), &unix.EpollEvent{})
}

func (r *epollReactor) Poll(timeoutMs int) ([]uintptr, error) {
	events := make([]unix.EpollEvent, len(r.fds)+1)
	n, err := unix.EpollWait(r.epfd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]uintptr, n)
	for i := 0; i < n; i++ {
		ready[i] = uintptr(events[i].Fd)
	}
	return ready, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
