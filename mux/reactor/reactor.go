// File: mux/reactor/reactor.go
// Package reactor provides a small, platform-specific readiness-selection
// abstraction for the connection multiplexer's single event loop:
// register file descriptors once, then repeatedly ask which of them
// are ready to read within a bounded timeout.
package reactor

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms with no reactor
// implementation.
var ErrUnsupportedPlatform = errors.New("reactor: this platform is not supported")

// Reactor multiplexes readiness across a set of registered file
// descriptors. Implementations are not safe for concurrent use; the
// connection multiplexer owns a Reactor from a single goroutine, the
// event loop.
type Reactor interface {
	// Add registers fd for read-readiness notifications.
	Add(fd uintptr) error
	// Remove unregisters fd. It is a no-op if fd was never added.
	Remove(fd uintptr) error
	// Poll blocks up to timeoutMs for at least one registered fd to
	// become ready, returning the ready set. A timeout with no ready
	// fds returns (nil, nil), not an error.
	Poll(timeoutMs int) ([]uintptr, error)
	// Close releases the reactor's underlying OS handle.
	Close() error
}
