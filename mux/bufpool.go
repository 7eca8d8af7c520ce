package mux

import "sync"

// readBufPool recycles the fixed-size read buffers readOne uses for
// each ready fd, so the event loop does not allocate 8KiB on every
// readiness notification. Built on sync.Pool rather than a hand-rolled
// channel free list: the event loop is the only goroutine calling
// get/put on the hot path, and sync.Pool already handles the
// allocate-on-empty/drop-on-full behavior that free list was
// reimplementing by hand.
type readBufPool struct {
	pool sync.Pool
	size int
}

func newReadBufPool(size int) *readBufPool {
	p := &readBufPool{size: size}
	p.pool.New = func() any {
		return make([]byte, p.size)
	}
	return p
}

func (p *readBufPool) get() []byte {
	return p.pool.Get().([]byte)
}

func (p *readBufPool) put(b []byte) {
	p.pool.Put(b[:cap(b)])
}
