// File: mux/workerpool.go
// A small bounded worker pool used only for broadcast fan-out, so
// a slow client write never blocks the single-threaded event loop.
package mux

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

type task func()

type workerPool struct {
	mu     sync.Mutex
	q      *queue.Queue
	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	wp := &workerPool{
		q:      queue.New(),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	wp.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go wp.run()
	}
	return wp
}

func (wp *workerPool) submit(t task) {
	wp.mu.Lock()
	wp.q.Add(t)
	wp.mu.Unlock()
	select {
	case wp.notify <- struct{}{}:
	default:
	}
}

func (wp *workerPool) run() {
	defer wp.wg.Done()
	for {
		wp.mu.Lock()
		var t task
		if wp.q.Length() > 0 {
			t = wp.q.Remove().(task)
		}
		wp.mu.Unlock()

		if t != nil {
			t()
			continue
		}

		select {
		case <-wp.stop:
			return
		case <-wp.notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (wp *workerPool) close() {
	close(wp.stop)
	wp.wg.Wait()
}
