package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Dispatch on a closed pool.
var ErrPoolClosed = errors.New("parallel: worker pool is closed")

// WorkerPool runs independent workgroups on a fixed set of goroutines.
//
// Each worker owns a queue. Work is distributed round-robin and idle workers
// steal from the other queues, which keeps all workers busy when tiles differ
// in cost (a tile of disabled rays sorts much faster than a full one).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// queues holds one work queue per worker.
	queues []chan func()

	// mu is held shared while work is being queued and exclusively by
	// Close, so every queued item reaches a worker before the workers stop.
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running = true

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case work := <-own:
			work()
			continue
		default:
		}

		if stolen := p.steal(id); stolen != nil {
			stolen()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case work := <-own:
			work()
		}
	}
}

func drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case work := <-p.queues[(id+i)%p.workers]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every item and waits for all of them. It reports false,
// without running anything, when the pool is closed.
func (p *WorkerPool) ExecuteAll(work []func()) bool {
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		return false
	}

	var pending sync.WaitGroup
	pending.Add(len(work))
	for i, fn := range work {
		p.queues[i%p.workers] <- func() {
			defer pending.Done()
			fn()
		}
	}
	p.mu.RUnlock()

	pending.Wait()
	return true
}

// Dispatch runs fn(0) .. fn(n-1) on the pool and waits for them.
//
// Once ctx is cancelled or any call fails, calls that have not started yet
// are skipped. Dispatch returns the first error, or ctx.Err() when the
// context ended the dispatch.
func (p *WorkerPool) Dispatch(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		if !p.IsRunning() {
			return ErrPoolClosed
		}
		return ctx.Err()
	}

	var (
		once     sync.Once
		firstErr error
		stopped  atomic.Bool
	)
	fail := func(err error) {
		once.Do(func() { firstErr = err })
		stopped.Store(true)
	}

	work := make([]func(), n)
	for i := range work {
		work[i] = func() {
			if stopped.Load() {
				return
			}
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			if err := fn(i); err != nil {
				fail(err)
			}
		}
	}
	if !p.ExecuteAll(work) {
		return ErrPoolClosed
	}
	return firstErr
}

// Close waits for work that is being queued, then stops the workers after
// the queued work has run. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
