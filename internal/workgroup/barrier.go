// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package workgroup

import (
	"errors"
	"sync"
)

// errAborted unwinds lanes that are parked on a barrier after another lane of
// the same workgroup panicked.
var errAborted = errors.New("workgroup: aborted")

// Barrier is a reusable rendezvous for a fixed number of participants.
// Every participant must call Wait the same number of times; the n-th arrival
// of a generation releases all waiters and starts the next generation.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	waiting int
	gen     uint64
	broken  bool
}

// NewBarrier creates a barrier for n participants.
func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all participants have arrived.
// If the barrier is broken, Wait panics with errAborted so the calling lane
// unwinds instead of waiting forever.
func (b *Barrier) Wait() {
	b.mu.Lock()
	if b.broken {
		b.mu.Unlock()
		panic(errAborted)
	}
	gen := b.gen
	b.waiting++
	if b.waiting == b.n {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	broken := b.broken && gen == b.gen
	b.mu.Unlock()
	if broken {
		panic(errAborted)
	}
}

// Break releases every waiter with errAborted. A broken barrier stays broken.
func (b *Barrier) Break() {
	b.mu.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
