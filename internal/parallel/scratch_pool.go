package parallel

import (
	"sync"

	"github.com/gogpu/raysort/internal/groupshared"
)

// ScratchPool recycles workgroup scratch buffers via sync.Pool.
//
// A scratch buffer is 32 KiB; a frame of 1080p rays at 64x64 tiles needs
// hundreds of dispatches, so reuse keeps the sort from churning the GC.
// Buffers come back dirty. The kernel clears scratch in its first phase, so
// Get does not.
//
// Thread safety: ScratchPool is safe for concurrent use.
type ScratchPool struct {
	pool sync.Pool
}

// NewScratchPool creates an empty pool.
func NewScratchPool() *ScratchPool {
	p := &ScratchPool{}
	p.pool.New = func() any {
		return groupshared.New()
	}
	return p
}

// Get returns a scratch buffer with unspecified contents.
func (p *ScratchPool) Get() *groupshared.Scratch {
	return p.pool.Get().(*groupshared.Scratch)
}

// Put returns a buffer to the pool. Put(nil) is a no-op.
func (p *ScratchPool) Put(s *groupshared.Scratch) {
	if s == nil {
		return
	}
	p.pool.Put(s)
}

// sharedScratch is the process-wide pool. Every kernel configuration uses
// the same scratch size, so sorters share buffers.
var sharedScratch = NewScratchPool()

// SharedScratchPool returns the process-wide scratch pool.
func SharedScratchPool() *ScratchPool {
	return sharedScratch
}
