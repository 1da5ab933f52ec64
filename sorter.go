// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raysort

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/raysort/internal/parallel"
	"github.com/gogpu/raysort/internal/rayfmt"
	"github.com/gogpu/raysort/internal/sortkernel"
)

// Index texels hold x in 15 bits and y in 16 bits.
const (
	maxBufferWidth  = 1 << 15
	maxBufferHeight = 1 << 16
)

// backendCPU names the CPU reference in Stats.
const backendCPU = "cpu"

// Stats summarises one sort.
type Stats struct {
	Tiles    int // tiles dispatched
	Rays     int // in-bounds slots
	Active   int
	Disabled int

	// OccupiedBuckets is summed over tiles; LargestBucket is the maximum.
	OccupiedBuckets int
	LargestBucket   int

	// Backend is "cpu" or the name of the accelerator that sorted.
	Backend  string
	Duration time.Duration
}

// Result is the outcome of a sort.
type Result struct {
	Output *SortOutput
	Stats  Stats

	// Tiles holds per-tile statistics in row-major tile order over the
	// active rectangle.
	Tiles []TileStats
}

// Sorter reorders the rays of a buffer tile by tile so that rays with
// equal hash keys become adjacent.
//
// Each tile is one workgroup: lanes cooperate through a 32 KiB scratch
// buffer, and tiles run in parallel on a worker pool. When a GPU
// accelerator is registered the sorter tries it first and falls back to the
// CPU reference on any error.
//
// A Sorter is safe for concurrent use.
type Sorter struct {
	kernel  *sortkernel.Kernel
	pool    *parallel.WorkerPool
	ownPool bool
	scratch *parallel.ScratchPool
	cpuOnly bool
	closed  atomic.Bool
}

// NewSorter creates a sorter. It returns a wrapped configuration error when
// the kernel configuration cannot be packed into scratch memory.
func NewSorter(opts ...SorterOption) (*Sorter, error) {
	o := defaultSorterOptions()
	for _, opt := range opts {
		opt(&o)
	}

	k, err := sortkernel.New(o.config)
	if err != nil {
		return nil, fmt.Errorf("raysort: %w", err)
	}

	s := &Sorter{
		kernel:  k,
		pool:    o.pool,
		scratch: parallel.SharedScratchPool(),
		cpuOnly: o.cpuOnly,
	}
	if s.pool == nil {
		s.pool = parallel.NewWorkerPool(o.workers)
		s.ownPool = true
	}
	return s, nil
}

// MustNewSorter is like NewSorter but panics on error.
func MustNewSorter(opts ...SorterOption) *Sorter {
	s, err := NewSorter(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Config returns the sorter's kernel configuration.
func (s *Sorter) Config() KernelConfig {
	return s.kernel.Config()
}

// Close stops the sorter's worker pool unless it was shared. Sort returns
// ErrSorterClosed afterwards. Close is idempotent.
func (s *Sorter) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.ownPool {
		s.pool.Close()
	}
}

// Sort sorts the active rectangle of rays into freshly allocated outputs.
func (s *Sorter) Sort(ctx context.Context, rays *RayBuffer, params DispatchParams) (*Result, error) {
	if err := rays.check(); err != nil {
		return nil, err
	}
	out := NewSortOutput(s.Config(), rays.Width, rays.Height)
	return s.SortInto(ctx, rays, params, out)
}

// SortInto sorts the active rectangle of rays into out. Texels of out
// outside the active rectangle are left untouched, so the same outputs can
// be reused across frames.
//
// If ctx is cancelled between tile dispatches SortInto returns ctx.Err()
// and out is partially written.
func (s *Sorter) SortInto(ctx context.Context, rays *RayBuffer, params DispatchParams, out *SortOutput) (*Result, error) {
	if s.closed.Load() {
		return nil, ErrSorterClosed
	}
	cfg := s.Config()
	if err := checkSort(cfg, rays, params, out); err != nil {
		return nil, err
	}

	start := time.Now()
	tiles, backend, err := s.dispatch(ctx, cfg, rays, params, out)
	if err != nil {
		return nil, err
	}

	res := &Result{Output: out, Tiles: tiles}
	res.Stats = aggregate(tiles)
	res.Stats.Backend = backend
	res.Stats.Duration = time.Since(start)

	Logger().Debug("raysort: sorted",
		"backend", backend,
		"workers", s.pool.Workers(),
		"tiles", res.Stats.Tiles,
		"rays", res.Stats.Rays,
		"active", res.Stats.Active,
		"occupied", res.Stats.OccupiedBuckets,
		"largest", res.Stats.LargestBucket,
		"duration", res.Stats.Duration)
	return res, nil
}

// dispatch runs the accelerator when one is usable, then the CPU reference.
func (s *Sorter) dispatch(ctx context.Context, cfg KernelConfig, rays *RayBuffer, params DispatchParams, out *SortOutput) ([]TileStats, string, error) {
	if !s.cpuOnly {
		if a := Accelerator(); a != nil && a.CanSort(cfg) {
			tiles, err := a.Sort(ctx, cfg, rays, params, out)
			if err == nil {
				return tiles, a.Name(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			if !errors.Is(err, ErrFallbackToCPU) {
				Logger().Warn("raysort: accelerator failed, using CPU", "accelerator", a.Name(), "err", err)
			} else {
				Logger().Debug("raysort: accelerator declined", "accelerator", a.Name(), "err", err)
			}
		}
	}
	tiles, err := s.sortCPU(ctx, rays, params, out)
	return tiles, backendCPU, err
}

// sortCPU dispatches one kernel run per tile on the worker pool.
func (s *Sorter) sortCPU(ctx context.Context, rays *RayBuffer, params DispatchParams, out *SortOutput) ([]TileStats, error) {
	cfg := s.Config()
	grid := parallel.NewTileGrid(params.ActiveWidth, params.ActiveHeight, cfg.TileWidth, cfg.TileHeight)
	tiles := make([]TileStats, grid.TileCount())

	io := sortkernel.IO{
		Width:          rays.Width,
		Rays:           rays.Texels,
		SortedToSource: out.SortedToSource.Texels,
	}
	if cfg.Inverse {
		io.SourceToSorted = out.SourceToSorted.Texels
	}
	if cfg.Debug {
		io.Debug = out.Debug.Texels
	}

	err := s.pool.Dispatch(ctx, grid.TileCount(), func(i int) error {
		t := grid.Tile(i)
		scratch := s.scratch.Get()
		defer s.scratch.Put(scratch)

		st, err := s.kernel.Run(scratch, sortkernel.Tile{X: t.X, Y: t.Y}, params, io)
		if err != nil {
			return err
		}
		tiles[i] = st
		return nil
	})
	if errors.Is(err, parallel.ErrPoolClosed) {
		return nil, ErrSorterClosed
	}
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// checkSort validates the buffers and the active rectangle.
func checkSort(cfg KernelConfig, rays *RayBuffer, params DispatchParams, out *SortOutput) error {
	if err := rays.check(); err != nil {
		return err
	}
	if rays.Width > maxBufferWidth || rays.Height > maxBufferHeight {
		return fmt.Errorf("%w: %dx%d exceeds index range %dx%d",
			ErrBufferSize, rays.Width, rays.Height, maxBufferWidth, maxBufferHeight)
	}
	if err := out.check(cfg, rays); err != nil {
		return err
	}
	if params.ActiveWidth < 0 || params.ActiveHeight < 0 ||
		params.ActiveWidth > rays.Width || params.ActiveHeight > rays.Height {
		return fmt.Errorf("%w: %dx%d in %dx%d buffer", ErrActiveBounds,
			params.ActiveWidth, params.ActiveHeight, rays.Width, rays.Height)
	}
	return nil
}

// aggregate folds per-tile statistics into sort totals.
func aggregate(tiles []TileStats) Stats {
	st := Stats{Tiles: len(tiles)}
	for _, t := range tiles {
		st.Rays += t.Rays
		st.Active += t.Active
		st.Disabled += t.Disabled
		st.OccupiedBuckets += t.OccupiedBuckets
		st.LargestBucket = max(st.LargestBucket, t.LargestBucket)
	}
	return st
}

// CountEnabled returns the number of rays in the active rectangle with a
// nonzero depth.
func CountEnabled(rays *RayBuffer, params DispatchParams) int {
	n := 0
	for y := range min(params.ActiveHeight, rays.Height) {
		row := rays.Texels[y*rays.Width:]
		for x := range min(params.ActiveWidth, rays.Width) {
			if rayfmt.DepthBits(row[x]) != 0 {
				n++
			}
		}
	}
	return n
}
