// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sortkernel is the CPU reference of the workgroup ray sort.
//
// One Run sorts one tile of rays inside one workgroup. The lanes share a
// groupshared.Scratch and go through five phases:
//
//  1. clear the scratch buffer
//  2. cache each ray's direction sub-key and depth
//  3. reduce the tile depth range
//  4. build full keys, count them, and scan the counts into bucket bases
//  5. scatter encoded slot indices to their sorted positions in scratch, then
//     spill them linearly to the outputs
//
// A group barrier separates every pair of phases where one reads what the
// other wrote. The WGSL kernel in internal/gpu follows the same layout and
// phase order.
package sortkernel

import (
	"fmt"

	"github.com/gogpu/raysort/internal/groupshared"
	"github.com/gogpu/raysort/internal/rayfmt"
	"github.com/gogpu/raysort/internal/workgroup"
)

// Tile addresses one tile in tile units.
type Tile struct {
	X, Y int
}

// Params are the per-dispatch parameters shared by every tile.
type Params struct {
	// ActiveWidth and ActiveHeight bound the rays that are sorted. Slots
	// outside the rectangle are skipped.
	ActiveWidth  int
	ActiveHeight int

	Encoding   DirectionEncoding
	MinBinSize float32
}

// IO holds the external buffers of a dispatch. All buffers are row-major
// with row stride Width. SourceToSorted must be set when the kernel was
// configured with Inverse, and Debug when configured with Debug.
type IO struct {
	Width int

	Rays           []uint32
	SortedToSource []uint32
	SourceToSorted []uint32
	Debug          []uint32
}

// TileStats describes one sorted tile.
type TileStats struct {
	Rays            int // in-bounds slots
	Active          int
	Disabled        int
	OccupiedBuckets int
	LargestBucket   int
	Range           DepthRange
}

// Kernel is a validated kernel instance.
type Kernel struct {
	cfg    Config
	layout Layout
}

// New validates cfg and returns a kernel for it.
func New(cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := NewLayout(cfg)
	if err != nil {
		return nil, err
	}
	return &Kernel{cfg: cfg, layout: layout}, nil
}

// Config returns the kernel's configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Layout returns the kernel's scratch layout.
func (k *Kernel) Layout() Layout { return k.layout }

// run is the state shared by the lanes of one Run.
type run struct {
	k   *Kernel
	s   *groupshared.Scratch
	reg regions
	p   Params
	io  IO

	// tile origin and in-bounds extent
	ox, oy int
	w, h   int

	rng DepthRange
	tileCounters
}

// Run sorts tile t using scratch s. The scratch contents on entry do not
// matter; phase 1 clears them.
func (k *Kernel) Run(s *groupshared.Scratch, t Tile, p Params, io IO) (TileStats, error) {
	r := &run{
		k:   k,
		s:   s,
		reg: k.layout.bind(s),
		p:   p,
		io:  io,
		ox:  t.X * k.cfg.TileWidth,
		oy:  t.Y * k.cfg.TileHeight,
	}
	r.w = min(k.cfg.TileWidth, p.ActiveWidth-r.ox)
	r.h = min(k.cfg.TileHeight, p.ActiveHeight-r.oy)
	if r.w <= 0 || r.h <= 0 {
		return TileStats{}, nil
	}

	if err := workgroup.Dispatch(k.cfg.shape(), r.lane); err != nil {
		return TileStats{}, fmt.Errorf("sortkernel: tile (%d,%d): %w", t.X, t.Y, err)
	}

	n := r.w * r.h
	return TileStats{
		Rays:            n,
		Active:          r.valid,
		Disabled:        n - r.valid,
		OccupiedBuckets: int(r.occupied.Load()),
		LargestBucket:   int(r.largest.Load()),
		Range:           r.rng,
	}, nil
}

// lane is the kernel entry point run by every lane.
func (r *run) lane(l *workgroup.Lane) {
	r.s.ClearStrided(l.ID(), l.Count())
	l.Sync()

	mn, mx := r.generate(l)
	l.Sync()

	rng := r.reduceDepthRange(l, mn, mx)
	if l.ID() == 0 {
		r.rng = rng
	}
	h := newHasher(r.k.cfg, r.p.Encoding, r.p.MinBinSize, rng)

	r.histogram(l, &h)
	l.Sync()

	r.scan(l)

	r.scatter(l, &h)
	l.Sync()

	r.collectStats(l)
	if r.k.cfg.Inverse {
		// The inverse map reuses the control and histogram slots read above.
		l.Sync()
	}

	r.spill(l, &h)
	if r.k.cfg.Inverse {
		l.Sync()
		r.spillInverse(l)
	}
}

// generate caches each in-bounds ray's direction sub-key and raw depth and
// returns the lane's depth bounds over its rays.
func (r *run) generate(l *workgroup.Lane) (mn, mx uint32) {
	cfg := r.k.cfg
	mn = depthIdentityMin
	for i := l.ID(); i < r.k.layout.Rays; i += l.Count() {
		x, y, ok := r.slot(i)
		if !ok {
			continue
		}
		texel := r.texel(x, y)
		depth := rayfmt.DepthBits(texel)
		r.reg.dir.Store(i, directionKey(texel, cfg.DirectionBits, r.p.Encoding))
		r.reg.keys.Store(i, depth)
		mn, mx = localDepth(mn, mx, depth)
	}
	return mn, mx
}

// histogram replaces each cached depth with the ray's full key and counts
// the enabled rays per bucket.
func (r *run) histogram(l *workgroup.Lane, h *hasher) {
	keys := r.reg.keys
	for i := l.ID(); i < r.k.layout.Rays; i += l.Count() {
		x, y, ok := r.slot(i)
		if !ok {
			continue
		}
		key := h.compose(keys.Load(i), r.reg.dir.Load(i), x, y)
		keys.Store(i, key)
		if key != h.inactive {
			r.reg.hist.Add(int(key), 1)
		}
	}
}

// slot maps tile slot i to tile-local coordinates and reports whether it
// lies inside the active rectangle.
func (r *run) slot(i int) (x, y int, ok bool) {
	x, y = i%r.k.cfg.TileWidth, i/r.k.cfg.TileWidth
	return x, y, x < r.w && y < r.h
}

// index returns the buffer index of tile-local (x, y).
func (r *run) index(x, y int) int {
	return (r.oy+y)*r.io.Width + r.ox + x
}

func (r *run) texel(x, y int) uint32 {
	return r.io.Rays[r.index(x, y)]
}
