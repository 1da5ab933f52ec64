// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortkernel

import (
	"sync/atomic"

	"github.com/gogpu/raysort/internal/rayfmt"
	"github.com/gogpu/raysort/internal/workgroup"
)

// Sorted entry layout in the key cache.
const (
	entryIndexMask = MaxRays - 1 // bits 0-12: source slot
	entryInactive  = 1 << 13
	entryTag       = 1 << 15 // slot holds a sorted entry, not a key
)

// scatter claims one sorted position per in-bounds ray and writes the ray's
// encoded slot index there. Claims come from the bucket's slot counter, or
// from control slot 0 for disabled rays.
//
// The entry is written with Exchange16 because the key cache is aliased: the
// ray whose key lives at the claimed position may be reading it right now,
// and it must see either its key or a tagged entry. A tagged read means the
// key is gone, so the reader regenerates it from the input texel.
//
// Rays sharing a bucket are ordered by the order their claims land, which
// varies from run to run.
func (r *run) scatter(l *workgroup.Lane, h *hasher) {
	keys := r.reg.keys
	for i := l.ID(); i < r.k.layout.Rays; i += l.Count() {
		x, y, ok := r.slot(i)
		if !ok {
			continue
		}
		key := keys.Load(i)
		if key&entryTag != 0 {
			key = h.key(r.texel(x, y), x, y)
		}

		entry := uint32(i) | entryTag
		var pos uint32
		if key == h.inactive {
			pos = r.reg.control.Add(0, 1)
			entry |= entryInactive
		} else {
			pos = r.reg.hist.Add(int(key), 1)
		}
		keys.Exchange(int(pos), entry)
	}
}

// collectStats derives bucket occupancy from the slot counters, which hold
// each bucket's end offset once the scatter is complete.
func (r *run) collectStats(l *workgroup.Lane) {
	hist := r.reg.hist
	var occupied, largest uint32
	for k := l.ID(); k < r.k.layout.Keys; k += l.Count() {
		end := hist.Load(k)
		var begin uint32
		if k > 0 {
			begin = hist.Load(k - 1)
		}
		if n := end - begin; n > 0 {
			occupied++
			largest = max(largest, n)
		}
	}
	r.occupied.Add(occupied)
	for {
		cur := r.largest.Load()
		if largest <= cur || r.largest.CompareAndSwap(cur, largest) {
			break
		}
	}
	if l.ID() == 0 {
		r.valid = int(hist.Load(r.k.layout.Keys - 1))
	}
}

// spill writes the sorted entries linearly to the sorted to source output.
// Sorted position p lands at (p mod w, p / w) of the tile's in-bounds
// rectangle. When enabled it also fills the debug output and records each
// ray's sorted position in the split inverse region.
func (r *run) spill(l *workgroup.Lane, h *hasher) {
	cfg := r.k.cfg
	keys := r.reg.keys
	for p := l.ID(); p < r.w*r.h; p += l.Count() {
		e := keys.Load(p)
		s := int(e & entryIndexMask)
		sx, sy := s%cfg.TileWidth, s/cfg.TileWidth

		dst := r.index(p%r.w, p/r.w)
		r.io.SortedToSource[dst] = rayfmt.PackIndex(r.ox+sx, r.oy+sy, e&entryInactive != 0)
		if cfg.Debug {
			r.io.Debug[dst] = h.key(r.texel(sx, sy), sx, sy)
		}
		if cfg.Inverse {
			r.reg.inverse.Store(s, uint32(p))
		}
	}
}

// spillInverse writes each in-bounds ray's sorted coordinate to the source
// to sorted output.
func (r *run) spillInverse(l *workgroup.Lane) {
	for i := l.ID(); i < r.k.layout.Rays; i += l.Count() {
		x, y, ok := r.slot(i)
		if !ok {
			continue
		}
		p := int(r.reg.inverse.Load(i))
		inactive := rayfmt.DepthBits(r.texel(x, y)) == 0
		r.io.SourceToSorted[r.index(x, y)] = rayfmt.PackIndex(r.ox+p%r.w, r.oy+p/r.w, inactive)
	}
}

// tileCounters are the cross-lane statistics of one run.
type tileCounters struct {
	occupied atomic.Uint32
	largest  atomic.Uint32
	valid    int
}
