// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortkernel

import "github.com/gogpu/raysort/internal/workgroup"

// depthIdentityMin stands in for disabled rays in the min reduction.
// Raw depth bits never exceed 10 bits, so it loses every comparison.
const depthIdentityMin = 0xFFFF

// localDepth folds the depth of one ray into a lane's running bounds.
// Zero bits (a disabled or out-of-bounds slot) leave the bounds unchanged.
func localDepth(mn, mx, bits uint32) (uint32, uint32) {
	if bits == 0 {
		return mn, mx
	}
	return min(mn, bits), max(mx, bits)
}

// finishRange maps the identity result of a tile with no enabled rays to
// the empty range [0, 0].
func finishRange(mn, mx uint32) DepthRange {
	if mn == depthIdentityMin {
		return DepthRange{}
	}
	return DepthRange{MinBits: mn, MaxBits: mx}
}

// reduceDepthRange returns the tile depth range to every lane. mn and mx are
// the lane's bounds over its own rays. The partials are staged in the
// histogram region and cleared before returning.
func (r *run) reduceDepthRange(l *workgroup.Lane, mn, mx uint32) DepthRange {
	if r.k.cfg.DepthRange == DepthRangeSampled {
		return r.reduceSampled(l)
	}
	return r.reduceExact(l, mn, mx)
}

// reduceExact reduces every lane's bounds: one partial per wave, then wave
// reductions over the partials until one remains.
func (r *run) reduceExact(l *workgroup.Lane, mn, mx uint32) DepthRange {
	hist := r.reg.hist

	wmin, wmax := l.WaveMin(mn), l.WaveMax(mx)
	if l.IsWaveLeader() {
		hist.Store(2*l.WaveID(), wmin)
		hist.Store(2*l.WaveID()+1, wmax)
	}
	l.Sync()

	for count := l.WaveCount(); count > 1; {
		mn, mx = depthIdentityMin, 0
		if l.ID() < count {
			mn, mx = hist.Load(2*l.ID()), hist.Load(2*l.ID()+1)
		}
		wmin, wmax = l.WaveMin(mn), l.WaveMax(mx)
		l.Sync()

		count = (count + l.WaveSize() - 1) / l.WaveSize()
		if l.IsWaveLeader() && l.WaveID() < count {
			hist.Store(2*l.WaveID(), wmin)
			hist.Store(2*l.WaveID()+1, wmax)
		}
		l.Sync()
	}

	rng := finishRange(hist.Load(0), hist.Load(1))
	l.Sync()
	for i := l.ID(); i < 2*l.WaveCount(); i += l.Count() {
		hist.Store(i, 0)
	}
	l.Sync()
	return rng
}

// reduceSampled estimates the range from the first wave alone. Lane k reads
// slot (k*(N/WaveSize)+k) mod N so consecutive lanes hit different banks.
func (r *run) reduceSampled(l *workgroup.Lane) DepthRange {
	hist := r.reg.hist
	keys := r.reg.keys

	if l.WaveID() == 0 {
		n := r.k.layout.Rays
		k := l.WaveLane()
		i := (k*(n/l.WaveSize()) + k) % n
		mn, mx := localDepth(depthIdentityMin, 0, keys.Load(i))
		wmin, wmax := l.WaveMin(mn), l.WaveMax(mx)
		if l.IsWaveLeader() {
			hist.Store(0, wmin)
			hist.Store(1, wmax)
		}
	}
	l.Sync()

	rng := finishRange(hist.Load(0), hist.Load(1))
	l.Sync()
	if l.ID() < 2 {
		hist.Store(l.ID(), 0)
	}
	l.Sync()
	return rng
}
