// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortkernel

import "github.com/gogpu/raysort/internal/workgroup"

// The scans below turn hist[0:K) into exclusive bucket bases in place and
// leave the total count in control slot 0, where it seeds the inactive
// bucket. Counts never exceed MaxRays, so 16-bit slots cannot overflow.

// scan dispatches to the configured prefix sum.
func (r *run) scan(l *workgroup.Lane) {
	if r.k.cfg.Scan == ScanWave {
		r.scanWave(l)
		return
	}
	r.scanBlelloch(l)
}

// scanBlelloch is the work-efficient up-sweep/down-sweep scan. Every sweep
// level is followed by a group barrier.
func (r *run) scanBlelloch(l *workgroup.Lane) {
	hist := r.reg.hist
	k := r.k.layout.Keys
	id, lanes := l.ID(), l.Count()

	for d := 1; d < k; d <<= 1 {
		for j := id; j < k/(2*d); j += lanes {
			ai := (2*j+1)*d - 1
			bi := (2*j+2)*d - 1
			hist.Store(bi, hist.Load(bi)+hist.Load(ai))
		}
		l.Sync()
	}

	if id == 0 {
		r.reg.control.Store(0, hist.Load(k-1))
		hist.Store(k-1, 0)
	}
	l.Sync()

	for d := k >> 1; d >= 1; d >>= 1 {
		for j := id; j < k/(2*d); j += lanes {
			ai := (2*j+1)*d - 1
			bi := (2*j+2)*d - 1
			t := hist.Load(ai)
			hist.Store(ai, hist.Load(bi))
			hist.Store(bi, hist.Load(bi)+t)
		}
		l.Sync()
	}
}

// scanWave walks the histogram in chunks of one entry per lane. Within a
// chunk each wave computes its exclusive prefix sum, wave leaders publish
// their totals in control slots 1..waves, and every lane offsets its sum by
// the totals of the preceding waves plus the carry from earlier chunks.
func (r *run) scanWave(l *workgroup.Lane) {
	hist := r.reg.hist
	control := r.reg.control
	k := r.k.layout.Keys
	lanes := l.Count()

	var carry uint32
	for base := 0; base < k; base += lanes {
		e := base + l.ID()
		var v uint32
		if e < k {
			v = hist.Load(e)
		}
		prefix := l.WavePrefixSum(v)
		total := l.WaveSum(v)
		if l.IsWaveLeader() {
			control.Store(1+l.WaveID(), total)
		}
		l.Sync()

		var before, chunk uint32
		for w := range l.WaveCount() {
			t := control.Load(1 + w)
			if w < l.WaveID() {
				before += t
			}
			chunk += t
		}
		if e < k {
			hist.Store(e, carry+before+prefix)
		}
		carry += chunk
		l.Sync()
	}

	if l.ID() == 0 {
		control.Store(0, carry)
	}
	l.Sync()
}
