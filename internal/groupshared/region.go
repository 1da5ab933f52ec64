// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package groupshared

import "fmt"

// Region16 is a named window of 16-bit slots inside a Scratch.
// A region is only meaningful during the kernel phases that own it;
// the kernel layout decides which regions may be live at the same time.
type Region16 struct {
	s    *Scratch
	name string
	off  int
	n    int
}

// Region16 returns a view of n 16-bit slots starting at slot off.
func (s *Scratch) Region16(name string, off, n int) Region16 {
	if off < 0 || n < 0 || off+n > Slots16 {
		panic(fmt.Sprintf("groupshared: region %q [%d, %d) exceeds %d slots", name, off, off+n, Slots16))
	}
	return Region16{s: s, name: name, off: off, n: n}
}

func (r Region16) check(i int) {
	if i < 0 || i >= r.n {
		panic(fmt.Sprintf("groupshared: index %d outside region %q of %d slots", i, r.name, r.n))
	}
}

// Name returns the region's label.
func (r Region16) Name() string { return r.name }

// Offset returns the first slot of the region.
func (r Region16) Offset() int { return r.off }

// Len returns the region size in slots.
func (r Region16) Len() int { return r.n }

// Load reads slot i.
func (r Region16) Load(i int) uint32 {
	r.check(i)
	return r.s.Load16(i, r.off)
}

// Store writes slot i (clear-then-add).
func (r Region16) Store(i int, v uint32) {
	r.check(i)
	r.s.Store16(i, v, r.off)
}

// Add atomically adds delta to slot i and returns the previous value.
func (r Region16) Add(i int, delta uint32) uint32 {
	r.check(i)
	return r.s.AddTo16(i, delta, r.off)
}

// Exchange atomically replaces slot i and returns the previous value.
func (r Region16) Exchange(i int, v uint32) uint32 {
	r.check(i)
	return r.s.Exchange16(i, v, r.off)
}

// Region8 is a byte-addressed window that packs two bytes per 16-bit slot
// using the split addressing of Store8.
type Region8 struct {
	s    *Scratch
	name string
	off  int
	span int
}

// Region8 returns a byte view of 2*span bytes stored in span slots starting at off.
func (s *Scratch) Region8(name string, off, span int) Region8 {
	if off < 0 || span < 0 || off+span > Slots16 {
		panic(fmt.Sprintf("groupshared: byte region %q [%d, %d) exceeds %d slots", name, off, off+span, Slots16))
	}
	return Region8{s: s, name: name, off: off, span: span}
}

// Len returns the region size in bytes.
func (r Region8) Len() int { return 2 * r.span }

// Load reads byte i.
func (r Region8) Load(i int) uint32 {
	if i < 0 || i >= 2*r.span {
		panic(fmt.Sprintf("groupshared: byte %d outside region %q of %d bytes", i, r.name, 2*r.span))
	}
	return r.s.Load8(i, r.off, r.span)
}

// Store writes byte i.
func (r Region8) Store(i int, v uint32) {
	if i < 0 || i >= 2*r.span {
		panic(fmt.Sprintf("groupshared: byte %d outside region %q of %d bytes", i, r.name, 2*r.span))
	}
	r.s.Store8(i, v, r.off, r.span)
}

// SplitRegion16 is one logical array of 16-bit slots stored in two physically
// separate segments. Logical index i lives in the first segment while
// i < first.Len(), and in the second segment at i-first.Len() after that.
type SplitRegion16 struct {
	first, second Region16
}

// Split joins two regions into one logical array.
func Split(first, second Region16) SplitRegion16 {
	return SplitRegion16{first: first, second: second}
}

// Len returns the combined length of both segments.
func (r SplitRegion16) Len() int { return r.first.n + r.second.n }

// Resolve maps a logical index to its segment and the index inside it.
func (r SplitRegion16) Resolve(i int) (Region16, int) {
	if i < r.first.n {
		return r.first, i
	}
	return r.second, i - r.first.n
}

// Slot returns the physical 16-bit slot address of logical index i.
func (r SplitRegion16) Slot(i int) int {
	seg, j := r.Resolve(i)
	seg.check(j)
	return seg.off + j
}

// Load reads logical index i.
func (r SplitRegion16) Load(i int) uint32 {
	seg, j := r.Resolve(i)
	return seg.Load(j)
}

// Store writes logical index i.
func (r SplitRegion16) Store(i int, v uint32) {
	seg, j := r.Resolve(i)
	seg.Store(j, v)
}
