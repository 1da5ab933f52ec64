// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package groupshared models the on-chip scratch memory shared by all lanes of
// one compute workgroup.
//
// The buffer is a flat array of 8192 atomic 32-bit words. Kernels address it
// through 16-bit slots: slot a < Words is the low half of word a, slot a >= Words
// is the high half of word a-Words. The second plane therefore spans the upper
// bits of the first plane's words, so two regions that sit Words slots apart
// share words but never share bits.
//
// 8-bit values are packed two per 16-bit slot. A byte region of span S stores
// byte b < S in the low byte of slot b and byte b >= S in the high byte of slot
// b-S, so lanes writing adjacent bytes touch adjacent words.
//
// There is no sub-word atomic on the hardware this models. Every write is an
// atomic operation on the enclosing word restricted to the addressed bits.
// Loads are plain atomic loads; ordering between lanes is the caller's job and
// comes from group barriers.
package groupshared

import (
	"fmt"
	"sync/atomic"
)

const (
	// Words is the scratch capacity in 32-bit words (32 KiB).
	Words = 8192

	// Slots16 is the number of addressable 16-bit slots across both planes.
	Slots16 = 2 * Words

	// SizeBytes is the scratch capacity in bytes.
	SizeBytes = Words * 4

	mask16 = 0xFFFF
	mask8  = 0xFF
)

// Scratch is one workgroup's shared memory.
//
// Scratch is safe for concurrent use by the lanes of a single workgroup.
// It must not be shared between workgroups that run at the same time.
type Scratch struct {
	words [Words]atomic.Uint32
}

// New returns a zeroed scratch buffer.
func New() *Scratch {
	return &Scratch{}
}

// slot16 resolves a 16-bit slot address to its word and bit shift.
func slot16(addr int) (word int, shift uint) {
	if addr < 0 || addr >= Slots16 {
		panic(fmt.Sprintf("groupshared: 16-bit slot %d outside [0, %d)", addr, Slots16))
	}
	if addr >= Words {
		return addr - Words, 16
	}
	return addr, 0
}

// slot8 resolves a byte index inside a region of the given span.
func slot8(index, regionOffset, span int) (word int, shift uint) {
	sub := uint(0)
	if index >= span {
		index -= span
		sub = 8
	}
	w, sh := slot16(regionOffset + index)
	return w, sh + sub
}

// ClearStrided zeroes every word w with w%stride == first.
// Lanes call it with (laneID, laneCount) to clear the buffer cooperatively.
func (s *Scratch) ClearStrided(first, stride int) {
	for w := first; w < Words; w += stride {
		s.words[w].Store(0)
	}
}

// Store16 writes value into 16-bit slot regionOffset+index.
// The write clears the slot's half with an atomic AND and then adds the value
// with an atomic ADD; the other half of the word is never disturbed.
func (s *Scratch) Store16(index int, value uint32, regionOffset int) {
	w, sh := slot16(regionOffset + index)
	s.words[w].And(^(uint32(mask16) << sh))
	s.words[w].Add((value & mask16) << sh)
}

// Load16 reads 16-bit slot regionOffset+index.
func (s *Scratch) Load16(index, regionOffset int) uint32 {
	w, sh := slot16(regionOffset + index)
	return (s.words[w].Load() >> sh) & mask16
}

// AddTo16 atomically adds delta to 16-bit slot regionOffset+index and returns
// the value the slot held before the add.
//
// The slot must never overflow 16 bits; a carry out of the low half would
// corrupt the high half.
func (s *Scratch) AddTo16(index int, delta uint32, regionOffset int) uint32 {
	w, sh := slot16(regionOffset + index)
	d := delta & mask16
	updated := s.words[w].Add(d << sh)
	return ((updated >> sh) - d) & mask16
}

// Exchange16 replaces 16-bit slot regionOffset+index with value in a single
// compare-and-swap and returns the previous value. A concurrent Load16 sees
// either the old or the new value, never the cleared intermediate that
// Store16 passes through.
func (s *Scratch) Exchange16(index int, value uint32, regionOffset int) uint32 {
	w, sh := slot16(regionOffset + index)
	m := uint32(mask16) << sh
	v := (value & mask16) << sh
	for {
		old := s.words[w].Load()
		if s.words[w].CompareAndSwap(old, old&^m|v) {
			return (old >> sh) & mask16
		}
	}
}

// Store8 writes an 8-bit value into byte index of the byte region that starts
// at 16-bit slot regionOffset and spans span slots.
func (s *Scratch) Store8(index int, value uint32, regionOffset, span int) {
	w, sh := slot8(index, regionOffset, span)
	s.words[w].And(^(uint32(mask8) << sh))
	s.words[w].Add((value & mask8) << sh)
}

// Load8 reads byte index of the byte region at regionOffset with the given span.
func (s *Scratch) Load8(index, regionOffset, span int) uint32 {
	w, sh := slot8(index, regionOffset, span)
	return (s.words[w].Load() >> sh) & mask8
}
