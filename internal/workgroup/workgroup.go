// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package workgroup executes one compute workgroup on the CPU.
//
// A workgroup is a fixed set of lanes. Each lane is a goroutine running the
// same kernel function. Lanes are grouped into waves of WaveSize consecutive
// lanes. The group as a whole is not in lockstep: the only cross-wave
// synchronisation is Lane.Sync, a full group barrier. Inside a wave, the
// collective operations (WaveMin, WaveMax, WaveSum, WavePrefixSum)
// behave like hardware wave intrinsics: every lane of the wave
// must call the same collective, and each call is a rendezvous of that wave.
//
// Lanes that have nothing to contribute to a collective still call it with
// the operation's identity value, which is how inactive lanes behave on the
// hardware being modelled.
package workgroup

import (
	"errors"
	"fmt"
	"sync"
)

// Errors returned by Dispatch.
var (
	// ErrInvalidShape is returned when the lane or wave counts are unusable.
	ErrInvalidShape = errors.New("workgroup: lane count must be a positive multiple of wave size")

	// ErrLanePanic is returned when a lane panicked while running the kernel.
	ErrLanePanic = errors.New("workgroup: lane panicked")
)

// Shape describes the execution layout of one workgroup.
type Shape struct {
	// Lanes is the number of lanes in the workgroup.
	Lanes int

	// WaveSize is the number of lanes per wave.
	WaveSize int
}

// Waves returns the number of waves in the workgroup.
func (s Shape) Waves() int {
	return s.Lanes / s.WaveSize
}

// Validate reports whether the shape can be dispatched.
func (s Shape) Validate() error {
	if s.Lanes <= 0 || s.WaveSize <= 0 || s.Lanes%s.WaveSize != 0 {
		return fmt.Errorf("%w: lanes=%d wave=%d", ErrInvalidShape, s.Lanes, s.WaveSize)
	}
	return nil
}

// wave is the rendezvous state shared by the lanes of one wave.
type wave struct {
	barrier *Barrier
	vals    []uint32
}

// group is the state shared by all lanes of one dispatch.
type group struct {
	shape   Shape
	barrier *Barrier
	waves   []*wave

	abortOnce sync.Once
	failure   error
}

func (g *group) abort(lane int, r any) {
	g.abortOnce.Do(func() {
		g.failure = fmt.Errorf("%w: lane %d: %v", ErrLanePanic, lane, r)
		g.barrier.Break()
		for _, w := range g.waves {
			w.barrier.Break()
		}
	})
}

// Lane is the execution context handed to the kernel function.
// A Lane must only be used by the goroutine it was handed to.
type Lane struct {
	g      *group
	id     int
	waveID int
	inWave int
	w      *wave
}

// Dispatch runs kernel on every lane of a workgroup with the given shape and
// returns once all lanes have returned. If any lane panics, the remaining
// lanes are released from their barriers and Dispatch returns ErrLanePanic.
func Dispatch(shape Shape, kernel func(l *Lane)) error {
	if err := shape.Validate(); err != nil {
		return err
	}

	g := &group{
		shape:   shape,
		barrier: NewBarrier(shape.Lanes),
		waves:   make([]*wave, shape.Waves()),
	}
	for i := range g.waves {
		g.waves[i] = &wave{
			barrier: NewBarrier(shape.WaveSize),
			vals:    make([]uint32, shape.WaveSize),
		}
	}

	var wg sync.WaitGroup
	wg.Add(shape.Lanes)
	for id := range shape.Lanes {
		l := &Lane{
			g:      g,
			id:     id,
			waveID: id / shape.WaveSize,
			inWave: id % shape.WaveSize,
		}
		l.w = g.waves[l.waveID]
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil && r != errAborted {
					g.abort(l.id, r)
				}
			}()
			kernel(l)
		}()
	}
	wg.Wait()

	return g.failure
}

// ID returns the lane index within the workgroup.
func (l *Lane) ID() int { return l.id }

// Count returns the number of lanes in the workgroup.
func (l *Lane) Count() int { return l.g.shape.Lanes }

// WaveID returns the index of the lane's wave.
func (l *Lane) WaveID() int { return l.waveID }

// WaveLane returns the lane index within its wave.
func (l *Lane) WaveLane() int { return l.inWave }

// WaveSize returns the number of lanes per wave.
func (l *Lane) WaveSize() int { return l.g.shape.WaveSize }

// WaveCount returns the number of waves in the workgroup.
func (l *Lane) WaveCount() int { return len(l.g.waves) }

// IsWaveLeader reports whether the lane is the first lane of its wave.
func (l *Lane) IsWaveLeader() bool { return l.inWave == 0 }

// Sync is a full workgroup barrier. Scratch writes made by any lane before
// Sync are visible to every lane after it.
func (l *Lane) Sync() {
	l.g.barrier.Wait()
}

// exchange publishes v to the wave, waits for every lane of the wave, and
// returns the published values. The slice is only valid until release.
func (l *Lane) exchange(v uint32) []uint32 {
	l.w.vals[l.inWave] = v
	l.w.barrier.Wait()
	return l.w.vals
}

// release ends a collective so the wave's value slots can be reused.
func (l *Lane) release() {
	l.w.barrier.Wait()
}

// WaveMin returns the minimum of v across the lane's wave.
func (l *Lane) WaveMin(v uint32) uint32 {
	vals := l.exchange(v)
	m := vals[0]
	for _, x := range vals[1:] {
		m = min(m, x)
	}
	l.release()
	return m
}

// WaveMax returns the maximum of v across the lane's wave.
func (l *Lane) WaveMax(v uint32) uint32 {
	vals := l.exchange(v)
	m := vals[0]
	for _, x := range vals[1:] {
		m = max(m, x)
	}
	l.release()
	return m
}

// WaveSum returns the sum of v across the lane's wave.
func (l *Lane) WaveSum(v uint32) uint32 {
	vals := l.exchange(v)
	var s uint32
	for _, x := range vals {
		s += x
	}
	l.release()
	return s
}

// WavePrefixSum returns the exclusive prefix sum of v over the lanes of the
// wave that precede this lane.
func (l *Lane) WavePrefixSum(v uint32) uint32 {
	vals := l.exchange(v)
	var s uint32
	for _, x := range vals[:l.inWave] {
		s += x
	}
	l.release()
	return s
}
