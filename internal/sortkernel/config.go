// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortkernel

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/raysort/internal/groupshared"
	"github.com/gogpu/raysort/internal/workgroup"
)

// Limits of the shared-memory packing scheme.
const (
	// MaxRays is the largest tile the 13-bit index field can address.
	MaxRays = 1 << 13

	// MaxHashBits is the payload width of a hash key. The inactive sentinel
	// takes the next bit, for 13 bits total.
	MaxHashBits = 12

	// MaxDirectionBits bounds B so that the 2B-bit direction key fits the
	// 8-bit direction cache.
	MaxDirectionBits = 4

	// MaxQuadrantBits bounds Q; a tile has four quadrants.
	MaxQuadrantBits = 2
)

// Configuration errors. Kernels outside these bounds are never built.
var (
	// ErrKeyTooWide is returned when D+2B+Q exceeds MaxHashBits.
	ErrKeyTooWide = errors.New("sortkernel: hash key exceeds 12 bits")

	// ErrDirectionTooWide is returned when B exceeds MaxDirectionBits.
	ErrDirectionTooWide = errors.New("sortkernel: direction key exceeds 8-bit cache")

	// ErrTileTooLarge is returned when a tile holds more than MaxRays rays.
	ErrTileTooLarge = errors.New("sortkernel: tile exceeds 8192 rays")

	// ErrScratchOverflow is returned when the scratch layout does not fit.
	ErrScratchOverflow = errors.New("sortkernel: layout exceeds shared scratch")

	// ErrInvalidTile is returned for non power-of-two tile dimensions.
	ErrInvalidTile = errors.New("sortkernel: tile dimensions must be powers of two")

	// ErrInvalidLanes is returned for an unusable lane or wave count.
	ErrInvalidLanes = errors.New("sortkernel: invalid lane configuration")
)

// DepthRangeMode selects how the tile depth range is reduced.
type DepthRangeMode uint8

const (
	// DepthRangeExact reduces over every ray of the tile.
	DepthRangeExact DepthRangeMode = iota

	// DepthRangeSampled estimates the range from one sample per lane of the
	// first wave. Rays outside the estimate clamp to the first or last depth
	// bin, so bucket boundaries may be biased.
	DepthRangeSampled
)

// String returns the mode name.
func (m DepthRangeMode) String() string {
	switch m {
	case DepthRangeExact:
		return "exact"
	case DepthRangeSampled:
		return "sampled"
	default:
		return fmt.Sprintf("DepthRangeMode(%d)", m)
	}
}

// ScanMode selects the exclusive prefix sum implementation.
type ScanMode uint8

const (
	// ScanBlelloch is the work-efficient up-sweep/down-sweep scan.
	ScanBlelloch ScanMode = iota

	// ScanWave combines wave prefix sums with a scan of per-wave totals.
	ScanWave
)

// String returns the mode name.
func (m ScanMode) String() string {
	switch m {
	case ScanBlelloch:
		return "blelloch"
	case ScanWave:
		return "wave"
	default:
		return fmt.Sprintf("ScanMode(%d)", m)
	}
}

// Config holds the compile-time constants of one kernel instance.
type Config struct {
	TileWidth  int
	TileHeight int

	Lanes    int
	WaveSize int

	DepthBits     int // D
	DirectionBits int // B, per axis
	QuadrantBits  int // Q

	DepthRange DepthRangeMode
	Scan       ScanMode

	// Inverse enables the source to sorted output.
	Inverse bool

	// Debug enables the per-position hash key output.
	Debug bool
}

// Rays returns the number of ray slots per tile.
func (c Config) Rays() int { return c.TileWidth * c.TileHeight }

// HashBits returns D+2B+Q.
func (c Config) HashBits() int { return c.DepthBits + 2*c.DirectionBits + c.QuadrantBits }

// Keys returns the number of histogram buckets.
func (c Config) Keys() int { return 1 << c.HashBits() }

// InactiveKey returns the sentinel key of disabled rays.
func (c Config) InactiveKey() uint32 { return uint32(1) << c.HashBits() }

func (c Config) shape() workgroup.Shape {
	return workgroup.Shape{Lanes: c.Lanes, WaveSize: c.WaveSize}
}

func isPow2(n int) bool { return n > 0 && bits.OnesCount(uint(n)) == 1 }

// Validate checks the configuration against the packing limits.
func (c Config) Validate() error {
	if !isPow2(c.TileWidth) || !isPow2(c.TileHeight) || c.Rays() < 2 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTile, c.TileWidth, c.TileHeight)
	}
	if c.Rays() > MaxRays {
		return fmt.Errorf("%w: %dx%d = %d rays", ErrTileTooLarge, c.TileWidth, c.TileHeight, c.Rays())
	}
	if err := c.shape().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLanes, err)
	}
	if c.WaveSize < 2 {
		return fmt.Errorf("%w: wave size %d", ErrInvalidLanes, c.WaveSize)
	}
	if c.DirectionBits < 0 || c.DirectionBits > MaxDirectionBits {
		return fmt.Errorf("%w: B=%d", ErrDirectionTooWide, c.DirectionBits)
	}
	if c.DepthBits < 0 || c.QuadrantBits < 0 || c.QuadrantBits > MaxQuadrantBits {
		return fmt.Errorf("%w: D=%d Q=%d", ErrKeyTooWide, c.DepthBits, c.QuadrantBits)
	}
	if c.HashBits() > MaxHashBits {
		return fmt.Errorf("%w: D=%d B=%d Q=%d is %d bits", ErrKeyTooWide,
			c.DepthBits, c.DirectionBits, c.QuadrantBits, c.HashBits())
	}
	if c.DepthRange > DepthRangeSampled || c.Scan > ScanWave {
		return fmt.Errorf("sortkernel: unknown mode %v/%v", c.DepthRange, c.Scan)
	}
	_, err := NewLayout(c)
	return err
}

// Layout places the time-multiplexed scratch regions, in 16-bit slots.
//
//	[0, N/2)            direction bytes -> control slots -> inverse segment A
//	[N/2, 3N/2)         depth -> hash keys -> sorted entries
//	[3N/2, 3N/2+H)      depth partials -> histogram -> slot counters
//	[3N/2, 2N)          inverse segment B, once the counters are dead
//
// H is max(K, 2*waves).
type Layout struct {
	Rays int
	Keys int

	DirOffset int
	DirSpan   int

	KeysOffset int
	KeysLen    int

	HistOffset int
	HistLen    int

	ControlLen int

	InverseBOffset int
}

// NewLayout computes the scratch layout for c.
func NewLayout(c Config) (Layout, error) {
	n := c.Rays()
	waves := c.Lanes / c.WaveSize
	l := Layout{
		Rays:           n,
		Keys:           c.Keys(),
		DirOffset:      0,
		DirSpan:        n / 2,
		KeysOffset:     n / 2,
		KeysLen:        n,
		HistOffset:     n + n/2,
		HistLen:        max(c.Keys(), 2*waves),
		ControlLen:     n / 2,
		InverseBOffset: n + n/2,
	}
	if end := l.HistOffset + l.HistLen; end > groupshared.Slots16 {
		return l, fmt.Errorf("%w: histogram ends at slot %d", ErrScratchOverflow, end)
	}
	if end := l.InverseBOffset + n/2; end > groupshared.Slots16 {
		return l, fmt.Errorf("%w: inverse map ends at slot %d", ErrScratchOverflow, end)
	}
	if l.ControlLen < 1+waves {
		return l, fmt.Errorf("%w: %d control slots for %d waves", ErrScratchOverflow, l.ControlLen, waves)
	}
	return l, nil
}

// regions are the typed views of one layout over one scratch buffer.
type regions struct {
	dir     groupshared.Region8
	control groupshared.Region16
	keys    groupshared.Region16
	hist    groupshared.Region16
	inverse groupshared.SplitRegion16
}

func (l Layout) bind(s *groupshared.Scratch) regions {
	return regions{
		dir:     s.Region8("dir", l.DirOffset, l.DirSpan),
		control: s.Region16("control", l.DirOffset, l.ControlLen),
		keys:    s.Region16("keys", l.KeysOffset, l.KeysLen),
		hist:    s.Region16("hist", l.HistOffset, l.HistLen),
		inverse: groupshared.Split(
			s.Region16("inverse.a", l.DirOffset, l.Rays/2),
			s.Region16("inverse.b", l.InverseBOffset, l.Rays-l.Rays/2),
		),
	}
}
