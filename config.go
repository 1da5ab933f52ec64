// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raysort

import "github.com/gogpu/raysort/internal/sortkernel"

// KernelConfig holds the compile-time constants of the sort kernel: tile
// size, lane and wave counts, hash key widths, depth range and scan modes,
// and the optional outputs. Validate reports configurations that the
// shared-memory packing cannot hold.
type KernelConfig = sortkernel.Config

// DispatchParams are the per-frame parameters: the active rectangle, the
// direction encoding, and the minimum depth bin size.
type DispatchParams = sortkernel.Params

// DepthRange is a tile's depth range as raw unsigned float bits.
type DepthRange = sortkernel.DepthRange

// TileStats describes one sorted tile.
type TileStats = sortkernel.TileStats

// DepthRangeMode selects how the tile depth range is reduced.
type DepthRangeMode = sortkernel.DepthRangeMode

// Depth range modes.
const (
	DepthRangeExact   = sortkernel.DepthRangeExact
	DepthRangeSampled = sortkernel.DepthRangeSampled
)

// ScanMode selects the exclusive prefix sum of the histogram.
type ScanMode = sortkernel.ScanMode

// Scan modes.
const (
	ScanBlelloch = sortkernel.ScanBlelloch
	ScanWave     = sortkernel.ScanWave
)

// DirectionEncoding selects how the direction sub-key is derived.
type DirectionEncoding = sortkernel.DirectionEncoding

// Direction encodings.
const (
	Octahedral = sortkernel.Octahedral
	Spherical  = sortkernel.Spherical
)

// Packing limits.
const (
	MaxTileRays      = sortkernel.MaxRays
	MaxHashBits      = sortkernel.MaxHashBits
	MaxDirectionBits = sortkernel.MaxDirectionBits
	MaxQuadrantBits  = sortkernel.MaxQuadrantBits
)

// DefaultKernelConfig returns the configuration used by NewSorter when no
// WithKernelConfig option is given: 64x64 tiles, 256 lanes in waves of 32,
// 4 depth bits, 3 direction bits per axis, 2 quadrant bits, exact depth
// range, Blelloch scan, and the inverse map enabled.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		TileWidth:     64,
		TileHeight:    64,
		Lanes:         256,
		WaveSize:      32,
		DepthBits:     4,
		DirectionBits: 3,
		QuadrantBits:  2,
		DepthRange:    DepthRangeExact,
		Scan:          ScanBlelloch,
		Inverse:       true,
	}
}

// DefaultDispatchParams returns parameters sorting the whole of a width x
// height buffer with octahedral direction keys and no minimum bin size.
func DefaultDispatchParams(width, height int) DispatchParams {
	return DispatchParams{
		ActiveWidth:  width,
		ActiveHeight: height,
		Encoding:     Octahedral,
	}
}
