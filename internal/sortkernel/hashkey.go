// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortkernel

import (
	"math"

	"github.com/gogpu/raysort/internal/rayfmt"
)

// DirectionEncoding selects how the direction sub-key is derived.
type DirectionEncoding uint8

const (
	// Octahedral quantises the stored octahedral code directly.
	Octahedral DirectionEncoding = iota

	// Spherical decodes the direction and quantises azimuth and polar angle.
	Spherical
)

// String returns the encoding name.
func (e DirectionEncoding) String() string {
	if e == Spherical {
		return "spherical"
	}
	return "octahedral"
}

// DepthRange is a tile's depth range as raw 10-bit unsigned float bits.
type DepthRange struct {
	MinBits uint32
	MaxBits uint32
}

// Min returns the lower bound as a float.
func (r DepthRange) Min() float32 { return rayfmt.DecodeDepth(r.MinBits) }

// Max returns the upper bound as a float.
func (r DepthRange) Max() float32 { return rayfmt.DecodeDepth(r.MaxBits) }

// hasher builds hash keys for one tile once its depth range is known.
type hasher struct {
	depthBits, dirBits, quadBits int

	halfW, halfH int
	enc          DirectionEncoding

	minDepth float32
	binSize  float32
	inactive uint32
}

func newHasher(c Config, enc DirectionEncoding, minBinSize float32, r DepthRange) hasher {
	lo, hi := r.Min(), r.Max()
	bin := (hi - lo) / float32(uint32(1)<<c.DepthBits)
	return hasher{
		depthBits: c.DepthBits,
		dirBits:   c.DirectionBits,
		quadBits:  c.QuadrantBits,
		halfW:     c.TileWidth / 2,
		halfH:     c.TileHeight / 2,
		enc:       enc,
		minDepth:  lo,
		binSize:   max(bin, minBinSize),
		inactive:  c.InactiveKey(),
	}
}

// quantize maps t in [0,1] to one of 2^b bins.
func quantize(t float32, b int) uint32 {
	bins := uint32(1) << b
	if !(t > 0) {
		return 0
	}
	top := bins - 1
	return min(uint32(min(t*float32(bins), float32(top))), top)
}

// directionKey returns the 2B-bit direction sub-key of a ray texel.
func directionKey(texel uint32, b int, enc DirectionEncoding) uint32 {
	if b == 0 {
		return 0
	}
	u, v, _ := rayfmt.UnpackRG11B10(texel)
	if enc == Spherical {
		x, y, z := rayfmt.OctDecode(min(u, 1), min(v, 1))
		az := (math.Atan2(float64(y), float64(x)) + math.Pi) / (2 * math.Pi)
		polar := math.Acos(math.Max(-1, math.Min(1, float64(z)))) / math.Pi
		u, v = float32(az), float32(polar)
	}
	return quantize(u, b)<<b | quantize(v, b)
}

// depthKey returns the D-bit depth sub-key for raw depth bits.
func (h *hasher) depthKey(depthBits uint32) uint32 {
	if h.depthBits == 0 || !(h.binSize > 0) {
		return 0
	}
	t := (rayfmt.DecodeDepth(depthBits) - h.minDepth) / h.binSize
	if !(t > 0) {
		return 0
	}
	top := uint32(1)<<h.depthBits - 1
	return min(uint32(min(t, float32(top))), top)
}

// quadrantKey returns the Q-bit quadrant of tile-local slot (x, y).
func (h *hasher) quadrantKey(x, y int) uint32 {
	var q uint32
	if h.quadBits >= 1 && x >= h.halfW {
		q |= 1
	}
	if h.quadBits >= 2 && y >= h.halfH {
		q |= 2
	}
	return q
}

// compose packs the three sub-keys, or returns the inactive sentinel for a
// disabled ray.
func (h *hasher) compose(depthBits, dirKey uint32, x, y int) uint32 {
	if depthBits == 0 {
		return h.inactive
	}
	return h.depthKey(depthBits)<<(2*h.dirBits+h.quadBits) |
		dirKey<<h.quadBits |
		h.quadrantKey(x, y)
}

// key computes the full key of a ray straight from its input texel. It agrees
// with compose over the cached direction and depth.
func (h *hasher) key(texel uint32, x, y int) uint32 {
	return h.compose(rayfmt.DepthBits(texel), directionKey(texel, h.dirBits, h.enc), x, y)
}

// HashKey computes the key of one ray outside a kernel run, for verification
// and debugging tools.
func HashKey(c Config, enc DirectionEncoding, minBinSize float32, r DepthRange, texel uint32, x, y int) uint32 {
	h := newHasher(c, enc, minBinSize, r)
	return h.key(texel, x, y)
}
