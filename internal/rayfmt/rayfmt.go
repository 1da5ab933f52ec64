// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rayfmt encodes and decodes the texel formats exchanged with the ray
// sorting kernel.
//
// Rays are stored in the RG11B10Ufloat layout: two 11-bit unsigned floats
// (5-bit exponent, 6-bit mantissa) in bits 0-10 and 11-21 carry the
// octahedral direction code, and a 10-bit unsigned float (5-bit exponent,
// 5-bit mantissa) in bits 22-31 carries the ray origin depth. The format has
// no sign bit, so direction codes live in [0,1] and depth 0 marks a disabled
// ray. Unsigned float bit patterns are ordered like the values they encode,
// which lets the kernel compare raw depth bits directly.
package rayfmt

import (
	"math"
)

const (
	mantissa11 = 6
	mantissa10 = 5
	ufBias     = 15
	ufMaxExp   = 30

	// DepthShift is the bit offset of the depth field in a ray texel.
	DepthShift = 22

	// DepthMask selects the 10 raw depth bits after shifting by DepthShift.
	DepthMask = 0x3FF
)

// encodeUfloat converts a float32 to an unsigned float with mant mantissa bits
// and a 5-bit exponent. Negative values, zero and NaN encode as 0; values past
// the largest finite value saturate. The mantissa is truncated.
func encodeUfloat(f float32, mant uint) uint32 {
	if !(f > 0) {
		return 0
	}
	if math.IsInf(float64(f), 1) {
		return ufMaxExp<<mant | (1<<mant - 1)
	}
	b := math.Float32bits(f)
	exp := int(b>>23&0xFF) - 127 + ufBias
	frac := b & 0x7FFFFF
	switch {
	case exp > ufMaxExp:
		return ufMaxExp<<mant | (1<<mant - 1)
	case exp <= 0:
		shift := 23 - int(mant) + 1 - exp
		if shift > 24 {
			return 0
		}
		return (frac | 0x800000) >> uint(shift)
	default:
		return uint32(exp)<<mant | frac>>(23-mant)
	}
}

// decodeUfloat converts an unsigned float with mant mantissa bits to float32.
func decodeUfloat(v uint32, mant uint) float32 {
	exp := int(v >> mant & 0x1F)
	frac := float64(v & (1<<mant - 1))
	scale := float64(uint32(1) << mant)
	switch exp {
	case 0:
		return float32(math.Ldexp(frac/scale, 1-ufBias))
	case 31:
		if frac == 0 {
			return float32(math.Inf(1))
		}
		return float32(math.NaN())
	default:
		return float32(math.Ldexp(1+frac/scale, exp-ufBias))
	}
}

// PackRG11B10 packs three non-negative floats into one RG11B10Ufloat texel.
func PackRG11B10(r, g, b float32) uint32 {
	return encodeUfloat(r, mantissa11) |
		encodeUfloat(g, mantissa11)<<11 |
		encodeUfloat(b, mantissa10)<<DepthShift
}

// UnpackRG11B10 unpacks an RG11B10Ufloat texel.
func UnpackRG11B10(t uint32) (r, g, b float32) {
	return decodeUfloat(t&0x7FF, mantissa11),
		decodeUfloat(t>>11&0x7FF, mantissa11),
		decodeUfloat(t>>DepthShift&DepthMask, mantissa10)
}

// DepthBits returns the raw 10-bit depth field of a ray texel.
func DepthBits(t uint32) uint32 {
	return t >> DepthShift & DepthMask
}

// DecodeDepth converts raw 10-bit depth bits to a float.
func DecodeDepth(bits uint32) float32 {
	return decodeUfloat(bits&DepthMask, mantissa10)
}

// EncodeDepth converts a depth to its raw 10-bit representation.
func EncodeDepth(d float32) uint32 {
	return encodeUfloat(d, mantissa10)
}

// OctEncode maps a unit vector to an octahedral code in [0,1]^2.
func OctEncode(x, y, z float32) (u, v float32) {
	l := abs32(x) + abs32(y) + abs32(z)
	if l == 0 {
		return 0.5, 0.5
	}
	px, py := x/l, y/l
	if z < 0 {
		px, py = (1-abs32(py))*signNotZero(px), (1-abs32(px))*signNotZero(py)
	}
	return px*0.5 + 0.5, py*0.5 + 0.5
}

// OctDecode maps an octahedral code in [0,1]^2 back to a unit vector.
func OctDecode(u, v float32) (x, y, z float32) {
	px, py := u*2-1, v*2-1
	pz := 1 - abs32(px) - abs32(py)
	if pz < 0 {
		px, py = (1-abs32(py))*signNotZero(px), (1-abs32(px))*signNotZero(py)
	}
	l := float32(math.Sqrt(float64(px*px + py*py + pz*pz)))
	return px / l, py / l, pz / l
}

func abs32(f float32) float32 {
	return math.Float32frombits(math.Float32bits(f) &^ (1 << 31))
}

func signNotZero(f float32) float32 {
	if f < 0 {
		return -1
	}
	return 1
}

// Index texel layout: x in bits 0-14, the inactive flag in bit 15, y in bits
// 16-31. This is an RG16Uint texel with the flag riding on the x channel.
const (
	// IndexInactive marks an index texel whose ray was disabled.
	IndexInactive = 1 << 15

	// MaxIndexCoord is the largest coordinate an index texel can address.
	MaxIndexCoord = 1<<15 - 1
)

// PackIndex packs a 2D buffer coordinate and the inactive flag.
func PackIndex(x, y int, inactive bool) uint32 {
	p := uint32(x)&MaxIndexCoord | uint32(y)<<16
	if inactive {
		p |= IndexInactive
	}
	return p
}

// UnpackIndex reverses PackIndex.
func UnpackIndex(p uint32) (x, y int, inactive bool) {
	return int(p & MaxIndexCoord), int(p >> 16), p&IndexInactive != 0
}
