// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raysort

import (
	"fmt"

	"github.com/gogpu/raysort/internal/rayfmt"
)

// RayBuffer is a 2D buffer of packed RG11B10Ufloat ray texels, row-major
// with row stride Width.
type RayBuffer struct {
	Width  int
	Height int
	Texels []uint32
}

// NewRayBuffer allocates a buffer of disabled rays.
func NewRayBuffer(width, height int) *RayBuffer {
	return &RayBuffer{Width: width, Height: height, Texels: make([]uint32, width*height)}
}

// Set stores the ray at (x, y). The direction need not be normalised; a
// depth of zero or less disables the ray.
func (b *RayBuffer) Set(x, y int, dx, dy, dz, depth float32) {
	b.Texels[y*b.Width+x] = PackRay(dx, dy, dz, depth)
}

// At returns the unit direction and origin depth of the ray at (x, y).
func (b *RayBuffer) At(x, y int) (dx, dy, dz, depth float32) {
	return UnpackRay(b.Texels[y*b.Width+x])
}

// Enabled reports whether the ray at (x, y) has a nonzero depth.
func (b *RayBuffer) Enabled(x, y int) bool {
	return rayfmt.DepthBits(b.Texels[y*b.Width+x]) != 0
}

func (b *RayBuffer) check() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 || len(b.Texels) != b.Width*b.Height {
		return fmt.Errorf("%w: ray buffer", ErrBufferSize)
	}
	return nil
}

// PackRay encodes a direction and origin depth as one ray texel. The
// direction is stored as an octahedral code, the depth as a 10-bit
// unsigned float.
func PackRay(dx, dy, dz, depth float32) uint32 {
	u, v := rayfmt.OctEncode(dx, dy, dz)
	return rayfmt.PackRG11B10(u, v, depth)
}

// UnpackRay decodes a ray texel into a unit direction and origin depth.
func UnpackRay(t uint32) (dx, dy, dz, depth float32) {
	u, v, d := rayfmt.UnpackRG11B10(t)
	dx, dy, dz = rayfmt.OctDecode(min(u, 1), min(v, 1))
	return dx, dy, dz, d
}

// IndexBuffer is a 2D buffer of packed index texels: x in bits 0-14, the
// inactive flag in bit 15, y in bits 16-31.
type IndexBuffer struct {
	Width  int
	Height int
	Texels []uint32
}

// NewIndexBuffer allocates a zeroed index buffer.
func NewIndexBuffer(width, height int) *IndexBuffer {
	return &IndexBuffer{Width: width, Height: height, Texels: make([]uint32, width*height)}
}

// At returns the coordinate stored at (x, y) and its inactive flag.
func (b *IndexBuffer) At(x, y int) (ix, iy int, inactive bool) {
	return rayfmt.UnpackIndex(b.Texels[y*b.Width+x])
}

// PackIndex packs a buffer coordinate and inactive flag into an index texel.
func PackIndex(x, y int, inactive bool) uint32 {
	return rayfmt.PackIndex(x, y, inactive)
}

// UnpackIndex reverses PackIndex.
func UnpackIndex(t uint32) (x, y int, inactive bool) {
	return rayfmt.UnpackIndex(t)
}

// SortOutput holds the output buffers of a sort. SortedToSource is always
// written. SourceToSorted is written when the kernel has Inverse set, and
// Debug, which holds raw hash keys rather than index texels, when it has
// Debug set. Texels outside the active rectangle are left untouched.
type SortOutput struct {
	SortedToSource *IndexBuffer
	SourceToSorted *IndexBuffer
	Debug          *IndexBuffer
}

// NewSortOutput allocates the outputs cfg writes for a width x height buffer.
func NewSortOutput(cfg KernelConfig, width, height int) *SortOutput {
	out := &SortOutput{SortedToSource: NewIndexBuffer(width, height)}
	if cfg.Inverse {
		out.SourceToSorted = NewIndexBuffer(width, height)
	}
	if cfg.Debug {
		out.Debug = NewIndexBuffer(width, height)
	}
	return out
}

// check verifies that every output cfg writes is present and matches rays.
func (o *SortOutput) check(cfg KernelConfig, rays *RayBuffer) error {
	match := func(name string, b *IndexBuffer, required bool) error {
		if b == nil {
			if required {
				return fmt.Errorf("%w: %s", ErrMissingOutput, name)
			}
			return nil
		}
		if b.Width != rays.Width || b.Height != rays.Height || len(b.Texels) != b.Width*b.Height {
			return fmt.Errorf("%w: %s is %dx%d, rays are %dx%d",
				ErrBufferSize, name, b.Width, b.Height, rays.Width, rays.Height)
		}
		return nil
	}
	if o == nil {
		return fmt.Errorf("%w: sort output", ErrMissingOutput)
	}
	if err := match("sorted to source", o.SortedToSource, true); err != nil {
		return err
	}
	if err := match("source to sorted", o.SourceToSorted, cfg.Inverse); err != nil {
		return err
	}
	return match("debug", o.Debug, cfg.Debug)
}
