// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raysort

import (
	"fmt"

	"github.com/gogpu/raysort/internal/parallel"
	"github.com/gogpu/raysort/internal/rayfmt"
	"github.com/gogpu/raysort/internal/sortkernel"
)

// Verify checks that out is a valid sort of the active rectangle of rays
// under cfg and params. Per tile it checks that:
//
//   - sorted to source is a permutation of the tile's in-bounds slots
//   - each entry's inactive flag matches its source ray
//   - hash keys do not decrease along sorted positions, with disabled rays last
//   - source to sorted, when written, inverts sorted to source
//   - debug keys, when written, match the keys of the sorted rays
//
// Keys are recomputed from the exact tile depth range. With a sampled depth
// range the kernel's range is not recoverable, so key order is checked on
// the debug output when present and skipped otherwise.
//
// The first violation is returned wrapped in ErrNotSorted.
func Verify(rays *RayBuffer, params DispatchParams, cfg KernelConfig, out *SortOutput) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("raysort: %w", err)
	}
	if err := checkSort(cfg, rays, params, out); err != nil {
		return err
	}

	v := verifier{cfg: cfg, rays: rays, params: params, out: out}
	grid := parallel.NewTileGrid(params.ActiveWidth, params.ActiveHeight, cfg.TileWidth, cfg.TileHeight)
	for i := range grid.TileCount() {
		if err := v.tile(grid.Tile(i)); err != nil {
			return err
		}
	}
	return nil
}

type verifier struct {
	cfg    KernelConfig
	rays   *RayBuffer
	params DispatchParams
	out    *SortOutput
}

func (v *verifier) fail(t *parallel.Tile, format string, args ...any) error {
	return fmt.Errorf("%w: tile (%d,%d): %s", ErrNotSorted, t.X, t.Y, fmt.Sprintf(format, args...))
}

func (v *verifier) depthBits(x, y int) uint32 {
	return rayfmt.DepthBits(v.rays.Texels[y*v.rays.Width+x])
}

// exactRange returns the depth range over the tile's enabled rays.
func (v *verifier) exactRange(t *parallel.Tile) DepthRange {
	var r DepthRange
	for y := t.OriginY; y < t.OriginY+t.Height; y++ {
		for x := t.OriginX; x < t.OriginX+t.Width; x++ {
			d := v.depthBits(x, y)
			if d == 0 {
				continue
			}
			if r.MinBits == 0 || d < r.MinBits {
				r.MinBits = d
			}
			r.MaxBits = max(r.MaxBits, d)
		}
	}
	return r
}

func (v *verifier) tile(t *parallel.Tile) error {
	w := v.rays.Width
	n := t.Rays()
	seen := make([]bool, n)

	exact := v.cfg.DepthRange == DepthRangeExact
	var rng DepthRange
	if exact {
		rng = v.exactRange(t)
	}
	inactiveKey := v.cfg.InactiveKey()

	var prev uint32
	for p := range n {
		px, py := t.OriginX+p%t.Width, t.OriginY+p/t.Width
		dst := py*w + px

		sx, sy, inactive := rayfmt.UnpackIndex(v.out.SortedToSource.Texels[dst])
		if !t.Contains(sx, sy) {
			return v.fail(t, "position %d maps to (%d,%d) outside the tile", p, sx, sy)
		}
		local := (sy-t.OriginY)*t.Width + sx - t.OriginX
		if seen[local] {
			return v.fail(t, "source (%d,%d) appears twice", sx, sy)
		}
		seen[local] = true

		disabled := v.depthBits(sx, sy) == 0
		if inactive != disabled {
			return v.fail(t, "source (%d,%d) inactive flag %t, depth zero %t", sx, sy, inactive, disabled)
		}

		var key uint32
		haveKey := true
		switch {
		case exact:
			key = sortkernel.HashKey(v.cfg, v.params.Encoding, v.params.MinBinSize, rng,
				v.rays.Texels[sy*w+sx], sx-t.OriginX, sy-t.OriginY)
			if v.cfg.Debug && v.out.Debug.Texels[dst] != key {
				return v.fail(t, "debug key at %d is %d, want %d", p, v.out.Debug.Texels[dst], key)
			}
		case v.cfg.Debug:
			key = v.out.Debug.Texels[dst]
			if (key == inactiveKey) != disabled {
				return v.fail(t, "debug key at %d is %d for depth zero %t", p, key, disabled)
			}
		default:
			haveKey = false
		}
		if haveKey {
			if p > 0 && key < prev {
				return v.fail(t, "key %d at position %d follows key %d", key, p, prev)
			}
			prev = key
		}

		if v.cfg.Inverse {
			ix, iy, iInactive := rayfmt.UnpackIndex(v.out.SourceToSorted.Texels[sy*w+sx])
			if ix != px || iy != py || iInactive != disabled {
				return v.fail(t, "inverse of (%d,%d) is (%d,%d), want (%d,%d)", sx, sy, ix, iy, px, py)
			}
		}
	}
	return nil
}
