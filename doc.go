// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package raysort reorders SSAO occlusion rays inside screen tiles so that
// rays with similar direction and origin depth are traced by neighbouring
// lanes.
//
// # Overview
//
// Each tile is sorted by one workgroup with a counting sort keyed on a small
// hash of the ray: a depth bin relative to the tile's depth range, a
// quantised direction, and the tile quadrant. The sort produces a
// sorted-to-source index map and, optionally, its inverse and the hash key
// of every sorted ray.
//
// # Quick Start
//
//	rays := raysort.NewRayBuffer(1920, 1080)
//	rays.Set(x, y, dx, dy, dz, depth) // per pixel
//
//	sorter := raysort.MustNewSorter()
//	defer sorter.Close()
//
//	res, err := sorter.Sort(ctx, rays, raysort.DefaultDispatchParams(1920, 1080))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sx, sy, inactive := res.Output.SortedToSource.At(x, y)
//
// # Ray Format
//
// Rays are RG11B10Ufloat texels: an octahedral direction code in R and G and
// the origin depth in B. Depth 0 disables a ray. Disabled rays are sorted to
// the end of their tile and their index texels carry the inactive flag.
//
// # GPU Acceleration
//
// The CPU reference runs every workgroup as a set of goroutines sharing one
// scratch buffer. A GPU accelerator running the same kernel in WGSL is
// enabled by a blank import:
//
//	import _ "github.com/gogpu/raysort/gpu"
//
// When the accelerator is unavailable or fails, Sort falls back to the CPU
// reference transparently.
//
// # Logging
//
// raysort is silent by default. See SetLogger.
package raysort
