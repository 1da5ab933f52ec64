// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu runs the ray sort kernel as a WGSL compute shader on
// gogpu/wgpu (Pure Go WebGPU, zero CGO).
//
// This is an internal package. Applications enable it with a blank import
// of github.com/gogpu/raysort/gpu, which registers a SortAccelerator with
// the raysort package.
//
// # Kernel
//
// shaders/raysort.wgsl is the GPU twin of internal/sortkernel: one
// workgroup per tile, the same five phases, and the same time-multiplexed
// 32 KiB scratch layout. The kernel constants (tile size, lanes, key
// widths, modes, optional outputs) are substituted into the source before
// it is compiled to SPIR-V with naga, so each configuration gets its own
// pipeline.
//
// Subgroup operations stand in for the CPU reference's wave collectives.
// The subgroup size is only known on the device, so the scratch layout is
// sized for subgroups of 4 or more invocations.
//
// # Dispatch
//
// SortDispatcher owns one pipeline and performs a whole frame per call:
// upload rays and parameters, dispatch one workgroup per tile, copy the
// index maps and the per-tile statistics into a staging buffer, and read
// them back.
//
// # Fallback
//
// Every failure, from a missing Vulkan backend to a shader the driver
// rejects, is reported as raysort.ErrFallbackToCPU, and the sorter runs
// the CPU reference instead.
//
// # Build Tags
//
// Build with -tags nogpu to exclude this package entirely.
package gpu
