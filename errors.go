// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package raysort

import (
	"errors"

	"github.com/gogpu/raysort/internal/sortkernel"
)

// Configuration errors returned by KernelConfig.Validate, NewSorter, and
// Verify. They are always wrapped with the offending values; test with
// errors.Is.
var (
	ErrKeyTooWide       = sortkernel.ErrKeyTooWide
	ErrDirectionTooWide = sortkernel.ErrDirectionTooWide
	ErrTileTooLarge     = sortkernel.ErrTileTooLarge
	ErrScratchOverflow  = sortkernel.ErrScratchOverflow
	ErrInvalidTile      = sortkernel.ErrInvalidTile
	ErrInvalidLanes     = sortkernel.ErrInvalidLanes
)

// Host errors returned by Sort.
var (
	// ErrBufferSize is returned when a buffer's texel count does not match
	// its dimensions, or the outputs do not match the input.
	ErrBufferSize = errors.New("raysort: buffer size mismatch")

	// ErrActiveBounds is returned when the active rectangle does not fit
	// the ray buffer.
	ErrActiveBounds = errors.New("raysort: active rectangle outside buffer")

	// ErrMissingOutput is returned when the kernel is configured with an
	// optional output that the caller did not provide.
	ErrMissingOutput = errors.New("raysort: missing output buffer")

	// ErrSorterClosed is returned by Sort after Close.
	ErrSorterClosed = errors.New("raysort: sorter closed")

	// ErrNotSorted is returned by Verify when the outputs are not a valid
	// sort of the input.
	ErrNotSorted = errors.New("raysort: output is not a valid sort")
)
