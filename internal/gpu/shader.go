// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/raysort/internal/sortkernel"
)

//go:embed shaders/raysort.wgsl
var raysortShaderSource string

const (
	// constantsMarker is replaced by the generated constant block.
	constantsMarker = "//@raysort:constants"

	// minWaveSize is the smallest subgroup size the shader's scratch layout
	// reserves room for. Wave partials of smaller subgroups are dropped.
	minWaveSize = 4
)

// ErrShaderMarker is returned when the kernel source lacks the constants marker.
var ErrShaderMarker = errors.New("gpu: shader source has no constants marker")

// kernelLayout validates cfg for the GPU kernel and returns its scratch
// layout. The subgroup size is only known on the device, so the layout is
// sized for the smallest supported one.
func kernelLayout(cfg sortkernel.Config) (sortkernel.Layout, error) {
	c := cfg
	c.WaveSize = minWaveSize
	if err := c.Validate(); err != nil {
		return sortkernel.Layout{}, err
	}
	// The wave-total reduction halves MAX_WAVES each step.
	if c.Lanes&(c.Lanes-1) != 0 {
		return sortkernel.Layout{}, fmt.Errorf("%w: %d lanes is not a power of two",
			sortkernel.ErrInvalidLanes, c.Lanes)
	}
	return sortkernel.NewLayout(c)
}

// shaderConstants renders the WGSL constant block for one kernel instance.
func shaderConstants(cfg sortkernel.Config, l sortkernel.Layout) string {
	var b strings.Builder
	u32 := func(name string, v int) {
		fmt.Fprintf(&b, "const %s: u32 = %du;\n", name, v)
	}
	flag := func(name string, v bool) {
		fmt.Fprintf(&b, "const %s: bool = %t;\n", name, v)
	}

	u32("TILE_W", cfg.TileWidth)
	u32("TILE_H", cfg.TileHeight)
	u32("RAYS", l.Rays)
	u32("LANES", cfg.Lanes)
	u32("MAX_WAVES", cfg.Lanes/minWaveSize)
	u32("D_BITS", cfg.DepthBits)
	u32("B_BITS", cfg.DirectionBits)
	u32("Q_BITS", cfg.QuadrantBits)
	u32("KEYS", l.Keys)
	u32("INACTIVE_KEY", int(cfg.InactiveKey()))
	u32("DIR_OFF", l.DirOffset)
	u32("DIR_SPAN", l.DirSpan)
	u32("KEYS_OFF", l.KeysOffset)
	u32("HIST_OFF", l.HistOffset)
	u32("INV_B_OFF", l.InverseBOffset)
	flag("DEPTH_SAMPLED", cfg.DepthRange == sortkernel.DepthRangeSampled)
	flag("SCAN_WAVE", cfg.Scan == sortkernel.ScanWave)
	flag("WRITE_INVERSE", cfg.Inverse)
	flag("WRITE_DEBUG", cfg.Debug)
	return b.String()
}

// specialize substitutes the constant block into src.
func specialize(src string, cfg sortkernel.Config, l sortkernel.Layout) (string, error) {
	if !strings.Contains(src, constantsMarker) {
		return "", ErrShaderMarker
	}
	return strings.Replace(src, constantsMarker, shaderConstants(cfg, l), 1), nil
}

// ShaderSource returns the WGSL sort kernel specialised for cfg.
func ShaderSource(cfg sortkernel.Config) (string, error) {
	l, err := kernelLayout(cfg)
	if err != nil {
		return "", err
	}
	return specialize(raysortShaderSource, cfg, l)
}

// compileShaderToSPIRV compiles WGSL source to SPIR-V words.
func compileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}
