// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/naga"

	"github.com/gogpu/raysort/internal/sortkernel"
)

func testKernelConfig() sortkernel.Config {
	return sortkernel.Config{
		TileWidth:     64,
		TileHeight:    64,
		Lanes:         256,
		WaveSize:      32,
		DepthBits:     4,
		DirectionBits: 3,
		QuadrantBits:  2,
		Inverse:       true,
	}
}

// skipNagaLimitation skips the test when err is a known gap in naga rather
// than a defect in the kernel source.
func skipNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	for _, known := range []string{"not yet implemented", "not supported", "lowering error", "atomic", "subgroup"} {
		if strings.Contains(msg, known) {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
	}
}

func TestShaderSourceHasMarker(t *testing.T) {
	if raysortShaderSource == "" {
		t.Fatal("raysort shader source is empty")
	}
	if !strings.Contains(raysortShaderSource, constantsMarker) {
		t.Fatal("raysort shader source has no constants marker")
	}
	if !strings.HasPrefix(raysortShaderSource, "enable subgroups;") {
		t.Error("raysort shader must enable subgroups first")
	}
}

func TestShaderConstants(t *testing.T) {
	cfg := testKernelConfig()
	src, err := ShaderSource(cfg)
	if err != nil {
		t.Fatalf("ShaderSource() = %v", err)
	}
	if strings.Contains(src, constantsMarker) {
		t.Error("specialised source still contains the constants marker")
	}

	want := []string{
		"const TILE_W: u32 = 64u;",
		"const TILE_H: u32 = 64u;",
		"const RAYS: u32 = 4096u;",
		"const LANES: u32 = 256u;",
		"const MAX_WAVES: u32 = 64u;",
		"const KEYS: u32 = 4096u;",
		"const INACTIVE_KEY: u32 = 4096u;",
		"const KEYS_OFF: u32 = 2048u;",
		"const HIST_OFF: u32 = 6144u;",
		"const INV_B_OFF: u32 = 6144u;",
		"const DEPTH_SAMPLED: bool = false;",
		"const SCAN_WAVE: bool = false;",
		"const WRITE_INVERSE: bool = true;",
		"const WRITE_DEBUG: bool = false;",
	}
	for _, w := range want {
		if !strings.Contains(src, w) {
			t.Errorf("specialised source missing %q", w)
		}
	}
}

func TestSpecializeWithoutMarker(t *testing.T) {
	cfg := testKernelConfig()
	l, err := kernelLayout(cfg)
	if err != nil {
		t.Fatalf("kernelLayout() = %v", err)
	}
	if _, err := specialize("fn main() {}", cfg, l); !errors.Is(err, ErrShaderMarker) {
		t.Errorf("specialize() = %v, want ErrShaderMarker", err)
	}
}

func TestKernelLayoutMinWave(t *testing.T) {
	// Valid on the CPU with waves of 32, but an 8x8 tile has too few
	// control slots for 64 subgroups of 4.
	cfg := testKernelConfig()
	cfg.TileWidth, cfg.TileHeight = 8, 8
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if _, err := kernelLayout(cfg); !errors.Is(err, sortkernel.ErrScratchOverflow) {
		t.Errorf("kernelLayout() = %v, want ErrScratchOverflow", err)
	}

	// The configured wave size does not change the GPU layout.
	a, b := testKernelConfig(), testKernelConfig()
	b.WaveSize = 64
	la, _ := kernelLayout(a)
	lb, _ := kernelLayout(b)
	if la != lb {
		t.Errorf("layout depends on wave size: %+v vs %+v", la, lb)
	}
}

func TestKernelLayoutLanes(t *testing.T) {
	tests := []struct {
		lanes   int
		wantErr bool
	}{
		{64, false},
		{128, false},
		{256, false},
		{96, true},
		{160, true},
	}
	for _, tt := range tests {
		cfg := testKernelConfig()
		cfg.Lanes = tt.lanes
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(lanes=%d) = %v", tt.lanes, err)
		}
		_, err := kernelLayout(cfg)
		if got := err != nil; got != tt.wantErr {
			t.Errorf("kernelLayout(lanes=%d) error = %v, want error %v", tt.lanes, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, sortkernel.ErrInvalidLanes) {
			t.Errorf("kernelLayout(lanes=%d) = %v, want ErrInvalidLanes", tt.lanes, err)
		}
	}
}

func TestRaysortShaderCompilation(t *testing.T) {
	configs := map[string]func(*sortkernel.Config){
		"default":  func(*sortkernel.Config) {},
		"sampled":  func(c *sortkernel.Config) { c.DepthRange = sortkernel.DepthRangeSampled },
		"wavescan": func(c *sortkernel.Config) { c.Scan = sortkernel.ScanWave },
		"debug":    func(c *sortkernel.Config) { c.Debug = true; c.Inverse = false },
	}
	for name, modify := range configs {
		t.Run(name, func(t *testing.T) {
			cfg := testKernelConfig()
			modify(&cfg)
			src, err := ShaderSource(cfg)
			if err != nil {
				t.Fatalf("ShaderSource() = %v", err)
			}

			spirvBytes, err := naga.Compile(src)
			if err != nil {
				skipNagaLimitation(t, err)
				t.Fatalf("failed to compile raysort shader: %v", err)
			}

			// Verify SPIR-V magic number (0x07230203)
			if len(spirvBytes) < 4 {
				t.Fatal("SPIR-V too short")
			}
			magic := uint32(spirvBytes[0]) |
				uint32(spirvBytes[1])<<8 |
				uint32(spirvBytes[2])<<16 |
				uint32(spirvBytes[3])<<24
			if magic != 0x07230203 {
				t.Errorf("invalid SPIR-V magic: got 0x%08x, want 0x07230203", magic)
			}
		})
	}
}
