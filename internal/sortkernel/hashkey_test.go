package sortkernel

import (
	"math"
	"testing"

	"github.com/gogpu/raysort/internal/rayfmt"
)

func TestQuantize(t *testing.T) {
	tests := []struct {
		t    float32
		bits int
		want uint32
	}{
		{0, 3, 0},
		{-0.5, 3, 0},
		{0.124, 3, 0},
		{0.125, 3, 1},
		{0.99, 3, 7},
		{1, 3, 7},
		{0.5, 0, 0},
		{0.5, 1, 1},
		{1e30, 3, 7},
		{float32(math.Inf(1)), 3, 7},
		{float32(math.NaN()), 3, 0},
	}
	for _, tt := range tests {
		if got := quantize(tt.t, tt.bits); got != tt.want {
			t.Errorf("quantize(%v, %d) = %d, want %d", tt.t, tt.bits, got, tt.want)
		}
	}
}

func TestHasher_DepthKey(t *testing.T) {
	cfg := smallConfig() // D = 4
	r := DepthRange{MinBits: rayfmt.EncodeDepth(1), MaxBits: rayfmt.EncodeDepth(17)}
	h := newHasher(cfg, Octahedral, 0.05, r)

	tests := []struct {
		depth float32
		want  uint32
	}{
		{1, 0},
		{2, 1},
		{8, 7},
		{16, 15},
		{17, 15},
		{0.5, 0}, // below the range, as in sampled mode
		{64, 15},
	}
	for _, tt := range tests {
		if got := h.depthKey(rayfmt.EncodeDepth(tt.depth)); got != tt.want {
			t.Errorf("depthKey(%v) = %d, want %d", tt.depth, got, tt.want)
		}
	}
}

func TestHasher_DepthKeyClampsFarOutsideRange(t *testing.T) {
	// A sampled range can be far narrower than the tile's real depths; bins
	// are then tiny and every deeper ray must land in the last bin.
	cfg := smallConfig() // D = 4
	r := DepthRange{MinBits: 1, MaxBits: 2}

	for _, depth := range []float32{0.5, 30, 1000, 60000} {
		key := HashKey(cfg, Octahedral, 0, r, rayfmt.PackRG11B10(0.5, 0.5, depth), 0, 0)
		if got := key >> (2*cfg.DirectionBits + cfg.QuadrantBits); got != 15 {
			t.Errorf("depth %v: depth key = %d, want 15", depth, got)
		}
	}
}

func TestHasher_MinBinSizeFloor(t *testing.T) {
	cfg := smallConfig()
	r := DepthRange{MinBits: rayfmt.EncodeDepth(4), MaxBits: rayfmt.EncodeDepth(4.25)}

	// The range spans 0.25, so 16 bins would be 1/64 wide; the floor of 0.125
	// leaves only two bins in use.
	h := newHasher(cfg, Octahedral, 0.125, r)
	if got := h.depthKey(rayfmt.EncodeDepth(4.25)); got != 2 {
		t.Errorf("depthKey(4.25) = %d, want 2", got)
	}
	if got := h.depthKey(rayfmt.EncodeDepth(4)); got != 0 {
		t.Errorf("depthKey(4) = %d, want 0", got)
	}
}

func TestHasher_ZeroRangeZeroFloor(t *testing.T) {
	cfg := smallConfig()
	bits := rayfmt.EncodeDepth(3)
	h := newHasher(cfg, Octahedral, 0, DepthRange{MinBits: bits, MaxBits: bits})
	if got := h.depthKey(bits); got != 0 {
		t.Errorf("depthKey = %d, want 0", got)
	}
}

func TestHasher_Quadrant(t *testing.T) {
	tests := []struct {
		quad int
		x, y int
		want uint32
	}{
		{2, 0, 0, 0},
		{2, 8, 0, 1},
		{2, 0, 8, 2},
		{2, 15, 15, 3},
		{1, 15, 15, 1},
		{0, 15, 15, 0},
	}
	for _, tt := range tests {
		cfg := smallConfig()
		cfg.QuadrantBits = tt.quad
		h := newHasher(cfg, Octahedral, 0.05, DepthRange{})
		if got := h.quadrantKey(tt.x, tt.y); got != tt.want {
			t.Errorf("Q=%d quadrantKey(%d, %d) = %d, want %d", tt.quad, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestHasher_ComposeLayout(t *testing.T) {
	cfg := smallConfig() // D=4 B=3 Q=2
	r := DepthRange{MinBits: rayfmt.EncodeDepth(1), MaxBits: rayfmt.EncodeDepth(17)}
	h := newHasher(cfg, Octahedral, 0.05, r)

	dir := uint32(5<<3 | 2)
	key := h.compose(rayfmt.EncodeDepth(8), dir, 9, 1)
	want := uint32(7<<8 | dir<<2 | 1)
	if key != want {
		t.Errorf("compose = %#x, want %#x", key, want)
	}
	if key >= cfg.InactiveKey() {
		t.Errorf("valid key %#x not below sentinel %#x", key, cfg.InactiveKey())
	}
	if got := h.compose(0, dir, 9, 1); got != cfg.InactiveKey() {
		t.Errorf("disabled key = %#x, want sentinel %#x", got, cfg.InactiveKey())
	}
}

func TestDirectionKey(t *testing.T) {
	texel := rayfmt.PackRG11B10(0.75, 0.25, 1)
	if got := directionKey(texel, 2, Octahedral); got != 3<<2|1 {
		t.Errorf("octahedral key = %d, want %d", got, 3<<2|1)
	}

	// Straight up: polar angle 0.
	u, v := rayfmt.OctEncode(0, 0, 1)
	up := rayfmt.PackRG11B10(u, v, 1)
	if got := directionKey(up, 2, Spherical) & 3; got != 0 {
		t.Errorf("spherical polar bin of +Z = %d, want 0", got)
	}

	// Straight down: polar angle pi lands in the last bin.
	u, v = rayfmt.OctEncode(0, 0, -1)
	down := rayfmt.PackRG11B10(u, v, 1)
	if got := directionKey(down, 2, Spherical) & 3; got != 3 {
		t.Errorf("spherical polar bin of -Z = %d, want 3", got)
	}

	if got := directionKey(texel, 0, Spherical); got != 0 {
		t.Errorf("B=0 key = %d, want 0", got)
	}
}

func TestHashKey_MatchesCachedPath(t *testing.T) {
	cfg := smallConfig()
	r := DepthRange{MinBits: rayfmt.EncodeDepth(0.5), MaxBits: rayfmt.EncodeDepth(12)}
	h := newHasher(cfg, Spherical, 0.05, r)

	for _, texel := range randomRays(8, 8, 99, 0.2) {
		cached := h.compose(rayfmt.DepthBits(texel), directionKey(texel, cfg.DirectionBits, Spherical), 3, 12)
		if got := HashKey(cfg, Spherical, 0.05, r, texel, 3, 12); got != cached {
			t.Fatalf("HashKey = %d, cached path = %d", got, cached)
		}
	}
}
