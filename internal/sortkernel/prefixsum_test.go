package sortkernel

import (
	"math/rand/v2"
	"testing"

	"github.com/gogpu/raysort/internal/groupshared"
	"github.com/gogpu/raysort/internal/workgroup"
)

// scanHistogram loads counts into the histogram region of a fresh scratch,
// runs the configured scan on a full workgroup, and returns the scanned
// histogram and the total left in control slot 0.
func scanHistogram(t *testing.T, cfg Config, counts []uint32) ([]uint32, uint32) {
	t.Helper()
	k := mustKernel(t, cfg)
	s := groupshared.New()
	r := &run{k: k, s: s, reg: k.layout.bind(s)}
	for i, c := range counts {
		r.reg.hist.Store(i, c)
	}

	if err := workgroup.Dispatch(cfg.shape(), r.scan); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	out := make([]uint32, len(counts))
	for i := range out {
		out[i] = r.reg.hist.Load(i)
	}
	return out, r.reg.control.Load(0)
}

func TestScan_ExclusivePrefix(t *testing.T) {
	shapes := []struct {
		name             string
		depth, dir, quad int
		lanes, wave      int
	}{
		{"4096 keys", 4, 3, 2, 64, 16},
		{"fewer keys than lanes", 1, 0, 2, 64, 16},
		{"keys equal lanes", 0, 2, 2, 64, 32},
		{"single key", 0, 0, 0, 32, 8},
	}
	for _, sh := range shapes {
		for _, mode := range []ScanMode{ScanBlelloch, ScanWave} {
			t.Run(sh.name+"/"+mode.String(), func(t *testing.T) {
				cfg := smallConfig()
				cfg.DepthBits, cfg.DirectionBits, cfg.QuadrantBits = sh.depth, sh.dir, sh.quad
				cfg.Lanes, cfg.WaveSize = sh.lanes, sh.wave
				cfg.Scan = mode

				rng := rand.New(rand.NewPCG(42, uint64(cfg.Keys())))
				counts := make([]uint32, cfg.Keys())
				var sum uint32
				for i := range counts {
					counts[i] = uint32(rng.IntN(3))
					if i%97 == 0 {
						counts[i] = 9
					}
					sum += counts[i]
				}

				scan, total := scanHistogram(t, cfg, counts)
				if scan[0] != 0 {
					t.Errorf("scan[0] = %d, want 0", scan[0])
				}
				for i := 1; i < len(scan); i++ {
					if scan[i] != scan[i-1]+counts[i-1] {
						t.Fatalf("scan[%d] = %d, want %d", i, scan[i], scan[i-1]+counts[i-1])
					}
				}
				if total != sum {
					t.Errorf("total = %d, want %d", total, sum)
				}
			})
		}
	}
}

func TestScan_ModesAgree(t *testing.T) {
	counts := make([]uint32, 1<<9)
	for i := range counts {
		counts[i] = uint32((i * 7) % 5)
	}
	var results [2][]uint32
	for i, mode := range []ScanMode{ScanBlelloch, ScanWave} {
		cfg := smallConfig()
		cfg.DepthBits, cfg.DirectionBits, cfg.QuadrantBits = 3, 2, 2
		cfg.Scan = mode
		results[i], _ = scanHistogram(t, cfg, counts)
	}
	for i := range counts {
		if results[0][i] != results[1][i] {
			t.Fatalf("entry %d: blelloch %d != wave %d", i, results[0][i], results[1][i])
		}
	}
}
