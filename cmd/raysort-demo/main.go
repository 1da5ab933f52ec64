// Command raysort-demo sorts a frame of synthetic SSAO rays.
//
// It traces hemisphere rays over a procedural depth field, sorts them with
// the GPU accelerator when available, verifies the result, and prints the
// sort statistics. With -heatmap it also writes the debug keys as an image.
package main

import (
	"context"
	"flag"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/raysort"
	_ "github.com/gogpu/raysort/gpu"
)

func main() {
	var (
		width     = flag.Int("width", 1920, "ray buffer width")
		height    = flag.Int("height", 1080, "ray buffer height")
		tile      = flag.Int("tile", 64, "tile width and height (power of two)")
		lanes     = flag.Int("lanes", 256, "lanes per workgroup")
		wave      = flag.Int("wave", 32, "wave size")
		depthBits = flag.Int("depth-bits", 4, "depth sub-key bits")
		dirBits   = flag.Int("dir-bits", 3, "direction sub-key bits per axis")
		quadBits  = flag.Int("quad-bits", 2, "quadrant sub-key bits")
		sampled   = flag.Bool("sampled", false, "sampled depth range instead of exact")
		waveScan  = flag.Bool("wave-scan", false, "wave scan instead of Blelloch")
		spherical = flag.Bool("spherical", false, "spherical direction keys instead of octahedral")
		minBin    = flag.Float64("min-bin", 0, "minimum depth bin size")
		workers   = flag.Int("workers", 0, "CPU workers (0 = GOMAXPROCS)")
		cpuOnly   = flag.Bool("cpu", false, "disable the GPU accelerator")
		frames    = flag.Int("frames", 1, "number of frames to sort")
		heatmap   = flag.String("heatmap", "", "write debug keys to this .png or .tiff file")
		scale     = flag.Int("scale", 1, "heatmap upscale factor")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		raysort.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	cfg := raysort.DefaultKernelConfig()
	cfg.TileWidth, cfg.TileHeight = *tile, *tile
	cfg.Lanes, cfg.WaveSize = *lanes, *wave
	cfg.DepthBits, cfg.DirectionBits, cfg.QuadrantBits = *depthBits, *dirBits, *quadBits
	if *sampled {
		cfg.DepthRange = raysort.DepthRangeSampled
	}
	if *waveScan {
		cfg.Scan = raysort.ScanWave
	}
	cfg.Debug = *heatmap != ""

	opts := []raysort.SorterOption{raysort.WithKernelConfig(cfg), raysort.WithWorkers(*workers)}
	if *cpuOnly {
		opts = append(opts, raysort.WithCPUOnly())
	}
	sorter, err := raysort.NewSorter(opts...)
	if err != nil {
		log.Fatalf("Invalid kernel configuration: %v", err)
	}
	defer sorter.Close()

	params := raysort.DefaultDispatchParams(*width, *height)
	params.MinBinSize = float32(*minBin)
	if *spherical {
		params.Encoding = raysort.Spherical
	}

	rays := generateRays(*width, *height)
	out := raysort.NewSortOutput(cfg, *width, *height)
	p := message.NewPrinter(language.English)

	ctx := context.Background()
	for frame := range max(*frames, 1) {
		res, err := sorter.SortInto(ctx, rays, params, out)
		if err != nil {
			log.Fatalf("Sort failed: %v", err)
		}
		st := res.Stats
		p.Printf("frame %d: %s, %d tiles, %d rays (%d active, %d disabled), %d buckets, largest %d, %v\n",
			frame, st.Backend, st.Tiles, st.Rays, st.Active, st.Disabled,
			st.OccupiedBuckets, st.LargestBucket, st.Duration)
	}

	if err := raysort.Verify(rays, params, cfg, out); err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	log.Printf("Sort verified")

	if *heatmap != "" {
		img := keyHeatmap(out.Debug, cfg)
		if err := saveImage(*heatmap, img, max(*scale, 1)); err != nil {
			log.Fatalf("Failed to save heatmap: %v", err)
		}
		log.Printf("Heatmap saved to %s", *heatmap)
	}
}

// generateRays fills a buffer with one cosine-weighted hemisphere ray per
// pixel of a procedural depth field. The top rows are sky and get no ray.
func generateRays(w, h int) *raysort.RayBuffer {
	rays := raysort.NewRayBuffer(w, h)
	sky := h / 8
	for y := sky; y < h; y++ {
		for x := range w {
			d := depthAt(x, y)
			nx, ny, nz := normalAt(x, y)
			u1, u2 := noise(x, y, 0), noise(x, y, 1)

			// Cosine-weighted sample in the tangent frame of the normal.
			r := math.Sqrt(u1)
			phi := 2 * math.Pi * u2
			lx, ly, lz := r*math.Cos(phi), r*math.Sin(phi), math.Sqrt(1-u1)

			tx, ty, tz := tangent(nx, ny, nz)
			bx, by, bz := ny*tz-nz*ty, nz*tx-nx*tz, nx*ty-ny*tx
			rays.Set(x, y,
				float32(lx*tx+ly*bx+lz*nx),
				float32(lx*ty+ly*by+lz*ny),
				float32(lx*tz+ly*bz+lz*nz),
				float32(d))
		}
	}
	return rays
}

// depthAt is a rolling terrain receding towards the top of the frame.
func depthAt(x, y int) float64 {
	fx, fy := float64(x), float64(y)
	return 2 + 40/(1+fy*0.02) + 1.5*math.Sin(fx*0.011)*math.Cos(fy*0.017) + 0.3*math.Sin(fx*0.07+fy*0.05)
}

// normalAt estimates a view-space normal from the depth gradient.
func normalAt(x, y int) (nx, ny, nz float64) {
	dx := depthAt(x+1, y) - depthAt(x-1, y)
	dy := depthAt(x, y+1) - depthAt(x, y-1)
	nx, ny, nz = -dx, -dy, 2
	l := math.Sqrt(nx*nx + ny*ny + nz*nz)
	return nx / l, ny / l, nz / l
}

// tangent returns a unit vector perpendicular to n.
func tangent(nx, ny, nz float64) (tx, ty, tz float64) {
	if math.Abs(nx) > 0.9 {
		tx, ty, tz = -nz, 0, nx
	} else {
		tx, ty, tz = 0, nz, -ny
	}
	l := math.Sqrt(tx*tx + ty*ty + tz*tz)
	return tx / l, ty / l, tz / l
}

// noise is interleaved gradient noise with a per-sample offset, in [0, 1).
func noise(x, y, sample int) float64 {
	fx := float64(x) + 5.588238*float64(sample)
	fy := float64(y) + 5.588238*float64(sample)
	_, f := math.Modf(52.9829189 * math.Mod(0.06711056*fx+0.00583715*fy, 1))
	return f
}

// keyHeatmap colours each sorted position by its hash key. Disabled rays
// are black.
func keyHeatmap(keys *raysort.IndexBuffer, cfg raysort.KernelConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, keys.Width, keys.Height))
	inactive := cfg.InactiveKey()
	n := float64(cfg.Keys())
	for y := range keys.Height {
		for x := range keys.Width {
			k := keys.Texels[y*keys.Width+x]
			if k >= inactive {
				img.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			img.SetRGBA(x, y, hue(float64(k)/n))
		}
	}
	return img
}

// hue maps t in [0, 1) to a saturated colour.
func hue(t float64) color.RGBA {
	h := t * 6
	c := func(v float64) uint8 {
		return uint8(math.Round(255 * math.Max(0, math.Min(1, v))))
	}
	return color.RGBA{
		R: c(math.Abs(h-3) - 1),
		G: c(2 - math.Abs(h-2)),
		B: c(2 - math.Abs(h-4)),
		A: 255,
	}
}

// saveImage upscales img by scale and encodes it by file extension.
func saveImage(path string, img image.Image, scale int) error {
	if scale > 1 {
		b := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
