package parallel

import (
	"sync"
	"testing"
)

// =============================================================================
// Tile Tests
// =============================================================================

func TestTile_RaysAndContains(t *testing.T) {
	tile := Tile{X: 2, Y: 1, OriginX: 128, OriginY: 64, Width: 20, Height: 64}

	if tile.Rays() != 20*64 {
		t.Errorf("Rays() = %d, want %d", tile.Rays(), 20*64)
	}

	tests := []struct {
		x, y int
		want bool
	}{
		{128, 64, true},
		{147, 127, true},
		{148, 64, false},
		{127, 64, false},
		{130, 128, false},
	}
	for _, tt := range tests {
		if got := tile.Contains(tt.x, tt.y); got != tt.want {
			t.Errorf("Contains(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

// =============================================================================
// TileGrid Tests
// =============================================================================

func TestTileGrid_Create(t *testing.T) {
	tests := []struct {
		name           string
		w, h           int
		tw, th         int
		tilesX, tilesY int
	}{
		{"exact", 128, 128, 64, 64, 2, 2},
		{"partial", 100, 70, 64, 64, 2, 2},
		{"1080p", 1920, 1080, 64, 64, 30, 17},
		{"narrow tiles", 100, 10, 32, 8, 4, 2},
		{"smaller than tile", 10, 10, 64, 64, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewTileGrid(tt.w, tt.h, tt.tw, tt.th)
			if g.TilesX() != tt.tilesX || g.TilesY() != tt.tilesY {
				t.Errorf("tiles = %dx%d, want %dx%d", g.TilesX(), g.TilesY(), tt.tilesX, tt.tilesY)
			}
			if g.TileCount() != tt.tilesX*tt.tilesY {
				t.Errorf("TileCount() = %d, want %d", g.TileCount(), tt.tilesX*tt.tilesY)
			}

			// Tiles cover every slot exactly once.
			total := 0
			for i := range g.TileCount() {
				total += g.Tile(i).Rays()
			}
			if total != tt.w*tt.h {
				t.Errorf("covered %d slots, want %d", total, tt.w*tt.h)
			}
		})
	}
}

func TestTileGrid_CreateInvalid(t *testing.T) {
	for _, dims := range [][4]int{{0, 10, 8, 8}, {10, -1, 8, 8}, {10, 10, 0, 8}} {
		g := NewTileGrid(dims[0], dims[1], dims[2], dims[3])
		if g.TileCount() != 0 {
			t.Errorf("NewTileGrid%v has %d tiles, want 0", dims, g.TileCount())
		}
	}
}

func TestTileGrid_EdgeTiles(t *testing.T) {
	g := NewTileGrid(100, 70, 64, 64)

	tests := []struct {
		tx, ty int
		w, h   int
	}{
		{0, 0, 64, 64},
		{1, 0, 36, 64},
		{0, 1, 64, 6},
		{1, 1, 36, 6},
	}
	for _, tt := range tests {
		tile := g.Tile(tt.ty*g.TilesX() + tt.tx)
		if tile.X != tt.tx || tile.Y != tt.ty {
			t.Errorf("Tile(%d) is (%d,%d), want (%d,%d)", tt.ty*g.TilesX()+tt.tx, tile.X, tile.Y, tt.tx, tt.ty)
		}
		if tile.Width != tt.w || tile.Height != tt.h {
			t.Errorf("tile (%d,%d) = %dx%d, want %dx%d", tt.tx, tt.ty, tile.Width, tile.Height, tt.w, tt.h)
		}
		if tile.OriginX != tt.tx*64 || tile.OriginY != tt.ty*64 {
			t.Errorf("tile (%d,%d) origin = (%d,%d)", tt.tx, tt.ty, tile.OriginX, tile.OriginY)
		}
	}
}

func TestTileGrid_Resize(t *testing.T) {
	g := NewTileGrid(64, 64, 32, 32)
	first := g.Tile(0)

	g.Resize(64, 64)
	if g.Tile(0) != first {
		t.Error("Resize to the same size should keep the tiles")
	}

	g.Resize(65, 64)
	if g.TilesX() != 3 || g.Tile(2).Width != 1 {
		t.Errorf("after resize tiles = %dx%d, last width %d", g.TilesX(), g.TilesY(), g.Tile(2).Width)
	}

	g.Resize(0, 0)
	if g.TileCount() != 0 || g.TilesX() != 0 || g.TilesY() != 0 {
		t.Error("Resize(0, 0) should empty the grid")
	}
}

// =============================================================================
// ScratchPool Tests
// =============================================================================

func TestScratchPool_GetPut(t *testing.T) {
	p := NewScratchPool()
	s := p.Get()
	if s == nil {
		t.Fatal("Get() = nil")
	}
	s.Store16(0, 0xABCD, 0)
	p.Put(s)
	p.Put(nil)

	if got := p.Get(); got == nil {
		t.Fatal("Get() after Put = nil")
	}
}

func TestScratchPool_Concurrent(t *testing.T) {
	p := NewScratchPool()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				s := p.Get()
				s.Store16(i, uint32(i), 0)
				if s.Load16(i, 0) != uint32(i) {
					t.Errorf("scratch shared between goroutines")
				}
				p.Put(s)
			}
		}()
	}
	wg.Wait()
}

func TestSharedScratchPool(t *testing.T) {
	if SharedScratchPool() != SharedScratchPool() {
		t.Error("SharedScratchPool() should return the same pool")
	}
	s := SharedScratchPool().Get()
	if s == nil {
		t.Fatal("SharedScratchPool().Get() = nil")
	}
	SharedScratchPool().Put(s)
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkTileGrid_Create1080p(b *testing.B) {
	for range b.N {
		_ = NewTileGrid(1920, 1080, 64, 64)
	}
}
