package parallel

// TileGrid covers an active rectangle with tiles of a fixed size.
//
// Tiles are stored row-major in a flat slice: index = ty*tilesX + tx. The
// last column and row may be partial.
//
// Thread safety: TileGrid is NOT thread-safe.
type TileGrid struct {
	tiles []Tile

	tilesX, tilesY int
	tileW, tileH   int
	width, height  int
}

// NewTileGrid creates a grid over a width x height rectangle with tiles of
// tileW x tileH. A non-positive dimension yields an empty grid.
func NewTileGrid(width, height, tileW, tileH int) *TileGrid {
	g := &TileGrid{tileW: tileW, tileH: tileH}
	g.Resize(width, height)
	return g
}

// Resize recomputes the grid for a new rectangle. It is a no-op when the
// dimensions are unchanged.
func (g *TileGrid) Resize(width, height int) {
	if width <= 0 || height <= 0 || g.tileW <= 0 || g.tileH <= 0 {
		g.tiles = nil
		g.tilesX, g.tilesY = 0, 0
		g.width, g.height = 0, 0
		return
	}
	if g.width == width && g.height == height && g.tiles != nil {
		return
	}

	g.width, g.height = width, height
	g.tilesX = (width + g.tileW - 1) / g.tileW
	g.tilesY = (height + g.tileH - 1) / g.tileH
	g.tiles = make([]Tile, g.tilesX*g.tilesY)

	for ty := range g.tilesY {
		for tx := range g.tilesX {
			ox, oy := tx*g.tileW, ty*g.tileH
			g.tiles[ty*g.tilesX+tx] = Tile{
				X:       tx,
				Y:       ty,
				OriginX: ox,
				OriginY: oy,
				Width:   min(g.tileW, width-ox),
				Height:  min(g.tileH, height-oy),
			}
		}
	}
}

// TileCount returns the number of tiles.
func (g *TileGrid) TileCount() int { return len(g.tiles) }

// TilesX returns the number of tile columns.
func (g *TileGrid) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g *TileGrid) TilesY() int { return g.tilesY }

// Tile returns the i-th tile in row-major order.
func (g *TileGrid) Tile(i int) *Tile { return &g.tiles[i] }
