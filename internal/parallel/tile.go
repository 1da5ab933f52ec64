// Package parallel provides the tile grid and worker pool that dispatch the
// ray sort one workgroup per tile.
//
// The active rectangle of a ray buffer is divided into fixed-size tiles.
// Tiles are independent: no two workgroups share scratch memory or write the
// same output texel, so tiles can run in any order on any worker.
//
// Thread safety: TileGrid is NOT thread-safe. WorkerPool and ScratchPool are.
package parallel

// Tile is one workgroup's share of the active rectangle.
//
// Edge tiles keep the grid's tile size but cover fewer in-bounds slots; Width
// and Height give the in-bounds extent.
type Tile struct {
	// X and Y are the tile column and row.
	X, Y int

	// OriginX and OriginY are the buffer coordinates of the tile's top-left slot.
	OriginX, OriginY int

	// Width and Height are the in-bounds extent, at most the grid's tile size.
	Width, Height int
}

// Rays returns the number of in-bounds slots.
func (t *Tile) Rays() int {
	return t.Width * t.Height
}

// Contains reports whether buffer coordinate (bx, by) is an in-bounds slot
// of this tile.
func (t *Tile) Contains(bx, by int) bool {
	return bx >= t.OriginX && bx < t.OriginX+t.Width &&
		by >= t.OriginY && by < t.OriginY+t.Height
}
