// Package terrain implements map tiles (areas), their chunks and the brush operations that edit them.
package terrain

import "math"

// World metrics of the tile grid.
const (
	TileSize    = 533.33333
	ChunkSize   = TileSize / 16.0
	UnitSize    = ChunkSize / 8.0
	MapMidPoint = 32.0 * TileSize
	TilesPerMap = 64

	// ChunkRadius is the radius of the circle enclosing a chunk footprint.
	ChunkRadius = ChunkSize * math.Sqrt2 / 2.0
)

// Vertex grid layout: 17 rows alternating 9 outer and 8 inner vertices.
const (
	VertexCount = 145
	rowStride   = 17
	outerPerRow = 9
	innerPerRow = 8
)

// OuterIndex returns the vertex index of the outer grid point (row, col), both in [0, 9).
func OuterIndex(row, col int) int {
	return row*rowStride + col
}

// InnerIndex returns the vertex index of the inner grid point (row, col), both in [0, 8).
func InnerIndex(row, col int) int {
	return row*rowStride + outerPerRow + col
}

// AreaIndex returns the arena index of a tile on the 64x64 map grid.
func AreaIndex(ix, iy int) int {
	return iy*TilesPerMap + ix
}

// TileAt returns the tile containing the editor position (x, y).
func TileAt(x, y float32) (ix, iy int, ok bool) {
	ix = int(math.Floor(float64(x / TileSize)))
	iy = int(math.Floor(float64(y / TileSize)))
	ok = ix >= 0 && iy >= 0 && ix < TilesPerMap && iy < TilesPerMap
	return ix, iy, ok
}
