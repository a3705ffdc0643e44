package terrain

import "math"

// Hole grid: 4x4 cells stored as bits of the chunk header, each covering 2x2 quads.
const (
	holeCells    = 4
	holeCellSize = ChunkSize / holeCells
	holeMaskAll  = 0xFFFF
)

// IsHole reports whether quad (row, col) of the 8x8 grid is cut out.
func (c *Chunk) IsHole(row, col int) bool {
	return c.Holes[row*quadsPerSide+col] == 0
}

// refreshHoles expands the header bit mask into the per-quad hole table.
func (c *Chunk) refreshHoles() {
	for row := range quadsPerSide {
		for col := range quadsPerSide {
			bit := uint16(1) << ((row/2)*holeCells + col/2)
			if c.Header.Holes&bit != 0 {
				c.Holes[row*quadsPerSide+col] = 0x00
			} else {
				c.Holes[row*quadsPerSide+col] = 0xFF
			}
		}
	}
}

// SetHole adds or removes the hole cell containing (x, y).
// Returns true when the hole mask changed.
func (c *Chunk) SetHole(x, y float32, add bool) bool {
	cx := int(math.Floor(float64((x - c.origin[0]) / holeCellSize)))
	cy := int(math.Floor(float64((y - c.origin[1]) / holeCellSize)))
	if cx < 0 || cy < 0 || cx >= holeCells || cy >= holeCells {
		return false
	}

	bit := uint16(1) << (cy*holeCells + cx)
	mask := c.Header.Holes &^ bit
	if add {
		mask |= bit
	}
	return c.setHoleMask(mask)
}

// SetHoleBig cuts out or restores the whole chunk.
func (c *Chunk) SetHoleBig(add bool) bool {
	if add {
		return c.setHoleMask(holeMaskAll)
	}
	return c.setHoleMask(0)
}

func (c *Chunk) setHoleMask(mask uint16) bool {
	if c.state == ChunkDisposed || mask == c.Header.Holes {
		return false
	}
	c.Header.Holes = mask
	c.holesChanged = true
	c.refreshHoles()
	c.markEditing()
	return true
}
