package terrain

import (
	"github.com/Faultbox/adtedit/internal/picking"
)

// OnChangeTerrain applies a terrain brush to every chunk in reach.
func (a *Area) OnChangeTerrain(p ChangeParams, q HeightQuery) bool {
	if !a.IsValid {
		return false
	}
	changed := false
	for _, c := range a.chunks {
		if c.OnTerrainChange(p, q) {
			changed = true
		}
	}
	if changed {
		a.refreshBounds()
		a.syncVertices()
	}
	return changed
}

// OnTextureTerrain applies a texture brush to every chunk in reach.
func (a *Area) OnTextureTerrain(p TextureParams) bool {
	if !a.IsValid {
		return false
	}
	changed := false
	for _, c := range a.chunks {
		if c.OnTextureTerrain(p, a) {
			changed = true
		}
	}
	return changed
}

// SetHole cuts or fills the hole cell under (x, y). With big set the whole chunk is affected.
func (a *Area) SetHole(x, y float32, add, big bool) bool {
	if !a.IsValid {
		return false
	}
	c := a.ChunkAt(x, y)
	if c == nil {
		return false
	}
	if big {
		return c.SetHoleBig(add)
	}
	return c.SetHole(x, y, add)
}

// SetImpassable flags or clears the chunk under (x, y) as impassable.
func (a *Area) SetImpassable(x, y float32, on bool) bool {
	if !a.IsValid {
		return false
	}
	c := a.ChunkAt(x, y)
	if c == nil {
		return false
	}
	return c.SetImpassable(on)
}

// UpdateNormals recomputes normals of the chunks touched since the last call.
func (a *Area) UpdateNormals(q HeightQuery) {
	if !a.IsValid {
		return
	}
	for _, c := range a.chunks {
		c.UpdateNormals(q)
	}
	a.syncVertices()
}

// HeightAt returns the ground height at (x, y) if the point lies on this tile.
func (a *Area) HeightAt(x, y float32) (float32, bool) {
	if !a.IsValid {
		return 0, false
	}
	c := a.ChunkAt(x, y)
	if c == nil {
		return 0, false
	}
	return c.HeightAt(x, y)
}

// Intersect returns the chunk hit first by the ray and the distance to the hit.
// On equal distances the chunk with the lower index wins.
func (a *Area) Intersect(ray picking.Ray) (*Chunk, float32, bool) {
	if !a.IsValid {
		return nil, 0, false
	}
	if _, ok := ray.IntersectAABB(a.BoundingBox); !ok {
		return nil, 0, false
	}

	var (
		best    *Chunk
		bestHit float32
	)
	for _, c := range a.chunks {
		dist, ok := c.Intersect(ray)
		if ok && (best == nil || dist < bestHit) {
			best = c
			bestHit = dist
		}
	}
	return best, bestHit, best != nil
}

func (a *Area) refreshBounds() {
	a.BoundingBox = picking.EmptyAABB()
	for _, c := range a.chunks {
		a.BoundingBox.Union(c.BoundingBox)
	}
}
