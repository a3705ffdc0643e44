package session

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/adtedit/internal/models"
	"github.com/Faultbox/adtedit/internal/picking"
	"github.com/Faultbox/adtedit/internal/terrain"
)

// ApplyTerrain runs a height or shading brush over every loaded tile, then
// refreshes normals and moves doodads inside the brush onto the new ground.
func (s *Session) ApplyTerrain(p terrain.ChangeParams) bool {
	areas := s.Areas()
	var changed []*terrain.Area
	for _, a := range areas {
		if a.OnChangeTerrain(p, s) {
			changed = append(changed, a)
		}
	}
	if len(changed) == 0 {
		return false
	}

	// Normals read neighbor heights, so they are refreshed after every tile is
	// edited. Chunks in reach of the brush are flagged even on untouched tiles.
	for _, a := range areas {
		a.UpdateNormals(s)
	}
	if p.Method != terrain.ChangeShading {
		for _, a := range changed {
			a.OnUpdateModelPositions(p, s)
		}
	}
	return true
}

// ApplyTexture runs a texture brush over every loaded tile.
func (s *Session) ApplyTexture(p terrain.TextureParams) bool {
	changed := false
	for _, a := range s.Areas() {
		if a.OnTextureTerrain(p) {
			changed = true
		}
	}
	return changed
}

// SetHole cuts or fills the hole under (x, y).
func (s *Session) SetHole(x, y float32, add, big bool) bool {
	a := s.AreaAt(x, y)
	if a == nil {
		return false
	}
	return a.SetHole(x, y, add, big)
}

// SetImpassable flags or clears the chunk under (x, y) as impassable.
func (s *Session) SetImpassable(x, y float32, on bool) bool {
	a := s.AreaAt(x, y)
	if a == nil {
		return false
	}
	return a.SetImpassable(x, y, on)
}

// Hit is a terrain pick result.
type Hit struct {
	Area     *terrain.Area
	Chunk    *terrain.Chunk
	Distance float32
	Position mgl32.Vec3
}

// Intersect returns the nearest terrain hit across the loaded tiles.
func (s *Session) Intersect(ray picking.Ray) (Hit, bool) {
	var best Hit
	found := false
	for _, a := range s.Areas() {
		c, dist, ok := a.Intersect(ray)
		if ok && (!found || dist < best.Distance) {
			best = Hit{Area: a, Chunk: c, Distance: dist, Position: ray.At(dist)}
			found = true
		}
	}
	return best, found
}

// PickModel returns the nearest visible model instance hit by the ray.
func (s *Session) PickModel(ray picking.Ray) (*models.Instance, float32, bool) {
	if s.opts.Models == nil {
		return nil, 0, false
	}
	return s.opts.Models.Intersect(ray)
}

// RefreshView rebuilds the visible model sets from the doodads of every loaded tile.
func (s *Session) RefreshView() {
	reg := s.opts.Models
	if reg == nil {
		return
	}
	reg.ViewChanged()
	for _, a := range s.Areas() {
		var refs []*models.Instance
		for _, d := range a.Doodads() {
			if d.Instance != nil {
				refs = append(refs, d.Instance)
			}
		}
		reg.PushMapReferences(refs)
	}
}
