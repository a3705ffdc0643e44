package terrain

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/picking"
	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// AddDoodadInstance places a doodad on the tile. The model name is added to the
// name tables if needed, the render instance is registered and the chunk under
// the position gets an MCRF reference.
func (a *Area) AddDoodadInstance(uuid uint32, name string, box picking.AABB, pos, rot mgl32.Vec3, scale float32) *DoodadInstance {
	if !a.IsValid {
		return nil
	}

	def := defFromPlacement(pos, rot, scale)
	def.NameID = a.internDoodadName(name)
	def.UniqueID = uuid
	a.doodadDefs = append(a.doodadDefs, def)

	d := &DoodadInstance{UUID: uuid, Name: name, BoundingBox: box}
	if a.opts.Registry != nil {
		d.Instance = a.opts.Registry.AddInstance(name, uuid, pos, rot, scale)
		if d.Instance == nil {
			logger.Warn("doodad model could not be loaded", zap.String("model", name), zap.Uint32("uuid", uuid))
		}
	}
	a.doodads = append(a.doodads, d)

	ref := uint32(len(a.doodadDefs) - 1)
	for _, c := range a.chunks {
		if c.BoundingBox.Contains2D(pos[0], pos[1]) {
			c.AddDoodad(ref, box)
			break
		}
	}
	a.ModelBox.Union(box)
	a.wasChanged = true
	return d
}

// internDoodadName returns the MMID index of name, extending MMDX and MMID when needed.
func (a *Area) internDoodadName(name string) uint32 {
	idx := slices.IndexFunc(a.doodadNames, func(n string) bool { return encoding.EqualFold(n, name) })
	if idx < 0 {
		a.doodadNames = append(a.doodadNames, name)
		a.rebuildDoodadNames()
		idx = len(a.doodadNames) - 1
	}

	offset := a.doodadNameOffsets[idx]
	if id := slices.Index(a.doodadNameIDs, offset); id >= 0 {
		return uint32(id)
	}
	a.doodadNameIDs = append(a.doodadNameIDs, offset)
	return uint32(len(a.doodadNameIDs) - 1)
}

// rebuildDoodadNames rewrites MMDX from the name list and remaps the MMID offsets.
func (a *Area) rebuildDoodadNames() {
	block, offsets := encoding.JoinNames(a.doodadNames)
	remap := make(map[uint32]uint32, len(offsets))
	lookup := make(map[uint32]string, len(offsets))
	newOffsets := make([]uint32, len(offsets))
	for i, n := range a.doodadNames {
		newOffsets[i] = uint32(offsets[i])
		lookup[newOffsets[i]] = n
		if i < len(a.doodadNameOffsets) {
			remap[a.doodadNameOffsets[i]] = newOffsets[i]
		}
	}
	for i, old := range a.doodadNameIDs {
		if off, ok := remap[old]; ok {
			a.doodadNameIDs[i] = off
		}
	}
	a.doodadNameBlock = block
	a.doodadNameOffsets = newOffsets
	a.doodadNameLookup = lookup
}

// RemoveDoodadInstance deletes the placement with the given unique id.
// Later placements move down one slot and chunk references follow them.
func (a *Area) RemoveDoodadInstance(uuid uint32) bool {
	if !a.IsValid {
		return false
	}
	idx := slices.IndexFunc(a.doodadDefs, func(d formats.MDDF) bool { return d.UniqueID == uuid })
	if idx < 0 {
		return false
	}

	d := a.doodads[idx]
	if d.Instance != nil && a.opts.Registry != nil {
		a.opts.Registry.RemoveInstance(d.Name, d.UUID)
	}
	a.doodadDefs = slices.Delete(a.doodadDefs, idx, idx+1)
	a.doodads = slices.Delete(a.doodads, idx, idx+1)
	for _, c := range a.chunks {
		c.RemoveDoodad(uint32(idx))
	}
	a.refreshModelBoxes()
	a.wasChanged = true
	return true
}

// refreshModelBoxes recomputes chunk and tile model boxes from the placements.
func (a *Area) refreshModelBoxes() {
	a.ModelBox = picking.EmptyAABB()
	for _, c := range a.chunks {
		c.ModelBox = picking.EmptyAABB()
		for _, ref := range c.DoodadRefs {
			if int(ref) < len(a.doodads) {
				c.ModelBox.Union(a.doodads[ref].BoundingBox)
			}
		}
		a.ModelBox.Union(c.ModelBox)
	}
}

// OnUpdateModelPositions snaps doodads inside the brush radius to the ground height.
func (a *Area) OnUpdateModelPositions(p ChangeParams, q HeightQuery) bool {
	if !a.IsValid || q == nil {
		return false
	}

	changed := false
	for i := range a.doodadDefs {
		def := &a.doodadDefs[i]
		x, y := def.Position[0], def.Position[2]
		dx := x - p.Center[0]
		dy := y - p.Center[1]
		if dx*dx+dy*dy > p.OuterRadius*p.OuterRadius {
			continue
		}
		h, ok := q.TryGetHeight(x, y)
		if !ok {
			continue
		}
		delta := h - def.Position[1]
		if delta == 0 {
			continue
		}
		def.Position[1] = h

		d := a.doodads[i]
		if d.Instance != nil {
			d.Instance.UpdatePosition(mgl32.Vec3{0, 0, delta})
			d.BoundingBox = d.Instance.BoundingBox()
		} else if !d.BoundingBox.IsEmpty() {
			d.BoundingBox.Min[2] += delta
			d.BoundingBox.Max[2] += delta
		}
		changed = true
	}

	if changed {
		a.refreshModelBoxes()
		a.wasChanged = true
	}
	return changed
}
