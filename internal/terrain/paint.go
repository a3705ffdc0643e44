package terrain

import (
	"math"

	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// TextureTable is the texture list of the area owning a chunk.
type TextureTable interface {
	TextureName(id uint32) string
	InternTexture(name string) uint32
}

// texelSize is the edge length of one alpha map texel.
const texelSize = ChunkSize / formats.AlphaSide

// TextureNames returns the texture of each layer, in layer order.
func (c *Chunk) TextureNames(table TextureTable) []string {
	names := make([]string, len(c.Layers))
	for i, l := range c.Layers {
		names[i] = table.TextureName(l.TextureID)
	}
	return names
}

// findTextureLayer returns the layer painting texture, adding one if a slot is free.
// Returns -1 when all four slots hold other textures.
func (c *Chunk) findTextureLayer(texture string, table TextureTable) int {
	for i, l := range c.Layers {
		if encoding.EqualFold(table.TextureName(l.TextureID), texture) {
			return i
		}
	}
	if len(c.Layers) >= formats.MaxLayers {
		return -1
	}
	return c.addTextureLayer(texture, table)
}

func (c *Chunk) addTextureLayer(texture string, table TextureTable) int {
	idx := len(c.Layers)
	layer := formats.MCLY{TextureID: table.InternTexture(texture)}
	if idx > 0 {
		layer.Flags = formats.MCLYFlagUseAlpha
		if c.CompressNewLayers && c.mode == formats.AlphaModeBig {
			layer.Flags |= formats.MCLYFlagAlphaCompressed
		}
		c.Alpha.ClearLayer(idx)
		c.layerAlpha[idx] = nil
		c.layerDirty[idx] = true
		c.ensureSubChunk(formats.TagMCAL, formats.TagMCSH, formats.TagMCRF, formats.TagMCLY)
	}
	c.Layers = append(c.Layers, layer)
	c.ensureSubChunk(formats.TagMCLY, formats.TagMCNR, formats.TagMCCV, formats.TagMCVT)
	c.TexturesChanged = true
	return idx
}

// OnTextureTerrain paints p.Texture onto the alpha maps.
// The target layer moves toward p.TargetValue and every other alpha layer toward an
// even share of the remaining weight. Returns false when the brush misses the chunk,
// when the chunk has no free layer for the texture, or when the brush is inverted
// or has no positive outer radius.
func (c *Chunk) OnTextureTerrain(p TextureParams, table TextureTable) bool {
	if c.state == ChunkDisposed || p.Inverted || p.OuterRadius <= 0 || !c.reaches(p.Center, p.OuterRadius) {
		return false
	}

	layer := -1
	nOthers := 0
	changed := false
	outer2 := p.OuterRadius * p.OuterRadius

	for i := range formats.AlphaSide {
		for j := range formats.AlphaSide {
			xpos := c.origin[0] + float32(j)*texelSize
			ypos := c.origin[1] + float32(i)*texelSize
			dx := xpos - p.Center[0]
			dy := ypos - p.Center[1]
			d2 := dx*dx + dy*dy
			if d2 > outer2 {
				continue
			}

			if layer < 0 {
				layer = c.findTextureLayer(p.Texture, table)
				if layer < 0 {
					return false
				}
				for k := 1; k < len(c.Layers); k++ {
					if k != layer {
						nOthers++
					}
				}
			}
			changed = true

			dist := float32(math.Sqrt(float64(d2)))
			pressure := p.Amount
			if dist < p.OuterRadius && dist >= p.InnerRadius {
				f := (dist - p.InnerRadius) / (p.OuterRadius - p.InnerRadius)
				switch p.Falloff {
				case FalloffTrigonometric:
					pressure = float32(math.Cos(math.Pi / 2 * float64(f)))
				default:
					pressure = 1 - f
				}
				pressure *= p.Amount
			}
			pressure = min(max(pressure, 0), 1)

			texel := i*formats.AlphaSide + j
			if layer > 0 {
				c.blendTexel(layer, texel, pressure, p.TargetValue)
			}
			if nOthers > 0 {
				share := (255 - p.TargetValue) / float32(nOthers)
				for k := 1; k < len(c.Layers); k++ {
					if k != layer {
						c.blendTexel(k, texel, pressure, share)
					}
				}
			}
		}
	}

	if changed {
		c.IsAlphaChanged = true
		c.markEditing()
	}
	return changed
}

func (c *Chunk) blendTexel(layer, texel int, pressure, target float32) {
	cur := float32(c.Alpha.Get(layer, texel))
	next := uint8(min(max((1-pressure)*cur+pressure*target, 0), 255))
	if next != c.Alpha.Get(layer, texel) {
		c.Alpha.Set(layer, texel, next)
		c.layerDirty[layer] = true
	}
}
