package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/adtedit/pkg/formats"
)

// flattenAmount is the brush amount that replaces heights in a single step.
const flattenAmount = 550.0

// shadingRate scales the shading brush amount per second.
const shadingRate = 40.0

// reaches reports whether a brush of the given radius can affect the chunk.
func (c *Chunk) reaches(center mgl32.Vec3, radius float32) bool {
	dx := c.midPoint[0] - center[0]
	dy := c.midPoint[1] - center[1]
	maxRadius := radius + ChunkRadius
	return dx*dx+dy*dy <= maxRadius*maxRadius
}

// OnTerrainChange applies a terrain brush. Returns true when any vertex changed.
// A brush without a positive outer radius changes nothing.
func (c *Chunk) OnTerrainChange(p ChangeParams, q HeightQuery) bool {
	if c.state == ChunkDisposed || p.OuterRadius <= 0 || !c.reaches(p.Center, p.OuterRadius) {
		return false
	}

	// Neighboring edits can alter this chunk's normals even when no vertex moves.
	c.updateNormals = true

	var changed bool
	switch p.Method {
	case ChangeElevate:
		changed = c.elevate(p)
	case ChangeFlatten:
		changed = c.flatten(p)
	case ChangeBlur:
		changed = c.blur(p, q)
	case ChangeShading:
		return c.paintShading(p)
	}
	if changed {
		c.heightsChanged = true
		c.updateBounds()
		c.markEditing()
	}
	return changed
}

func distance2D(p, center mgl32.Vec3) float32 {
	dx := p[0] - center[0]
	dy := p[1] - center[1]
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func (c *Chunk) elevate(p ChangeParams) bool {
	amount := p.Amount * float32(p.TimeDiff.Seconds())
	radius := p.OuterRadius
	sign := float32(1)
	if p.Inverted {
		sign = -1
	}

	changed := false
	for i := range c.Vertices {
		pos := &c.Vertices[i].Position
		dist := distance2D(*pos, p.Center)
		if dist > radius {
			continue
		}
		changed = true
		factor := dist / radius

		var delta float32
		switch p.Algorithm {
		case AlgorithmFlat:
			delta = amount
		case AlgorithmLinear:
			delta = amount * (1 - factor)
		case AlgorithmQuadratic:
			delta = -amount/(radius*radius)*(dist*dist) + amount
		case AlgorithmTrigonometric:
			delta = amount * float32(math.Cos(float64(factor)*math.Pi/2))
		}
		pos[2] += delta * sign
	}
	return changed
}

// remaining returns the share of the old height kept by flatten and blur.
// keep is the flat-profile share, factor the normalized distance from the center.
func remaining(alg Algorithm, keep, factor float32, trig func(float64) float64) float32 {
	switch alg {
	case AlgorithmLinear:
		return 1 - (1-keep)*(1-factor)
	case AlgorithmQuadratic:
		return 1 - float32(math.Pow(float64(1-keep), float64(1+factor)))
	case AlgorithmTrigonometric:
		return 1 - (1-keep)*float32(trig(float64(factor)))
	default:
		return keep
	}
}

func flattenKeep(amount float32) float32 {
	return 1 - min(amount/flattenAmount, 1)
}

func (c *Chunk) flatten(p ChangeParams) bool {
	radius := p.OuterRadius
	keep := flattenKeep(p.Amount)
	trig := func(f float64) float64 { return 1 - math.Cos(f*math.Pi/2) }

	changed := false
	for i := range c.Vertices {
		pos := &c.Vertices[i].Position
		dist := distance2D(*pos, p.Center)
		if dist > radius {
			continue
		}
		changed = true
		nremain := remaining(p.Algorithm, keep, dist/radius, trig)
		pos[2] = nremain*pos[2] + (1-nremain)*p.Center[2]
	}
	return changed
}

func (c *Chunk) blur(p ChangeParams, q HeightQuery) bool {
	if q == nil {
		q = HeightFunc(c.HeightAt)
	}
	radius := p.OuterRadius
	keep := flattenKeep(p.Amount)
	steps := int(radius / UnitSize)

	changed := false
	for i := range c.Vertices {
		pos := &c.Vertices[i].Position
		dist := distance2D(*pos, p.Center)
		if dist > radius {
			continue
		}
		changed = true

		var total, weight float32
		for j := -steps; j <= steps; j++ {
			ty := p.Center[1] + float32(j)*UnitSize
			for k := -steps; k <= steps; k++ {
				tx := p.Center[0] + float32(k)*UnitSize
				dx := tx - pos[0]
				dy := ty - pos[1]
				d2 := dx*dx + dy*dy
				if d2 > radius*radius {
					continue
				}
				h, ok := q.TryGetHeight(tx, ty)
				if !ok {
					h = pos[2]
				}
				w := 1 - float32(math.Sqrt(float64(d2)))/radius
				total += w * h
				weight += w
			}
		}
		if weight == 0 {
			continue
		}

		avg := total / weight
		nremain := remaining(p.Algorithm, keep, dist/radius, math.Cos)
		pos[2] = nremain*pos[2] + (1-nremain)*avg
	}
	return changed
}

// paintShading moves vertex colors toward the requested multiplier.
// Inverted painting moves them back toward neutral.
func (c *Chunk) paintShading(p ChangeParams) bool {
	radius := p.OuterRadius
	strength := min(p.Amount/shadingRate*float32(p.TimeDiff.Seconds()), 1)
	if strength <= 0 {
		return false
	}

	target := [3]float32{neutralColor, neutralColor, neutralColor}
	if !p.Inverted {
		// Stored as B, G, R.
		for ch, mul := range [3]float32{p.Shading[2], p.Shading[1], p.Shading[0]} {
			target[ch] = min(max(mul*neutralColor, 0), 255)
		}
	}

	changed := false
	for i := range c.Vertices {
		v := &c.Vertices[i]
		dist := distance2D(v.Position, p.Center)
		if dist > radius {
			continue
		}

		factor := dist / radius
		var w float32
		switch p.Algorithm {
		case AlgorithmFlat:
			w = 1
		case AlgorithmLinear:
			w = 1 - factor
		case AlgorithmQuadratic:
			w = 1 - factor*factor
		case AlgorithmTrigonometric:
			w = float32(math.Cos(float64(factor) * math.Pi / 2))
		}
		w *= strength

		for ch := range 3 {
			cur := float32(v.Color[ch])
			next := uint8(math.Round(float64(cur + (target[ch]-cur)*w)))
			if next != v.Color[ch] {
				v.Color[ch] = next
				changed = true
			}
		}
	}

	if changed {
		c.colorsChanged = true
		c.Header.Flags |= formats.MCNKFlagHasMCCV
		c.ensureSubChunk(formats.TagMCCV, formats.TagMCVT)
		c.markEditing()
	}
	return changed
}
