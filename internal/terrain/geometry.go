package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/adtedit/internal/picking"
)

// normalBytes is the declared MCNR payload size: 145 signed byte triples.
const normalBytes = VertexCount * 3

// Quads per chunk side and triangles per chunk.
const (
	quadsPerSide  = 8
	TriangleCount = quadsPerSide * quadsPerSide * 4
)

// quadTriangles returns the four triangles of quad (row, col), fanned around its inner vertex.
func quadTriangles(row, col int) [4][3]int {
	tl := OuterIndex(row, col)
	tr := OuterIndex(row, col+1)
	bl := OuterIndex(row+1, col)
	br := OuterIndex(row+1, col+1)
	mid := InnerIndex(row, col)
	return [4][3]int{
		{tl, tr, mid},
		{tr, br, mid},
		{br, bl, mid},
		{bl, tl, mid},
	}
}

// Indices returns the triangle list of the chunk in vertex indices.
// Quads marked as holes are left out.
func (c *Chunk) Indices() []uint16 {
	out := make([]uint16, 0, TriangleCount*3)
	for row := range quadsPerSide {
		for col := range quadsPerSide {
			if c.IsHole(row, col) {
				continue
			}
			for _, tri := range quadTriangles(row, col) {
				out = append(out, uint16(tri[0]), uint16(tri[1]), uint16(tri[2]))
			}
		}
	}
	return out
}

// HeightAt returns the interpolated ground height at (x, y).
// Returns false when the point is outside the chunk footprint.
func (c *Chunk) HeightAt(x, y float32) (float32, bool) {
	lx := x - c.origin[0]
	ly := y - c.origin[1]
	if lx < 0 || ly < 0 || lx > ChunkSize || ly > ChunkSize {
		return 0, false
	}

	col := min(int(lx/UnitSize), quadsPerSide-1)
	row := min(int(ly/UnitSize), quadsPerSide-1)
	dx := lx/UnitSize - float32(col) - 0.5
	dy := ly/UnitSize - float32(row) - 0.5

	tris := quadTriangles(row, col)
	var tri [3]int
	switch {
	case abs32(dy) >= abs32(dx) && dy < 0:
		tri = tris[0]
	case abs32(dy) >= abs32(dx):
		tri = tris[2]
	case dx > 0:
		tri = tris[1]
	default:
		tri = tris[3]
	}

	a := c.Vertices[tri[0]].Position
	b := c.Vertices[tri[1]].Position
	m := c.Vertices[tri[2]].Position
	return planeHeight(x, y, a, b, m), true
}

// planeHeight evaluates the plane through a, b and c at (x, y).
func planeHeight(x, y float32, a, b, c mgl32.Vec3) float32 {
	det := (b[1]-c[1])*(a[0]-c[0]) + (c[0]-b[0])*(a[1]-c[1])
	if det == 0 {
		return (a[2] + b[2] + c[2]) / 3
	}
	l1 := ((b[1]-c[1])*(x-c[0]) + (c[0]-b[0])*(y-c[1])) / det
	l2 := ((c[1]-a[1])*(x-c[0]) + (a[0]-c[0])*(y-c[1])) / det
	l3 := 1 - l1 - l2
	return l1*a[2] + l2*b[2] + l3*c[2]
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Intersect tests the ray against the chunk surface.
// Returns the distance along the ray to the nearest hit.
func (c *Chunk) Intersect(ray picking.Ray) (float32, bool) {
	if _, ok := ray.IntersectAABB(c.BoundingBox); !ok {
		return 0, false
	}

	best := float32(math.MaxFloat32)
	hit := false
	for row := range quadsPerSide {
		for col := range quadsPerSide {
			if c.IsHole(row, col) {
				continue
			}
			for _, tri := range quadTriangles(row, col) {
				t, ok := ray.IntersectTriangle(
					c.Vertices[tri[0]].Position,
					c.Vertices[tri[1]].Position,
					c.Vertices[tri[2]].Position,
				)
				if ok && t < best {
					best = t
					hit = true
				}
			}
		}
	}
	return best, hit
}

// UpdateNormals recomputes vertex normals if a brush touched the chunk since the last call.
// Neighbor heights come from q so normals stay continuous across chunk and tile borders.
func (c *Chunk) UpdateNormals(q HeightQuery) {
	if !c.updateNormals {
		return
	}
	c.updateNormals = false
	if q == nil {
		q = noHeights{}
	}

	half := float32(0.5 * UnitSize)
	probe := func(p mgl32.Vec3) mgl32.Vec3 {
		if h, ok := q.TryGetHeight(p[0], p[1]); ok {
			p[2] = h
		} else if h, ok := c.HeightAt(p[0], p[1]); ok {
			p[2] = h
		}
		return p
	}

	for i := range c.Vertices {
		v := c.Vertices[i].Position
		p1 := probe(v.Add(mgl32.Vec3{-half, -half, 0})).Sub(v)
		p2 := probe(v.Add(mgl32.Vec3{half, -half, 0})).Sub(v)
		p3 := probe(v.Add(mgl32.Vec3{half, half, 0})).Sub(v)
		p4 := probe(v.Add(mgl32.Vec3{-half, half, 0})).Sub(v)

		n := p1.Cross(p2).Add(p2.Cross(p3)).Add(p3.Cross(p4)).Add(p4.Cross(p1))
		if n.Len() == 0 {
			n = mgl32.Vec3{0, 0, 1}
		}
		c.Vertices[i].Normal = quantizeNormal(n.Normalize())
	}
	c.normalsChanged = true
}

// quantizeNormal snaps each component to the signed byte grid used on disk.
func quantizeNormal(n mgl32.Vec3) mgl32.Vec3 {
	for i := range n {
		n[i] = float32(packNormal(n[i])) / 127
	}
	return n
}

func packNormal(v float32) int8 {
	return int8(max(-127, min(127, math.Round(float64(v)*127))))
}

// loadNormals reads MCNR triples. On disk a normal is stored as (-y, x, z) of the editor normal.
func (c *Chunk) loadNormals(data []byte) {
	for i := range c.Vertices {
		if (i+1)*3 > len(data) {
			break
		}
		f0 := float32(int8(data[i*3])) / 127
		f1 := float32(int8(data[i*3+1])) / 127
		f2 := float32(int8(data[i*3+2])) / 127
		c.Vertices[i].Normal = mgl32.Vec3{f1, -f0, f2}
	}
}

func (c *Chunk) encodeNormals(dst []byte) {
	for i, v := range c.Vertices {
		dst[i*3] = byte(packNormal(-v.Normal[1]))
		dst[i*3+1] = byte(packNormal(v.Normal[0]))
		dst[i*3+2] = byte(packNormal(v.Normal[2]))
	}
}
