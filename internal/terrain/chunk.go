package terrain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/picking"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// ErrChunkDisposed is returned when a released chunk is used.
var ErrChunkDisposed = errors.New("chunk is disposed")

// ChunkState is the lifecycle stage of a chunk.
type ChunkState int

const (
	ChunkUnloaded ChunkState = iota
	ChunkLoading
	ChunkLoaded
	ChunkEditing
	ChunkSaving
	ChunkDisposed
)

// String returns the state name.
func (s ChunkState) String() string {
	switch s {
	case ChunkUnloaded:
		return "unloaded"
	case ChunkLoading:
		return "loading"
	case ChunkLoaded:
		return "loaded"
	case ChunkEditing:
		return "editing"
	case ChunkSaving:
		return "saving"
	case ChunkDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("ChunkState(%d)", int(s))
	}
}

// Neutral vertex color (BGRA); MCCV values scale the lighting by value/127.
const neutralColor = 0x7F

// Vertex is one terrain grid point in editor world space.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Color    [4]uint8 // B, G, R, A
}

// subChunk is one sub-chunk of an MCNK payload in file order.
type subChunk struct {
	tag  formats.Tag
	data []byte
	// offset is the tag position relative to the MCNK tag as last read or written.
	offset uint32
	// trailer holds bytes that belong to the sub-chunk but sit outside its declared size.
	trailer []byte
}

// Chunk is one of the 256 cells of an area: 145 vertices, up to four
// texture layers with their alpha maps, holes and model references.
type Chunk struct {
	IndexX, IndexY int
	AreaIndex      int

	Header     formats.MCNKHeader
	Vertices   [VertexCount]Vertex
	Alpha      formats.AlphaMap
	Holes      [64]byte // 0xFF solid, 0x00 hole, one byte per 8x8 quad
	Layers     []formats.MCLY
	DoodadRefs []uint32
	MapObjRefs []uint32

	BoundingBox picking.AABB
	ModelBox    picking.AABB

	IsAlphaChanged  bool
	TexturesChanged bool
	DoodadsChanged  bool

	// CompressNewLayers selects RLE storage for layers created by painting.
	CompressNewLayers bool

	state     ChunkState
	mode      formats.AlphaMode
	origin    mgl32.Vec2
	midPoint  mgl32.Vec3
	minHeight float32
	maxHeight float32

	updateNormals  bool
	heightsChanged bool
	normalsChanged bool
	colorsChanged  bool
	holesChanged   bool
	flagsChanged   bool

	layerAlpha [formats.MaxLayers][]byte
	layerDirty [formats.MaxLayers]bool

	subChunks []subChunk
	tail      []byte
}

// LoadChunk parses an MCNK payload (the bytes after the chunk's tag and size).
func LoadChunk(data []byte, ix, iy, area int, mode formats.AlphaMode) (*Chunk, error) {
	hdr, err := formats.ParseMCNKHeader(data)
	if err != nil {
		return nil, fmt.Errorf("chunk %d,%d: %w", ix, iy, err)
	}

	c := &Chunk{
		IndexX:    ix,
		IndexY:    iy,
		AreaIndex: area,
		Header:    hdr,
		mode:      mode,
		state:     ChunkLoading,
		ModelBox:  picking.EmptyAABB(),
	}
	c.scanSubChunks(data)

	c.loadVertices()
	c.loadNormals(c.subData(formats.TagMCNR))
	c.loadColors(c.subData(formats.TagMCCV))

	if mcly, ok := c.subChunk(formats.TagMCLY); ok {
		layers, err := formats.DecodeRecords[formats.MCLY](mcly.data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d,%d: layers: %w", ix, iy, err)
		}
		if len(layers) > formats.MaxLayers {
			logger.Warn("chunk has too many texture layers",
				zap.Int("x", ix), zap.Int("y", iy), zap.Int("layers", len(layers)))
			layers = layers[:formats.MaxLayers]
		}
		c.Layers = layers
	}
	c.loadAlpha(c.subData(formats.TagMCAL))

	if mcrf, ok := c.subChunk(formats.TagMCRF); ok {
		refs := formats.DecodeUint32s(mcrf.data)
		nd := min(int(hdr.NDoodadRefs), len(refs))
		c.DoodadRefs = slices.Clone(refs[:nd])
		c.MapObjRefs = slices.Clone(refs[nd:min(nd+int(hdr.NMapObjRefs), len(refs))])
	}

	c.refreshHoles()
	c.state = ChunkLoaded
	return c, nil
}

// scanSubChunks splits the payload after the header into sub-chunks, keeping file order.
func (c *Chunk) scanSubChunks(data []byte) {
	pos := formats.MCNKHeaderSize
	for pos+formats.ChunkHeaderSize <= len(data) {
		sc, err := formats.ReadChunkAt(data, pos)
		if err != nil {
			break
		}
		sub := subChunk{
			tag:    sc.Tag,
			data:   slices.Clone(sc.Data),
			offset: uint32(sc.Offset + formats.ChunkHeaderSize),
		}
		end := sc.End()

		switch {
		case sc.Tag == formats.TagMCNR && len(sc.Data) == normalBytes && !knownSubTagAt(data, end):
			padEnd := min(end+formats.MCNRPadding, len(data))
			sub.trailer = slices.Clone(data[end:padEnd])
			end = padEnd
		case sc.Tag == formats.TagMCLQ && len(sc.Data) == 0 && c.Header.SizeLiquid > formats.ChunkHeaderSize:
			// Liquid data follows a zero-size MCLQ header; its extent is in the chunk header.
			liqEnd := min(sc.Offset+int(c.Header.SizeLiquid), len(data))
			sub.trailer = slices.Clone(data[end:liqEnd])
			end = liqEnd
		}

		c.subChunks = append(c.subChunks, sub)
		pos = end
	}
	if pos < len(data) {
		c.tail = slices.Clone(data[pos:])
	}
}

func knownSubTagAt(data []byte, pos int) bool {
	if pos+4 > len(data) {
		return false
	}
	switch formats.Tag(binary.LittleEndian.Uint32(data[pos:])) {
	case formats.TagMCVT, formats.TagMCCV, formats.TagMCNR, formats.TagMCLY, formats.TagMCRF,
		formats.TagMCSH, formats.TagMCAL, formats.TagMCLQ, formats.TagMCSE:
		return true
	}
	return false
}

func (c *Chunk) subChunk(tag formats.Tag) (*subChunk, bool) {
	for i := range c.subChunks {
		if c.subChunks[i].tag == tag {
			return &c.subChunks[i], true
		}
	}
	return nil, false
}

func (c *Chunk) subData(tag formats.Tag) []byte {
	if sc, ok := c.subChunk(tag); ok {
		return sc.data
	}
	return nil
}

// ensureSubChunk returns the sub-chunk with tag, inserting an empty one after
// the first present tag of after (or at the end).
func (c *Chunk) ensureSubChunk(tag formats.Tag, after ...formats.Tag) *subChunk {
	if sc, ok := c.subChunk(tag); ok {
		return sc
	}
	at := len(c.subChunks)
	for _, a := range after {
		if i := slices.IndexFunc(c.subChunks, func(s subChunk) bool { return s.tag == a }); i >= 0 {
			at = i + 1
			break
		}
	}
	c.subChunks = slices.Insert(c.subChunks, at, subChunk{tag: tag})
	return &c.subChunks[at]
}

func (c *Chunk) loadVertices() {
	c.origin = mgl32.Vec2{
		MapMidPoint - c.Header.Position[1],
		MapMidPoint - c.Header.Position[0],
	}
	base := c.Header.Position[2]
	heights := c.subData(formats.TagMCVT)

	k := 0
	for row := range 17 {
		n := outerPerRow
		shift := float32(0)
		if row%2 == 1 {
			n = innerPerRow
			shift = 0.5 * UnitSize
		}
		for col := range n {
			var h float32
			if (k+1)*4 <= len(heights) {
				h = math.Float32frombits(binary.LittleEndian.Uint32(heights[k*4:]))
			}
			z := base + h
			c.Vertices[k].Position = mgl32.Vec3{
				c.origin[0] + float32(col)*UnitSize + shift,
				c.origin[1] + float32(row)*UnitSize*0.5,
				z,
			}
			c.Vertices[k].Normal = mgl32.Vec3{0, 0, 1}
			k++
		}
	}
	c.updateBounds()
}

// updateBounds recomputes the height range and the bounding box from the vertices.
func (c *Chunk) updateBounds() {
	c.minHeight = math.MaxFloat32
	c.maxHeight = -math.MaxFloat32
	for _, v := range c.Vertices {
		c.minHeight = min(c.minHeight, v.Position[2])
		c.maxHeight = max(c.maxHeight, v.Position[2])
	}
	c.BoundingBox = picking.AABB{
		Min: mgl32.Vec3{c.origin[0], c.origin[1], c.minHeight},
		Max: mgl32.Vec3{c.origin[0] + ChunkSize, c.origin[1] + ChunkSize, c.maxHeight},
	}
	c.midPoint = c.BoundingBox.Center()
}

func (c *Chunk) loadColors(data []byte) {
	for i := range c.Vertices {
		if (i+1)*4 <= len(data) {
			copy(c.Vertices[i].Color[:], data[i*4:])
		} else {
			c.Vertices[i].Color = [4]uint8{neutralColor, neutralColor, neutralColor, neutralColor}
		}
	}
}

func (c *Chunk) loadAlpha(mcal []byte) {
	for i := 1; i < len(c.Layers); i++ {
		layer := c.Layers[i]
		if layer.Flags&formats.MCLYFlagUseAlpha == 0 {
			continue
		}
		start := int(layer.OffsetInMCAL)
		if start > len(mcal) {
			logger.Warn("alpha layer offset outside MCAL",
				zap.Int("x", c.IndexX), zap.Int("y", c.IndexY), zap.Int("layer", i))
			continue
		}

		var (
			n   int
			err error
		)
		if layer.Flags&formats.MCLYFlagAlphaCompressed != 0 {
			n, err = formats.DecompressAlpha(mcal[start:], &c.Alpha, i)
		} else {
			n, err = formats.UnpackAlpha(mcal[start:], &c.Alpha, i, c.mode)
		}
		if err != nil {
			logger.Warn("damaged alpha layer",
				zap.Int("x", c.IndexX), zap.Int("y", c.IndexY), zap.Int("layer", i), zap.Error(err))
		}
		c.layerAlpha[i] = slices.Clone(mcal[start : start+n])

		if c.mode == formats.AlphaModeLegacy && c.Header.Flags&formats.MCNKFlagDoNotFixAlpha == 0 {
			formats.FixAlphaEdge(&c.Alpha, i)
		}
	}
}

// State returns the lifecycle stage.
func (c *Chunk) State() ChunkState {
	return c.state
}

// Origin returns the editor position of the chunk's first vertex column and row.
func (c *Chunk) Origin() mgl32.Vec2 {
	return c.origin
}

// MidPoint returns the center of the bounding box.
func (c *Chunk) MidPoint() mgl32.Vec3 {
	return c.midPoint
}

// HasImpassFlag reports whether the chunk is flagged impassable.
func (c *Chunk) HasImpassFlag() bool {
	return c.Header.Flags&formats.MCNKFlagImpassable != 0
}

// SetImpassable sets or clears the impassable flag.
func (c *Chunk) SetImpassable(on bool) bool {
	if c.state == ChunkDisposed || c.HasImpassFlag() == on {
		return false
	}
	if on {
		c.Header.Flags |= formats.MCNKFlagImpassable
	} else {
		c.Header.Flags &^= formats.MCNKFlagImpassable
	}
	c.flagsChanged = true
	return true
}

// AlphaMode returns the alpha storage mode of the chunk.
func (c *Chunk) AlphaMode() formats.AlphaMode {
	return c.mode
}

// IsDirty reports whether any saved data differs from what was loaded.
func (c *Chunk) IsDirty() bool {
	return c.heightsChanged || c.normalsChanged || c.colorsChanged || c.holesChanged || c.flagsChanged ||
		c.TexturesChanged || c.DoodadsChanged || c.anyAlphaDirty()
}

func (c *Chunk) anyAlphaDirty() bool {
	return slices.Contains(c.layerDirty[:], true)
}

// AddDoodad records an MCRF reference to a doodad placement and grows the model box.
func (c *Chunk) AddDoodad(ref uint32, box picking.AABB) {
	c.DoodadRefs = append(c.DoodadRefs, ref)
	c.ModelBox.Union(box)
	c.DoodadsChanged = true
	c.ensureSubChunk(formats.TagMCRF, formats.TagMCLY, formats.TagMCNR)
	c.markEditing()
}

// RemoveDoodad drops references to the placement ref and shifts later ones down.
// Returns true when the chunk referenced it.
func (c *Chunk) RemoveDoodad(ref uint32) bool {
	found := false
	refs := make([]uint32, 0, len(c.DoodadRefs))
	for _, r := range c.DoodadRefs {
		switch {
		case r == ref:
			found = true
			continue
		case r > ref:
			r--
			c.DoodadsChanged = true
		}
		refs = append(refs, r)
	}
	if found {
		c.DoodadsChanged = true
	}
	c.DoodadRefs = refs
	return found
}

// markEditing moves a loaded chunk into the editing state.
func (c *Chunk) markEditing() {
	if c.state == ChunkLoaded {
		c.state = ChunkEditing
	}
}

// Dispose releases the chunk's buffers. The chunk cannot be used afterwards.
func (c *Chunk) Dispose() {
	c.subChunks = nil
	c.tail = nil
	c.Layers = nil
	c.DoodadRefs = nil
	c.MapObjRefs = nil
	c.layerAlpha = [formats.MaxLayers][]byte{}
	c.state = ChunkDisposed
}
