package terrain

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/models"
	"github.com/Faultbox/adtedit/internal/picking"
	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// Area errors.
var (
	ErrMissingChunks = errors.New("tile has fewer than 256 MCNK chunks")
	ErrAreaClosed    = errors.New("area is closed")
)

// FileProvider opens game files and creates output files.
type FileProvider interface {
	OpenFile(path string) (io.ReadCloser, error)
	CreateOutputStream(path string) (io.WriteCloser, error)
}

// InstanceRegistry tracks the render instances of placed models.
type InstanceRegistry interface {
	AddInstance(name string, uuid uint32, position, rotation mgl32.Vec3, scale float32) *models.Instance
	RemoveInstance(name string, uuid uint32)
}

// AreaOptions configures how a tile is loaded.
type AreaOptions struct {
	Registry      InstanceRegistry
	Textures      TextureResolver
	AlphaMode     formats.AlphaMode
	CompressAlpha bool // RLE-compress layers added by painting
}

// DoodadInstance is one doodad placement of an area.
type DoodadInstance struct {
	UUID        uint32
	Name        string
	BoundingBox picking.AABB
	Instance    *models.Instance // nil when the model could not be loaded
}

// MapObjectPlacement is one world model placement, read only.
type MapObjectPlacement struct {
	UUID     uint32
	Name     string
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Extents  picking.AABB
}

// Area is one map tile: 16x16 chunks plus its texture and model tables.
type Area struct {
	Continent      string
	IndexX, IndexY int
	BoundingBox    picking.AABB
	ModelBox       picking.AABB
	IsValid        bool

	opts   AreaOptions
	chunks [formats.ChunksPerTile]*Chunk

	version    []byte
	header     formats.MHDR
	chunkIndex []formats.MCIN
	present    map[formats.Tag]bool

	textureNames    []string
	textureBlock    []byte
	textures        []Texture
	texturesChanged bool

	doodadNames       []string
	doodadNameOffsets []uint32
	doodadNameBlock   []byte
	doodadNameIDs     []uint32
	doodadNameLookup  map[uint32]string
	doodadDefs        []formats.MDDF
	doodads           []*DoodadInstance

	mapObjectNameBlock  []byte
	mapObjectNameIDs    []uint32
	mapObjectNameLookup map[uint32]string
	mapObjectDefs       []formats.MODF

	// Unknown chunks before and after the MCNK run, first occurrence only.
	headChunks []formats.Chunk
	tailChunks []formats.Chunk

	wasChanged bool

	vertexMu     sync.RWMutex
	fullVertices []Vertex
}

// FilePath returns the game path of a tile.
func FilePath(continent string, ix, iy int) string {
	return fmt.Sprintf(`World\Maps\%s\%s_%d_%d.adt`, continent, continent, ix, iy)
}

// LoadArea reads and parses a tile through the provider.
func LoadArea(p FileProvider, continent string, ix, iy int, opts AreaOptions) (*Area, error) {
	path := FilePath(continent, ix, iy)
	r, err := p.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseArea(data, continent, ix, iy, opts)
}

// ParseArea parses a tile from memory.
func ParseArea(data []byte, continent string, ix, iy int, opts AreaOptions) (*Area, error) {
	a := &Area{
		Continent:           continent,
		IndexX:              ix,
		IndexY:              iy,
		BoundingBox:         picking.EmptyAABB(),
		ModelBox:            picking.EmptyAABB(),
		opts:                opts,
		present:             make(map[formats.Tag]bool),
		doodadNameLookup:    make(map[uint32]string),
		mapObjectNameLookup: make(map[uint32]string),
	}
	if err := a.parse(data); err != nil {
		a.Close()
		return nil, fmt.Errorf("tile %s %d,%d: %w", continent, ix, iy, err)
	}
	a.IsValid = true
	a.syncVertices()

	logger.Debug("area loaded",
		zap.String("continent", continent),
		zap.Int("x", ix), zap.Int("y", iy),
		zap.Int("textures", len(a.textureNames)),
		zap.Int("doodads", len(a.doodadDefs)),
		zap.Int("mapObjects", len(a.mapObjectDefs)))
	return a, nil
}

func (a *Area) parse(data []byte) error {
	all := formats.ScanChunks(data)

	var mcnks []formats.Chunk
	top := make(map[formats.Tag]formats.Chunk)
	for _, c := range all {
		if c.Tag == formats.TagMCNK {
			mcnks = append(mcnks, c)
			continue
		}
		if a.present[c.Tag] {
			continue
		}
		a.present[c.Tag] = true
		top[c.Tag] = c
		if !interpreted(c.Tag) {
			c.Data = slices.Clone(c.Data)
			if len(mcnks) == 0 {
				a.headChunks = append(a.headChunks, c)
			} else {
				a.tailChunks = append(a.tailChunks, c)
			}
		}
	}

	mhdr, ok := top[formats.TagMHDR]
	if !ok {
		return formats.ErrMissingHeader
	}
	hdrs, err := formats.DecodeRecords[formats.MHDR](mhdr.Data)
	if err != nil || len(hdrs) == 0 {
		return fmt.Errorf("%w: MHDR is %d bytes", formats.ErrTruncatedRecord, len(mhdr.Data))
	}
	a.header = hdrs[0]
	if v, ok := top[formats.TagMVER]; ok {
		a.version = slices.Clone(v.Data)
	}

	located, err := a.locateChunks(data, top, mcnks)
	if err != nil {
		return err
	}

	a.loadTextures(top[formats.TagMTEX].Data)
	if err := a.loadDoodads(top); err != nil {
		return err
	}
	if err := a.loadMapObjects(top); err != nil {
		return err
	}

	refs := make(map[uint32]picking.AABB, len(a.doodads))
	for i, d := range a.doodads {
		refs[uint32(i)] = d.BoundingBox
	}
	areaIndex := AreaIndex(a.IndexX, a.IndexY)
	for i, mc := range located {
		c, err := LoadChunk(mc.Data, i%formats.ChunksPerSide, i/formats.ChunksPerSide, areaIndex, a.opts.AlphaMode)
		if err != nil {
			return err
		}
		c.CompressNewLayers = a.opts.CompressAlpha
		for _, ref := range c.DoodadRefs {
			if box, ok := refs[ref]; ok {
				c.ModelBox.Union(box)
			}
		}
		a.chunks[i] = c
		a.BoundingBox.Union(c.BoundingBox)
		a.ModelBox.Union(c.ModelBox)
	}
	return nil
}

func interpreted(tag formats.Tag) bool {
	switch tag {
	case formats.TagMVER, formats.TagMHDR, formats.TagMCIN, formats.TagMTEX,
		formats.TagMMDX, formats.TagMMID, formats.TagMWMO, formats.TagMWID,
		formats.TagMDDF, formats.TagMODF:
		return true
	}
	return false
}

// locateChunks returns the 256 MCNK chunks in index order. The MCIN table is used
// when every entry points at an MCNK, otherwise the sequential scan order.
func (a *Area) locateChunks(data []byte, top map[formats.Tag]formats.Chunk, scanned []formats.Chunk) ([]formats.Chunk, error) {
	if mcin, ok := top[formats.TagMCIN]; ok {
		entries, err := formats.DecodeRecords[formats.MCIN](mcin.Data)
		if err == nil && len(entries) >= formats.ChunksPerTile {
			a.chunkIndex = entries[:formats.ChunksPerTile]
			if located, ok := chunksFromIndex(data, a.chunkIndex); ok {
				return located, nil
			}
			logger.Warn("MCIN does not match MCNK layout, using file order",
				zap.String("continent", a.Continent), zap.Int("x", a.IndexX), zap.Int("y", a.IndexY))
		}
	}

	if len(scanned) < formats.ChunksPerTile {
		return nil, fmt.Errorf("%w: found %d", ErrMissingChunks, len(scanned))
	}
	scanned = scanned[:formats.ChunksPerTile]
	if a.chunkIndex == nil {
		a.chunkIndex = make([]formats.MCIN, formats.ChunksPerTile)
	}
	for i, c := range scanned {
		a.chunkIndex[i].OfsMcnk = uint32(c.Offset)
		a.chunkIndex[i].Size = uint32(formats.ChunkHeaderSize + c.Size())
	}
	return scanned, nil
}

func chunksFromIndex(data []byte, index []formats.MCIN) ([]formats.Chunk, bool) {
	out := make([]formats.Chunk, len(index))
	for i, e := range index {
		c, err := formats.ReadChunkAt(data, int(e.OfsMcnk))
		if err != nil || c.Tag != formats.TagMCNK {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

func (a *Area) loadTextures(block []byte) {
	a.textureBlock = slices.Clone(block)
	a.textureNames, _ = encoding.SplitNames(block)
	a.textures = make([]Texture, len(a.textureNames))
	for i, name := range a.textureNames {
		a.textures[i] = a.resolveTexture(name)
	}
}

func (a *Area) resolveTexture(name string) Texture {
	if a.opts.Textures == nil {
		return nil
	}
	return a.opts.Textures.GetTexture(name)
}

func (a *Area) loadDoodads(top map[formats.Tag]formats.Chunk) error {
	a.doodadNameBlock = slices.Clone(top[formats.TagMMDX].Data)
	names, offsets := encoding.SplitNames(a.doodadNameBlock)
	a.doodadNames = names
	a.doodadNameOffsets = make([]uint32, len(offsets))
	for i, off := range offsets {
		a.doodadNameOffsets[i] = uint32(off)
		a.doodadNameLookup[uint32(off)] = names[i]
	}
	a.doodadNameIDs = formats.DecodeUint32s(top[formats.TagMMID].Data)

	defs, err := formats.DecodeRecords[formats.MDDF](top[formats.TagMDDF].Data)
	if err != nil {
		return fmt.Errorf("MDDF: %w", err)
	}
	a.doodadDefs = defs
	a.doodads = make([]*DoodadInstance, len(defs))
	for i, def := range defs {
		a.doodads[i] = a.registerDoodad(def)
	}
	return nil
}

// doodadName resolves an MDDF name index through MMID and MMDX.
func (a *Area) doodadName(nameID uint32) string {
	if int(nameID) >= len(a.doodadNameIDs) {
		return ""
	}
	return a.doodadNameLookup[a.doodadNameIDs[nameID]]
}

func (a *Area) registerDoodad(def formats.MDDF) *DoodadInstance {
	d := &DoodadInstance{
		UUID:        def.UniqueID,
		Name:        a.doodadName(def.NameID),
		BoundingBox: picking.EmptyAABB(),
	}
	if a.opts.Registry == nil || d.Name == "" {
		return d
	}

	pos, rot, scale := placementFromDef(def)
	d.Instance = a.opts.Registry.AddInstance(d.Name, d.UUID, pos, rot, scale)
	if d.Instance != nil {
		d.BoundingBox = d.Instance.BoundingBox()
	}
	return d
}

// placementFromDef converts a file placement to editor position, rotation and scale.
func placementFromDef(def formats.MDDF) (pos, rot mgl32.Vec3, scale float32) {
	pos = mgl32.Vec3{def.Position[0], def.Position[2], def.Position[1]}
	rot = mgl32.Vec3{-def.Rotation[0], -def.Rotation[2], 90 - def.Rotation[1]}
	return pos, rot, float32(def.Scale) / 1024
}

// defFromPlacement is the inverse of placementFromDef.
func defFromPlacement(pos, rot mgl32.Vec3, scale float32) formats.MDDF {
	return formats.MDDF{
		Position: [3]float32{pos[0], pos[2], pos[1]},
		Rotation: [3]float32{-rot[0], 90 - rot[2], -rot[1]},
		Scale:    uint16(scale * 1024),
	}
}

func (a *Area) loadMapObjects(top map[formats.Tag]formats.Chunk) error {
	a.mapObjectNameBlock = slices.Clone(top[formats.TagMWMO].Data)
	names, offsets := encoding.SplitNames(a.mapObjectNameBlock)
	for i, off := range offsets {
		a.mapObjectNameLookup[uint32(off)] = names[i]
	}
	a.mapObjectNameIDs = formats.DecodeUint32s(top[formats.TagMWID].Data)

	defs, err := formats.DecodeRecords[formats.MODF](top[formats.TagMODF].Data)
	if err != nil {
		return fmt.Errorf("MODF: %w", err)
	}
	a.mapObjectDefs = defs
	return nil
}

// Chunk returns chunk i in row-major order, or nil.
func (a *Area) Chunk(i int) *Chunk {
	if i < 0 || i >= len(a.chunks) {
		return nil
	}
	return a.chunks[i]
}

// ChunkAt returns the chunk whose footprint contains (x, y), or nil.
func (a *Area) ChunkAt(x, y float32) *Chunk {
	first := a.chunks[0]
	if first == nil {
		return nil
	}
	o := first.Origin()
	cx := int((x - o[0]) / ChunkSize)
	cy := int((y - o[1]) / ChunkSize)
	if x < o[0] || y < o[1] || cx >= formats.ChunksPerSide || cy >= formats.ChunksPerSide {
		return nil
	}
	return a.chunks[cy*formats.ChunksPerSide+cx]
}

// TextureNames returns the tile texture list.
func (a *Area) TextureNames() []string {
	return slices.Clone(a.textureNames)
}

// Textures returns the resolved texture handles, parallel to TextureNames.
func (a *Area) Textures() []Texture {
	return slices.Clone(a.textures)
}

// TextureName implements TextureTable.
func (a *Area) TextureName(id uint32) string {
	if int(id) >= len(a.textureNames) {
		return ""
	}
	return a.textureNames[id]
}

// InternTexture implements TextureTable: it returns the index of name in the
// tile texture list, appending it when missing. Names compare case-insensitively.
func (a *Area) InternTexture(name string) uint32 {
	for i, n := range a.textureNames {
		if encoding.EqualFold(n, name) {
			return uint32(i)
		}
	}
	a.textureNames = append(a.textureNames, name)
	a.textures = append(a.textures, a.resolveTexture(name))
	a.texturesChanged = true
	a.wasChanged = true
	return uint32(len(a.textureNames) - 1)
}

// Doodads returns the doodad placements in MDDF order.
func (a *Area) Doodads() []*DoodadInstance {
	return slices.Clone(a.doodads)
}

// MapObjects returns the world model placements.
func (a *Area) MapObjects() []MapObjectPlacement {
	out := make([]MapObjectPlacement, 0, len(a.mapObjectDefs))
	for _, def := range a.mapObjectDefs {
		var name string
		if int(def.NameID) < len(a.mapObjectNameIDs) {
			name = a.mapObjectNameLookup[a.mapObjectNameIDs[def.NameID]]
		}
		e := def.Extents
		out = append(out, MapObjectPlacement{
			UUID:     def.UniqueID,
			Name:     name,
			Position: mgl32.Vec3{def.Position[0], def.Position[2], def.Position[1]},
			Rotation: mgl32.Vec3{def.Rotation[0], def.Rotation[2], def.Rotation[1]},
			Extents: picking.NewAABB(
				mgl32.Vec3{e[0], e[2], e[1]},
				mgl32.Vec3{e[3], e[5], e[4]},
			),
		})
	}
	return out
}

// IsChanged reports whether the area has unsaved edits.
func (a *Area) IsChanged() bool {
	if a.wasChanged {
		return true
	}
	for _, c := range a.chunks {
		if c != nil && c.IsDirty() {
			return true
		}
	}
	return false
}

// FullVertices returns a copy of all 256*145 vertices in chunk order.
// Safe to call while another goroutine edits the area.
func (a *Area) FullVertices() []Vertex {
	a.vertexMu.RLock()
	defer a.vertexMu.RUnlock()
	return slices.Clone(a.fullVertices)
}

// syncVertices publishes chunk vertices to the shared snapshot.
func (a *Area) syncVertices() {
	a.vertexMu.Lock()
	defer a.vertexMu.Unlock()
	if a.fullVertices == nil {
		a.fullVertices = make([]Vertex, formats.ChunksPerTile*VertexCount)
	}
	for i, c := range a.chunks {
		if c != nil {
			copy(a.fullVertices[i*VertexCount:], c.Vertices[:])
		}
	}
}

// Close releases the registered model instances and the chunks.
func (a *Area) Close() {
	if a.opts.Registry != nil {
		for _, d := range a.doodads {
			if d != nil && d.Instance != nil {
				a.opts.Registry.RemoveInstance(d.Name, d.UUID)
			}
		}
	}
	a.doodads = nil
	for _, c := range a.chunks {
		if c != nil {
			c.Dispose()
		}
	}
	a.IsValid = false
}
