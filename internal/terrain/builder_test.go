package terrain

import (
	"encoding/binary"
	"math"
	"slices"
	"testing"

	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// chunkDef describes a synthetic MCNK for tests.
type chunkDef struct {
	tileX, tileY int
	ix, iy       int
	base         float32
	height       func(x, y float32) float32 // absolute height at an editor position
	textures     []uint32                   // texture id per layer
	alpha        []byte                     // uniform alpha per layer, index 0 unused
	doodadRefs   []uint32
	holes        uint16
	flags        uint32
}

func chunkOrigin(tileX, tileY, ix, iy int) (float32, float32) {
	return float32(tileX)*TileSize + float32(ix)*ChunkSize,
		float32(tileY)*TileSize + float32(iy)*ChunkSize
}

func flatHeight(h float32) func(x, y float32) float32 {
	return func(float32, float32) float32 { return h }
}

// buildChunkPayload writes an MCNK payload with MCVT, MCNR (padded), MCLY,
// MCRF, MCSH, MCAL, MCLQ and MCSE sub-chunks.
func buildChunkPayload(t *testing.T, s chunkDef) []byte {
	t.Helper()
	if s.height == nil {
		s.height = flatHeight(s.base)
	}
	ox, oy := chunkOrigin(s.tileX, s.tileY, s.ix, s.iy)

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)
	mustWrite(t, cw, make([]byte, formats.MCNKHeaderSize))

	hdr := formats.MCNKHeader{
		Flags:       s.flags,
		IndexX:      uint32(s.ix),
		IndexY:      uint32(s.iy),
		NLayers:     uint32(len(s.textures)),
		NDoodadRefs: uint32(len(s.doodadRefs)),
		AreaID:      12,
		Holes:       s.holes,
		Position:    [3]float32{MapMidPoint - oy, MapMidPoint - ox, s.base},
	}
	rel := func(pos int64) uint32 { return uint32(pos) + formats.ChunkHeaderSize }

	heights := make([]byte, VertexCount*4)
	k := 0
	for row := range 17 {
		n, shift := outerPerRow, float32(0)
		if row%2 == 1 {
			n, shift = innerPerRow, 0.5*UnitSize
		}
		for col := range n {
			x := ox + float32(col)*UnitSize + shift
			y := oy + float32(row)*UnitSize*0.5
			binary.LittleEndian.PutUint32(heights[k*4:], math.Float32bits(s.height(x, y)-s.base))
			k++
		}
	}
	pos := mustChunk(t, cw, formats.TagMCVT, heights)
	hdr.OfsHeight = rel(pos)

	normals := make([]byte, normalBytes)
	for i := range VertexCount {
		normals[i*3+2] = 127
	}
	pos = mustChunk(t, cw, formats.TagMCNR, normals)
	mustWrite(t, cw, make([]byte, formats.MCNRPadding))
	hdr.OfsNormal = rel(pos)

	var mcal []byte
	layers := make([]formats.MCLY, len(s.textures))
	for i, tex := range s.textures {
		layers[i].TextureID = tex
		if i == 0 {
			continue
		}
		layers[i].Flags = formats.MCLYFlagUseAlpha | formats.MCLYFlagAlphaCompressed
		layers[i].OffsetInMCAL = uint32(len(mcal))
		for range formats.AlphaSide {
			mcal = append(mcal, 0xC0, s.alpha[i])
		}
	}
	pos = mustChunk(t, cw, formats.TagMCLY, formats.EncodeRecords(layers))
	hdr.OfsLayer = rel(pos)

	pos = mustChunk(t, cw, formats.TagMCRF, formats.EncodeUint32s(s.doodadRefs))
	hdr.OfsRefs = rel(pos)

	shadow := make([]byte, 512)
	for i := range shadow {
		shadow[i] = byte(i)
	}
	pos = mustChunk(t, cw, formats.TagMCSH, shadow)
	hdr.OfsShadow = rel(pos)
	hdr.SizeShadow = uint32(8 + len(shadow))

	pos = mustChunk(t, cw, formats.TagMCAL, mcal)
	hdr.OfsAlpha = rel(pos)
	hdr.SizeAlpha = uint32(8 + len(mcal))

	pos = mustChunk(t, cw, formats.TagMCLQ, nil)
	hdr.OfsLiquid = rel(pos)
	hdr.SizeLiquid = 8

	pos = mustChunk(t, cw, formats.TagMCSE, nil)
	hdr.OfsSndEmitters = rel(pos)

	if err := cw.PatchValue(0, &hdr); err != nil {
		t.Fatalf("patching header: %v", err)
	}
	return buf.Bytes()
}

func mustChunk(t *testing.T, cw *formats.ChunkWriter, tag formats.Tag, payload []byte) int64 {
	t.Helper()
	pos, err := cw.WriteChunk(tag, payload)
	if err != nil {
		t.Fatalf("writing %s: %v", tag, err)
	}
	return pos
}

func mustWrite(t *testing.T, cw *formats.ChunkWriter, p []byte) {
	t.Helper()
	if _, err := cw.Write(p); err != nil {
		t.Fatalf("writing: %v", err)
	}
}

// tileDef describes a synthetic tile for tests.
type tileDef struct {
	tileX, tileY int
	base         float32
	height       func(x, y float32) float32
	textures     []string
	layers       []uint32 // texture ids used by every chunk
	alpha        []byte
	doodadNames  []string
	doodads      []formats.MDDF
	// doodadChunk maps an MDDF index to the chunk index that references it.
	doodadChunk map[int]int
	noMCIN      bool
	chunkCount  int // defaults to 256
}

// buildTile writes a complete tile in the order the editor writes it back:
// MVER MHDR MCIN MTEX MMDX MMID MWMO MWID MDDF MODF MH2O MCNK... MFBO.
func buildTile(t *testing.T, s tileDef) []byte {
	t.Helper()
	if s.chunkCount == 0 {
		s.chunkCount = formats.ChunksPerTile
	}

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)
	mustChunk(t, cw, formats.TagMVER, formats.EncodeUint32s([]uint32{formats.ADTVersion}))
	mhdrPos := mustChunk(t, cw, formats.TagMHDR, make([]byte, 64))
	hdr := formats.MHDR{Flags: 1}

	var mcinPos int64
	if !s.noMCIN {
		mcinPos = mustChunk(t, cw, formats.TagMCIN, make([]byte, formats.ChunksPerTile*16))
		hdr.OfsMcin = formats.HeaderOffset(mcinPos)
	}

	texBlock, _ := encoding.JoinNames(s.textures)
	hdr.OfsMtex = formats.HeaderOffset(mustChunk(t, cw, formats.TagMTEX, texBlock))

	nameBlock, offsets := encoding.JoinNames(s.doodadNames)
	ids := make([]uint32, len(offsets))
	for i, o := range offsets {
		ids[i] = uint32(o)
	}
	hdr.OfsMmdx = formats.HeaderOffset(mustChunk(t, cw, formats.TagMMDX, nameBlock))
	hdr.OfsMmid = formats.HeaderOffset(mustChunk(t, cw, formats.TagMMID, formats.EncodeUint32s(ids)))

	wmoBlock, _ := encoding.JoinNames([]string{`World\wmo\Tower.wmo`})
	hdr.OfsMwmo = formats.HeaderOffset(mustChunk(t, cw, formats.TagMWMO, wmoBlock))
	hdr.OfsMwid = formats.HeaderOffset(mustChunk(t, cw, formats.TagMWID, formats.EncodeUint32s([]uint32{0})))
	hdr.OfsMddf = formats.HeaderOffset(mustChunk(t, cw, formats.TagMDDF, formats.EncodeRecords(s.doodads)))
	modf := []formats.MODF{{UniqueID: 900, Position: [3]float32{10, 20, 30}, Extents: [6]float32{0, 0, 0, 5, 5, 5}}}
	hdr.OfsModf = formats.HeaderOffset(mustChunk(t, cw, formats.TagMODF, formats.EncodeRecords(modf)))
	hdr.OfsMh2o = formats.HeaderOffset(mustChunk(t, cw, formats.TagMH2O, []byte{1, 2, 3, 4}))

	index := make([]formats.MCIN, formats.ChunksPerTile)
	for i := range s.chunkCount {
		var refs []uint32
		for d, c := range s.doodadChunk {
			if c == i {
				refs = append(refs, uint32(d))
			}
		}
		slices.Sort(refs)
		payload := buildChunkPayload(t, chunkDef{
			tileX: s.tileX, tileY: s.tileY,
			ix: i % 16, iy: i / 16,
			base:       s.base,
			height:     s.height,
			textures:   s.layers,
			alpha:      s.alpha,
			doodadRefs: refs,
		})
		pos := mustChunk(t, cw, formats.TagMCNK, payload)
		index[i] = formats.MCIN{OfsMcnk: uint32(pos), Size: uint32(8 + len(payload))}
	}

	hdr.OfsMfbo = formats.HeaderOffset(mustChunk(t, cw, formats.TagMFBO, make([]byte, 36)))

	if err := cw.PatchValue(mhdrPos+8, &hdr); err != nil {
		t.Fatal(err)
	}
	if !s.noMCIN {
		if err := cw.PatchValue(mcinPos+8, index); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

// doodadDefAt places a doodad at an editor position.
func doodadDefAt(nameID, uuid uint32, x, y, z float32) formats.MDDF {
	return formats.MDDF{
		NameID:   nameID,
		UniqueID: uuid,
		Position: [3]float32{x, z, y},
		Rotation: [3]float32{0, 90, 0},
		Scale:    1024,
	}
}
