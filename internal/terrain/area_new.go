package terrain

import (
	"fmt"

	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// NewArea creates a flat tile at the given height. When texture is not empty
// every chunk gets it as base layer. The tile counts as changed until saved.
func NewArea(continent string, ix, iy int, height float32, texture string, opts AreaOptions) (*Area, error) {
	data, err := BlankTile(ix, iy, height, texture)
	if err != nil {
		return nil, err
	}
	a, err := ParseArea(data, continent, ix, iy, opts)
	if err != nil {
		return nil, err
	}
	a.wasChanged = true
	return a, nil
}

// BlankTile encodes a flat tile with empty model tables.
func BlankTile(ix, iy int, height float32, texture string) ([]byte, error) {
	if ix < 0 || iy < 0 || ix >= TilesPerMap || iy >= TilesPerMap {
		return nil, fmt.Errorf("tile %d,%d is outside the map", ix, iy)
	}

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)
	var hdr formats.MHDR
	index := make([]formats.MCIN, formats.ChunksPerTile)

	write := func(tag formats.Tag, payload []byte) (int64, error) {
		return cw.WriteChunk(tag, payload)
	}
	if _, err := write(formats.TagMVER, formats.EncodeUint32s([]uint32{formats.ADTVersion})); err != nil {
		return nil, err
	}
	mhdrPos, err := write(formats.TagMHDR, make([]byte, formats.MHDRSize))
	if err != nil {
		return nil, err
	}
	mcinPos, err := write(formats.TagMCIN, make([]byte, formats.ChunksPerTile*formats.MCINEntrySize))
	if err != nil {
		return nil, err
	}
	hdr.OfsMcin = formats.HeaderOffset(mcinPos)

	var textures []string
	if texture != "" {
		textures = []string{texture}
	}
	texBlock, _ := encoding.JoinNames(textures)
	tables := []struct {
		tag  formats.Tag
		data []byte
		ofs  *uint32
	}{
		{formats.TagMTEX, texBlock, &hdr.OfsMtex},
		{formats.TagMMDX, nil, &hdr.OfsMmdx},
		{formats.TagMMID, nil, &hdr.OfsMmid},
		{formats.TagMWMO, nil, &hdr.OfsMwmo},
		{formats.TagMWID, nil, &hdr.OfsMwid},
		{formats.TagMDDF, nil, &hdr.OfsMddf},
		{formats.TagMODF, nil, &hdr.OfsModf},
	}
	for _, t := range tables {
		pos, err := write(t.tag, t.data)
		if err != nil {
			return nil, err
		}
		*t.ofs = formats.HeaderOffset(pos)
	}

	for i := range formats.ChunksPerTile {
		payload, err := blankChunk(ix, iy, i%formats.ChunksPerSide, i/formats.ChunksPerSide, height, texture != "")
		if err != nil {
			return nil, err
		}
		pos, err := write(formats.TagMCNK, payload)
		if err != nil {
			return nil, err
		}
		index[i] = formats.MCIN{OfsMcnk: uint32(pos), Size: uint32(formats.ChunkHeaderSize + len(payload))}
	}

	if err := cw.PatchValue(mhdrPos+formats.ChunkHeaderSize, &hdr); err != nil {
		return nil, err
	}
	if err := cw.PatchValue(mcinPos+formats.ChunkHeaderSize, index); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blankChunk encodes a flat MCNK payload laid out like client files:
// MCVT, MCNR with its padding, MCLY, MCRF, MCAL, MCLQ and MCSE.
func blankChunk(tileX, tileY, ix, iy int, height float32, textured bool) ([]byte, error) {
	ox := float32(tileX)*TileSize + float32(ix)*ChunkSize
	oy := float32(tileY)*TileSize + float32(iy)*ChunkSize
	hdr := formats.MCNKHeader{
		IndexX:   uint32(ix),
		IndexY:   uint32(iy),
		Position: [3]float32{MapMidPoint - oy, MapMidPoint - ox, height},
	}

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)
	if _, err := cw.Write(make([]byte, formats.MCNKHeaderSize)); err != nil {
		return nil, err
	}
	rel := func(pos int64) uint32 { return uint32(pos) + formats.ChunkHeaderSize }

	pos, err := cw.WriteChunk(formats.TagMCVT, make([]byte, VertexCount*4))
	if err != nil {
		return nil, err
	}
	hdr.OfsHeight = rel(pos)

	normals := make([]byte, normalBytes)
	for i := range VertexCount {
		normals[i*3+2] = 127
	}
	if pos, err = cw.WriteChunk(formats.TagMCNR, normals); err != nil {
		return nil, err
	}
	if _, err := cw.Write(make([]byte, formats.MCNRPadding)); err != nil {
		return nil, err
	}
	hdr.OfsNormal = rel(pos)

	var layers []formats.MCLY
	if textured {
		layers = []formats.MCLY{{TextureID: 0}}
	}
	hdr.NLayers = uint32(len(layers))
	if pos, err = cw.WriteChunk(formats.TagMCLY, formats.EncodeRecords(layers)); err != nil {
		return nil, err
	}
	hdr.OfsLayer = rel(pos)

	if pos, err = cw.WriteChunk(formats.TagMCRF, nil); err != nil {
		return nil, err
	}
	hdr.OfsRefs = rel(pos)

	if pos, err = cw.WriteChunk(formats.TagMCAL, nil); err != nil {
		return nil, err
	}
	hdr.OfsAlpha = rel(pos)
	hdr.SizeAlpha = formats.ChunkHeaderSize

	if pos, err = cw.WriteChunk(formats.TagMCLQ, nil); err != nil {
		return nil, err
	}
	hdr.OfsLiquid = rel(pos)
	hdr.SizeLiquid = formats.ChunkHeaderSize

	if pos, err = cw.WriteChunk(formats.TagMCSE, nil); err != nil {
		return nil, err
	}
	hdr.OfsSndEmitters = rel(pos)

	if err := cw.PatchValue(0, &hdr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
