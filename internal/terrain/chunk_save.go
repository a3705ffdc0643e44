package terrain

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/Faultbox/adtedit/pkg/formats"
)

// Encode serializes the chunk into an MCNK payload.
// Sub-chunks keep their file order; only the ones the editor changed are rebuilt,
// and header offsets follow the actual write positions.
func (c *Chunk) Encode() ([]byte, error) {
	if c.state == ChunkDisposed {
		return nil, ErrChunkDisposed
	}
	c.state = ChunkSaving
	defer func() { c.state = ChunkLoaded }()

	rebuilt := c.regenerate()

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)
	if _, err := cw.Write(make([]byte, formats.MCNKHeaderSize)); err != nil {
		return nil, err
	}

	hdr := c.Header
	for i := range c.subChunks {
		sc := &c.subChunks[i]
		start, err := cw.WriteChunk(sc.tag, sc.data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d,%d: %w", c.IndexX, c.IndexY, err)
		}
		if len(sc.trailer) > 0 {
			if _, err := cw.Write(sc.trailer); err != nil {
				return nil, err
			}
		}

		// Offsets count from the MCNK tag, eight bytes before the payload.
		rel := uint32(start) + formats.ChunkHeaderSize
		moved := rel != sc.offset
		sc.offset = rel
		size := uint32(formats.ChunkHeaderSize + len(sc.data) + len(sc.trailer))

		switch sc.tag {
		case formats.TagMCVT:
			setIf(moved, &hdr.OfsHeight, rel)
		case formats.TagMCNR:
			setIf(moved, &hdr.OfsNormal, rel)
		case formats.TagMCCV:
			setIf(moved, &hdr.OfsMCCV, rel)
		case formats.TagMCLY:
			setIf(moved, &hdr.OfsLayer, rel)
			setIf(rebuilt[sc.tag], &hdr.NLayers, uint32(len(c.Layers)))
		case formats.TagMCRF:
			setIf(moved, &hdr.OfsRefs, rel)
			setIf(rebuilt[sc.tag], &hdr.NDoodadRefs, uint32(len(c.DoodadRefs)))
			setIf(rebuilt[sc.tag], &hdr.NMapObjRefs, uint32(len(c.MapObjRefs)))
		case formats.TagMCAL:
			setIf(moved, &hdr.OfsAlpha, rel)
			setIf(rebuilt[sc.tag], &hdr.SizeAlpha, size)
		case formats.TagMCSH:
			setIf(moved, &hdr.OfsShadow, rel)
		case formats.TagMCSE:
			setIf(moved, &hdr.OfsSndEmitters, rel)
		case formats.TagMCLQ:
			setIf(moved, &hdr.OfsLiquid, rel)
		}
	}
	if len(c.tail) > 0 {
		if _, err := cw.Write(c.tail); err != nil {
			return nil, err
		}
	}

	if err := cw.PatchValue(0, &hdr); err != nil {
		return nil, fmt.Errorf("chunk %d,%d: header: %w", c.IndexX, c.IndexY, err)
	}
	c.Header = hdr
	return buf.Bytes(), nil
}

func setIf(cond bool, dst *uint32, v uint32) {
	if cond {
		*dst = v
	}
}

// regenerate rebuilds the sub-chunks whose editor state changed and clears the dirty flags.
// Returns the set of rebuilt tags.
func (c *Chunk) regenerate() map[formats.Tag]bool {
	rebuilt := make(map[formats.Tag]bool)

	if c.heightsChanged {
		sc := c.ensureSubChunk(formats.TagMCVT)
		sc.data = make([]byte, VertexCount*4)
		base := c.Header.Position[2]
		for i, v := range c.Vertices {
			binary.LittleEndian.PutUint32(sc.data[i*4:], math.Float32bits(v.Position[2]-base))
		}
		rebuilt[formats.TagMCVT] = true
	}

	if c.normalsChanged {
		sc := c.ensureSubChunk(formats.TagMCNR, formats.TagMCCV, formats.TagMCVT)
		if sc.data == nil {
			sc.trailer = make([]byte, formats.MCNRPadding)
		}
		if len(sc.data) < normalBytes {
			sc.data = append(sc.data, make([]byte, normalBytes-len(sc.data))...)
		}
		c.encodeNormals(sc.data)
		rebuilt[formats.TagMCNR] = true
	}

	if c.colorsChanged {
		sc := c.ensureSubChunk(formats.TagMCCV, formats.TagMCVT)
		sc.data = make([]byte, VertexCount*4)
		for i, v := range c.Vertices {
			copy(sc.data[i*4:], v.Color[:])
		}
		rebuilt[formats.TagMCCV] = true
	}

	if c.anyAlphaDirty() {
		var mcal []byte
		for i := 1; i < len(c.Layers); i++ {
			if c.Layers[i].Flags&formats.MCLYFlagUseAlpha == 0 {
				continue
			}
			if c.layerDirty[i] || c.layerAlpha[i] == nil {
				c.layerAlpha[i] = c.encodeAlphaLayer(i)
			}
			c.Layers[i].OffsetInMCAL = uint32(len(mcal))
			mcal = append(mcal, c.layerAlpha[i]...)
		}
		sc := c.ensureSubChunk(formats.TagMCAL, formats.TagMCSH, formats.TagMCRF, formats.TagMCLY)
		sc.data = mcal
		rebuilt[formats.TagMCAL] = true
	}

	if c.TexturesChanged || rebuilt[formats.TagMCAL] {
		sc := c.ensureSubChunk(formats.TagMCLY, formats.TagMCNR, formats.TagMCCV, formats.TagMCVT)
		sc.data = formats.EncodeRecords(c.Layers)
		rebuilt[formats.TagMCLY] = true
	}

	if c.DoodadsChanged {
		sc := c.ensureSubChunk(formats.TagMCRF, formats.TagMCLY, formats.TagMCNR)
		refs := append(slices.Clone(c.DoodadRefs), c.MapObjRefs...)
		sc.data = formats.EncodeUint32s(refs)
		rebuilt[formats.TagMCRF] = true
	}

	c.heightsChanged = false
	c.normalsChanged = false
	c.colorsChanged = false
	c.holesChanged = false
	c.flagsChanged = false
	c.layerDirty = [formats.MaxLayers]bool{}
	c.IsAlphaChanged = false
	c.TexturesChanged = false
	c.DoodadsChanged = false
	return rebuilt
}

func (c *Chunk) encodeAlphaLayer(layer int) []byte {
	if c.Layers[layer].Flags&formats.MCLYFlagAlphaCompressed != 0 {
		return formats.CompressAlpha(&c.Alpha, layer)
	}
	return formats.PackAlpha(&c.Alpha, layer, c.mode)
}
