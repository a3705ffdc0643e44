package terrain

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/pkg/encoding"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// Save writes the tile through the provider if it has unsaved edits.
func (a *Area) Save(p FileProvider) error {
	if !a.IsChanged() {
		return nil
	}
	return a.SaveForce(p)
}

// SaveForce writes the tile through the provider unconditionally.
// Encoding folds the chunk edits into the tile bytes, so a failed write
// leaves the area marked changed.
func (a *Area) SaveForce(p FileProvider) error {
	data, err := a.Encode()
	if err != nil {
		return err
	}
	if err := a.write(p, data); err != nil {
		a.wasChanged = true
		return err
	}
	a.wasChanged = false
	return nil
}

func (a *Area) write(p FileProvider, data []byte) error {
	path := FilePath(a.Continent, a.IndexX, a.IndexY)
	w, err := p.CreateOutputStream(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	logger.Info("area saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Encode serializes the tile. Chunk order is MVER, MHDR, MCIN, MTEX, MMDX, MMID,
// MWMO, MWID, MDDF, MODF, preserved chunks that preceded the MCNKs, the 256 MCNKs,
// then the preserved chunks that followed them. MHDR and MCIN are written last.
func (a *Area) Encode() ([]byte, error) {
	if !a.IsValid {
		return nil, ErrAreaClosed
	}

	buf := &formats.Buffer{}
	cw := formats.NewChunkWriter(buf)

	version := a.version
	if version == nil {
		version = formats.EncodeUint32s([]uint32{formats.ADTVersion})
	}
	if _, err := cw.WriteChunk(formats.TagMVER, version); err != nil {
		return nil, err
	}

	mhdrPos, err := cw.WriteChunk(formats.TagMHDR, make([]byte, formats.MHDRSize))
	if err != nil {
		return nil, err
	}
	mcinPos, err := cw.WriteChunk(formats.TagMCIN, make([]byte, formats.ChunksPerTile*formats.MCINEntrySize))
	if err != nil {
		return nil, err
	}

	hdr := a.header
	hdr.OfsMcin = formats.HeaderOffset(mcinPos)

	optional := []struct {
		tag  formats.Tag
		data []byte
		ofs  *uint32
	}{
		{formats.TagMTEX, a.textureBlockData(), &hdr.OfsMtex},
		{formats.TagMMDX, a.doodadNameBlock, &hdr.OfsMmdx},
		{formats.TagMMID, formats.EncodeUint32s(a.doodadNameIDs), &hdr.OfsMmid},
		{formats.TagMWMO, a.mapObjectNameBlock, &hdr.OfsMwmo},
		{formats.TagMWID, formats.EncodeUint32s(a.mapObjectNameIDs), &hdr.OfsMwid},
		{formats.TagMDDF, formats.EncodeRecords(a.doodadDefs), &hdr.OfsMddf},
		{formats.TagMODF, formats.EncodeRecords(a.mapObjectDefs), &hdr.OfsModf},
	}
	for _, o := range optional {
		*o.ofs = 0
		if !a.present[o.tag] && len(o.data) == 0 {
			continue
		}
		pos, err := cw.WriteChunk(o.tag, o.data)
		if err != nil {
			return nil, err
		}
		*o.ofs = formats.HeaderOffset(pos)
	}

	if err := a.writePreserved(cw, a.headChunks, &hdr); err != nil {
		return nil, err
	}

	index := make([]formats.MCIN, formats.ChunksPerTile)
	copy(index, a.chunkIndex)
	for i, c := range a.chunks {
		payload, err := c.Encode()
		if err != nil {
			return nil, err
		}
		pos, err := cw.WriteChunk(formats.TagMCNK, payload)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		index[i].OfsMcnk = uint32(pos)
		index[i].Size = uint32(formats.ChunkHeaderSize + len(payload))
	}
	a.chunkIndex = index

	if err := a.writePreserved(cw, a.tailChunks, &hdr); err != nil {
		return nil, err
	}

	if err := cw.PatchValue(mhdrPos+formats.ChunkHeaderSize, &hdr); err != nil {
		return nil, fmt.Errorf("MHDR: %w", err)
	}
	if err := cw.PatchValue(mcinPos+formats.ChunkHeaderSize, index); err != nil {
		return nil, fmt.Errorf("MCIN: %w", err)
	}
	a.header = hdr
	return buf.Bytes(), nil
}

func (a *Area) writePreserved(cw *formats.ChunkWriter, chunks []formats.Chunk, hdr *formats.MHDR) error {
	for _, c := range chunks {
		pos, err := cw.WriteChunk(c.Tag, c.Data)
		if err != nil {
			return err
		}
		switch c.Tag {
		case formats.TagMH2O:
			hdr.OfsMh2o = formats.HeaderOffset(pos)
		case formats.TagMFBO:
			hdr.OfsMfbo = formats.HeaderOffset(pos)
		case formats.TagMTXF:
			hdr.OfsMtxf = formats.HeaderOffset(pos)
		}
	}
	return nil
}

// textureBlockData returns the MTEX payload, rebuilt only when textures were added.
func (a *Area) textureBlockData() []byte {
	if a.texturesChanged {
		a.textureBlock, _ = encoding.JoinNames(a.textureNames)
		a.texturesChanged = false
	}
	return a.textureBlock
}
