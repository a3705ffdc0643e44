package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Tile format errors.
var (
	ErrMissingHeader   = errors.New("tile has no MHDR chunk")
	ErrTruncatedRecord = errors.New("truncated record data")
)

// Tile layout constants.
const (
	ADTVersion       = 18
	ChunksPerTile    = 256
	ChunksPerSide    = 16
	VerticesPerChunk = 145
	MCNKHeaderSize   = 128
	MCNRPadding      = 13
	MHDRSize         = 64
	MCINEntrySize    = 16

	// mhdrBase is where MHDR offsets count from: MVER chunk (12) plus the MHDR chunk header (8).
	mhdrBase = 20
)

// MHDR is the tile header. Offsets are relative to the start of the MHDR payload.
type MHDR struct {
	Flags   uint32
	OfsMcin uint32
	OfsMtex uint32
	OfsMmdx uint32
	OfsMmid uint32
	OfsMwmo uint32
	OfsMwid uint32
	OfsMddf uint32
	OfsModf uint32
	OfsMfbo uint32
	OfsMh2o uint32
	OfsMtxf uint32
	Unused  [4]uint32
}

// HeaderOffset converts an absolute tag position to an MHDR-relative offset.
func HeaderOffset(pos int64) uint32 {
	return uint32(pos - mhdrBase)
}

// MCIN is one entry of the chunk index table.
type MCIN struct {
	OfsMcnk uint32
	Size    uint32
	Flags   uint32
	AsyncID uint32
}

// MDDF places a doodad (small model).
// Position is stored in (X, Z, Y) order, Scale is fixed point with 1024 = 1.0.
type MDDF struct {
	NameID   uint32 // Index into MMID
	UniqueID uint32
	Position [3]float32
	Rotation [3]float32
	Scale    uint16
	Flags    uint16
}

// MODF places a world model object.
type MODF struct {
	NameID    uint32 // Index into MWID
	UniqueID  uint32
	Position  [3]float32
	Rotation  [3]float32
	Extents   [6]float32
	Flags     uint16
	DoodadSet uint16
	NameSet   uint16
	Scale     uint16
}

// MCNK header flags.
const (
	MCNKFlagHasShadow     = 0x1
	MCNKFlagImpassable    = 0x2
	MCNKFlagHasMCCV       = 0x40
	MCNKFlagDoNotFixAlpha = 0x8000
)

// MCNKHeader is the fixed 128-byte chunk header.
// Offsets are relative to the MCNK tag and point at sub-chunk tags.
type MCNKHeader struct {
	Flags          uint32
	IndexX         uint32
	IndexY         uint32
	NLayers        uint32
	NDoodadRefs    uint32
	OfsHeight      uint32
	OfsNormal      uint32
	OfsLayer       uint32
	OfsRefs        uint32
	OfsAlpha       uint32
	SizeAlpha      uint32
	OfsShadow      uint32
	SizeShadow     uint32
	AreaID         uint32
	NMapObjRefs    uint32
	Holes          uint16
	Pad            uint16
	LowQualityTex  [8]uint16
	PredTex        uint32
	NoEffectDoodad uint32
	OfsSndEmitters uint32
	NSndEmitters   uint32
	OfsLiquid      uint32
	SizeLiquid     uint32
	Position       [3]float32
	OfsMCCV        uint32
	OfsMCLV        uint32
	Unused         uint32
}

// MCLY layer flags.
const (
	MCLYFlagUseAlpha        = 0x100
	MCLYFlagAlphaCompressed = 0x200
)

// MCLY describes one texture layer of a chunk.
type MCLY struct {
	TextureID    uint32
	Flags        uint32
	OffsetInMCAL uint32
	EffectID     uint32
}

// DecodeRecords decodes a payload of fixed-size records.
// Trailing bytes that do not form a full record are ignored.
func DecodeRecords[T any](data []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return nil, fmt.Errorf("record type has no fixed size")
	}
	count := len(data) / size
	out := make([]T, count)
	if count == 0 {
		return out, nil
	}
	if err := binary.Read(bytes.NewReader(data[:count*size]), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	return out, nil
}

// EncodeRecords encodes fixed-size records into a payload.
func EncodeRecords[T any](records []T) []byte {
	if len(records) == 0 {
		return nil
	}
	buf := make([]byte, binary.Size(records))
	binary.Encode(buf, binary.LittleEndian, records)
	return buf
}

// DecodeUint32s decodes a payload of little-endian uint32 values.
func DecodeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

// EncodeUint32s encodes uint32 values.
func EncodeUint32s(values []uint32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// ParseMCNKHeader decodes the header at the start of an MCNK payload.
func ParseMCNKHeader(data []byte) (MCNKHeader, error) {
	var hdr MCNKHeader
	if len(data) < MCNKHeaderSize {
		return hdr, fmt.Errorf("%w: MCNK header is %d bytes", ErrTruncatedRecord, len(data))
	}
	if _, err := binary.Decode(data[:MCNKHeaderSize], binary.LittleEndian, &hdr); err != nil {
		return hdr, fmt.Errorf("%w: MCNK header: %v", ErrTruncatedRecord, err)
	}
	return hdr, nil
}
