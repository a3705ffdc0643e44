// Package formats provides readers and writers for the chunked map tile format.
package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncatedChunk reports a chunk header or payload running past the buffer.
var ErrTruncatedChunk = errors.New("truncated chunk data")

// Tag is a chunk signature stored as a little-endian uint32 of packed ASCII.
// The value 0x4D564552 is "MVER" when read as big-endian text; on disk the
// bytes appear reversed.
type Tag uint32

// Top-level tile tags.
const (
	TagMVER Tag = 0x4D564552
	TagMHDR Tag = 0x4D484452
	TagMCIN Tag = 0x4D43494E
	TagMTEX Tag = 0x4D544558
	TagMMDX Tag = 0x4D4D4458
	TagMMID Tag = 0x4D4D4944
	TagMWMO Tag = 0x4D574D4F
	TagMWID Tag = 0x4D574944
	TagMDDF Tag = 0x4D444446
	TagMODF Tag = 0x4D4F4446
	TagMH2O Tag = 0x4D48324F
	TagMCNK Tag = 0x4D434E4B
	TagMTXF Tag = 0x4D545846
	TagMFBO Tag = 0x4D46424F
)

// Sub-chunk tags inside MCNK.
const (
	TagMCVT Tag = 0x4D435654
	TagMCCV Tag = 0x4D434356
	TagMCNR Tag = 0x4D434E52
	TagMCLY Tag = 0x4D434C59
	TagMCRF Tag = 0x4D435246
	TagMCSH Tag = 0x4D435348
	TagMCAL Tag = 0x4D43414C
	TagMCLQ Tag = 0x4D434C51
	TagMCSE Tag = 0x4D435345
)

// ChunkHeaderSize is the size of the tag plus the size field.
const ChunkHeaderSize = 8

// String returns the tag as its four readable characters.
func (t Tag) String() string {
	return string([]byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)})
}

// Chunk is one (tag, size, payload) record.
type Chunk struct {
	Tag    Tag
	Offset int    // Position of the tag within the scanned buffer
	Data   []byte // Payload, Size bytes
}

// Size returns the payload size.
func (c Chunk) Size() int {
	return len(c.Data)
}

// End returns the offset just past the payload.
func (c Chunk) End() int {
	return c.Offset + ChunkHeaderSize + len(c.Data)
}

// ReadChunkAt reads the chunk whose tag starts at offset.
func ReadChunkAt(data []byte, offset int) (Chunk, error) {
	if offset < 0 || offset+ChunkHeaderSize > len(data) {
		return Chunk{}, fmt.Errorf("%w: header at 0x%x", ErrTruncatedChunk, offset)
	}
	tag := Tag(binary.LittleEndian.Uint32(data[offset:]))
	size := int(binary.LittleEndian.Uint32(data[offset+4:]))
	start := offset + ChunkHeaderSize
	if size < 0 || start+size > len(data) {
		return Chunk{}, fmt.Errorf("%w: %s payload of %d bytes at 0x%x", ErrTruncatedChunk, tag, size, offset)
	}
	return Chunk{Tag: tag, Offset: offset, Data: data[start : start+size]}, nil
}

// ScanChunks walks a buffer of consecutive chunks.
// Scanning stops at the first chunk that does not fit; the chunks read so far are returned.
func ScanChunks(data []byte) []Chunk {
	var chunks []Chunk
	offset := 0
	for offset+ChunkHeaderSize <= len(data) {
		c, err := ReadChunkAt(data, offset)
		if err != nil {
			break
		}
		chunks = append(chunks, c)
		offset = c.End()
	}
	return chunks
}

// ChunkWriter writes chunks and tracks the absolute position of the stream.
type ChunkWriter struct {
	w   io.WriterAt
	pos int64
}

// NewChunkWriter creates a writer positioned at zero.
func NewChunkWriter(w io.WriterAt) *ChunkWriter {
	return &ChunkWriter{w: w}
}

// Pos returns the current write position.
func (cw *ChunkWriter) Pos() int64 {
	return cw.pos
}

// Write appends raw bytes.
func (cw *ChunkWriter) Write(p []byte) (int, error) {
	n, err := cw.w.WriteAt(p, cw.pos)
	cw.pos += int64(n)
	return n, err
}

// WriteChunk appends a complete chunk and returns the offset of its tag.
func (cw *ChunkWriter) WriteChunk(tag Tag, payload []byte) (int64, error) {
	start := cw.pos
	var hdr [ChunkHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(tag))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	if _, err := cw.Write(hdr[:]); err != nil {
		return start, fmt.Errorf("writing %s header: %w", tag, err)
	}
	if _, err := cw.Write(payload); err != nil {
		return start, fmt.Errorf("writing %s payload: %w", tag, err)
	}
	return start, nil
}

// PatchValue overwrites a fixed-size value at an earlier position without moving the cursor.
func (cw *ChunkWriter) PatchValue(at int64, v any) error {
	buf := make([]byte, binary.Size(v))
	if _, err := binary.Encode(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	_, err := cw.w.WriteAt(buf, at)
	return err
}

// Buffer is an in-memory io.WriterAt.
type Buffer struct {
	data []byte
}

// WriteAt implements io.WriterAt, growing the buffer as needed.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	end := int(off) + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, end*2)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[off:], p)
	return len(p), nil
}

// Bytes returns the written data.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.data)
}
