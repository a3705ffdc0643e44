package formats

import (
	"errors"
	"fmt"
)

// Alpha map errors.
var (
	ErrTruncatedAlpha = errors.New("truncated alpha data")
	ErrAlphaOverrun   = errors.New("alpha token overruns row")
	ErrInvalidLayer   = errors.New("invalid alpha layer")
)

// Alpha map dimensions.
const (
	AlphaSide   = 64
	AlphaTexels = AlphaSide * AlphaSide
	MaxLayers   = 4

	// LegacyAlphaSize is the uncompressed size of a 4-bit layer.
	LegacyAlphaSize = AlphaTexels / 2
	// BigAlphaSize is the uncompressed size of an 8-bit layer.
	BigAlphaSize = AlphaTexels

	maxTokenCount = 0x7F
	fillFlag      = 0x80
)

// AlphaMode selects how uncompressed layers are packed.
type AlphaMode int

const (
	// AlphaModeLegacy packs two 4-bit texels per byte, low nibble first.
	AlphaModeLegacy AlphaMode = iota
	// AlphaModeBig stores one byte per texel ("new blend").
	AlphaModeBig
)

// String returns the mode name.
func (m AlphaMode) String() string {
	switch m {
	case AlphaModeLegacy:
		return "legacy"
	case AlphaModeBig:
		return "big"
	default:
		return fmt.Sprintf("AlphaMode(%d)", int(m))
	}
}

// LayerSize returns the uncompressed byte size of one layer.
func (m AlphaMode) LayerSize() int {
	if m == AlphaModeBig {
		return BigAlphaSize
	}
	return LegacyAlphaSize
}

// AlphaMap holds the blend weights of all layers of a chunk.
// Each texel is one word; layer i lives in bits [8i, 8i+8).
type AlphaMap [AlphaTexels]uint32

// Get returns the weight of a layer at a texel.
func (m *AlphaMap) Get(layer, texel int) uint8 {
	return uint8(m[texel] >> (layer * 8))
}

// Set replaces the weight of a layer at a texel.
func (m *AlphaMap) Set(layer, texel int, v uint8) {
	shift := uint(layer * 8)
	m[texel] = m[texel]&^(0xFF<<shift) | uint32(v)<<shift
}

// Layer extracts one layer as a 64x64 grid.
func (m *AlphaMap) Layer(layer int) [AlphaTexels]uint8 {
	var grid [AlphaTexels]uint8
	for i := range grid {
		grid[i] = m.Get(layer, i)
	}
	return grid
}

// SetLayer replaces one layer from a 64x64 grid.
func (m *AlphaMap) SetLayer(layer int, grid *[AlphaTexels]uint8) {
	for i, v := range grid {
		m.Set(layer, i, v)
	}
}

// ClearLayer zeroes one layer.
func (m *AlphaMap) ClearLayer(layer int) {
	for i := range m {
		m.Set(layer, i, 0)
	}
}

func checkLayer(layer int) error {
	if layer < 0 || layer >= MaxLayers {
		return fmt.Errorf("%w: %d", ErrInvalidLayer, layer)
	}
	return nil
}

// CompressAlpha run-length encodes one layer, row by row.
func CompressAlpha(m *AlphaMap, layer int) []byte {
	out := make([]byte, 0, 256)
	for row := range AlphaSide {
		out = compressRow(out, m, row, layer)
	}
	return out
}

type alphaSpan struct {
	start, end int
}

func compressRow(out []byte, m *AlphaMap, row, layer int) []byte {
	base := row * AlphaSide
	value := func(i int) byte { return m.Get(layer, base+i) }

	// Spans of two or more equal values become fill tokens.
	var runs []alphaSpan
	start := 0
	last := value(0)
	for i := 1; i < AlphaSide; i++ {
		cur := value(i)
		if cur == last {
			continue
		}
		if i-start > 1 {
			runs = append(runs, alphaSpan{start, i})
		}
		start = i
		last = cur
	}
	if AlphaSide-start > 1 {
		runs = append(runs, alphaSpan{start, AlphaSide})
	}

	read := 0
	for read < AlphaSide {
		if len(runs) > 0 && runs[0].start == read {
			v := value(read)
			count := runs[0].end - runs[0].start
			for count >= maxTokenCount {
				out = append(out, fillFlag|maxTokenCount, v)
				count -= maxTokenCount
			}
			if count > 0 {
				out = append(out, byte(fillFlag|count), v)
			}
			read = runs[0].end
			runs = runs[1:]
			continue
		}

		end := AlphaSide
		if len(runs) > 0 {
			end = runs[0].start
		}
		for read < end {
			count := min(end-read, maxTokenCount)
			out = append(out, byte(count))
			for range count {
				out = append(out, value(read))
				read++
			}
		}
	}
	return out
}

// DecompressAlpha decodes a run-length encoded layer into m.
// Returns the number of input bytes consumed.
func DecompressAlpha(data []byte, m *AlphaMap, layer int) (int, error) {
	if err := checkLayer(layer); err != nil {
		return 0, err
	}
	pos := 0
	for row := range AlphaSide {
		base := row * AlphaSide
		col := 0
		for col < AlphaSide {
			if pos >= len(data) {
				return pos, fmt.Errorf("%w: row %d", ErrTruncatedAlpha, row)
			}
			token := data[pos]
			pos++
			count := int(token & maxTokenCount)
			if col+count > AlphaSide {
				return pos, fmt.Errorf("%w: row %d column %d count %d", ErrAlphaOverrun, row, col, count)
			}

			if token&fillFlag != 0 {
				if pos >= len(data) {
					return pos, fmt.Errorf("%w: fill value in row %d", ErrTruncatedAlpha, row)
				}
				v := data[pos]
				pos++
				for i := range count {
					m.Set(layer, base+col+i, v)
				}
			} else {
				if pos+count > len(data) {
					return pos, fmt.Errorf("%w: copy of %d in row %d", ErrTruncatedAlpha, count, row)
				}
				for i := range count {
					m.Set(layer, base+col+i, data[pos+i])
				}
				pos += count
			}
			col += count
		}
	}
	return pos, nil
}

// PackAlpha returns one layer in uncompressed form.
func PackAlpha(m *AlphaMap, layer int, mode AlphaMode) []byte {
	if mode == AlphaModeBig {
		out := make([]byte, BigAlphaSize)
		for i := range out {
			out[i] = m.Get(layer, i)
		}
		return out
	}

	out := make([]byte, LegacyAlphaSize)
	for i := range out {
		v1 := uint32(m.Get(layer, i*2)) * 15 / 255
		v2 := uint32(m.Get(layer, i*2+1)) * 15 / 255
		out[i] = byte(v2<<4 | v1)
	}
	return out
}

// UnpackAlpha decodes one uncompressed layer into m.
// Returns the number of input bytes consumed.
func UnpackAlpha(data []byte, m *AlphaMap, layer int, mode AlphaMode) (int, error) {
	if err := checkLayer(layer); err != nil {
		return 0, err
	}
	size := mode.LayerSize()
	if len(data) < size {
		return 0, fmt.Errorf("%w: %s layer needs %d bytes, have %d", ErrTruncatedAlpha, mode, size, len(data))
	}

	if mode == AlphaModeBig {
		for i := range BigAlphaSize {
			m.Set(layer, i, data[i])
		}
		return size, nil
	}

	for i := range LegacyAlphaSize {
		b := data[i]
		m.Set(layer, i*2, (b&0x0F)*17)
		m.Set(layer, i*2+1, (b>>4)*17)
	}
	return size, nil
}

// FixAlphaEdge copies the 63rd row and column into the last ones.
// Legacy maps only carry 63x63 meaningful texels unless the chunk says otherwise.
func FixAlphaEdge(m *AlphaMap, layer int) {
	for row := range AlphaSide {
		m.Set(layer, row*AlphaSide+63, m.Get(layer, row*AlphaSide+62))
	}
	for col := range AlphaSide {
		m.Set(layer, 63*AlphaSide+col, m.Get(layer, 62*AlphaSide+col))
	}
}
