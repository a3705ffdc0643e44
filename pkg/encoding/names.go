// Package encoding provides text helpers for the file names stored in map tiles.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
)

// Name blobs are written by Windows tooling, so anything outside ASCII is
// treated as Windows-1252.

// DecodeName converts raw name bytes to a UTF-8 string.
// Returns the bytes as-is if conversion fails.
func DecodeName(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// EncodeName converts a UTF-8 name back to the on-disk byte form.
func EncodeName(s string) []byte {
	if isASCII([]byte(s)) {
		return []byte(s)
	}
	result, _, err := transform.Bytes(charmap.Windows1252.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// SplitNames splits a block of null-terminated names.
// Each name is returned with the byte offset it starts at; empty entries are skipped.
func SplitNames(block []byte) (names []string, offsets []int) {
	start := 0
	for i, b := range block {
		if b != 0 {
			continue
		}
		if i > start {
			names = append(names, DecodeName(block[start:i]))
			offsets = append(offsets, start)
		}
		start = i + 1
	}
	if start < len(block) {
		names = append(names, DecodeName(block[start:]))
		offsets = append(offsets, start)
	}
	return names, offsets
}

// JoinNames builds a null-terminated name block and returns the start offset of each name.
func JoinNames(names []string) (block []byte, offsets []int) {
	var buf bytes.Buffer
	offsets = make([]int, len(names))
	for i, name := range names {
		offsets[i] = buf.Len()
		buf.Write(EncodeName(name))
		buf.WriteByte(0)
	}
	return buf.Bytes(), offsets
}

// EncodedLen returns the on-disk length of a name without its terminator.
func EncodedLen(s string) int {
	return len(EncodeName(s))
}

// UpperName returns the case-normalized form used for model identity.
func UpperName(s string) string {
	return cases.Upper(language.Und).String(NormalizePath(s))
}

// EqualFold reports whether two names match case-insensitively.
func EqualFold(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// NormalizePath converts forward slashes to the backslash form used inside tiles.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "/", "\\")
}

// TrimNullString removes trailing null bytes and converts to string.
func TrimNullString(data []byte) string {
	return DecodeName(bytes.TrimRight(data, "\x00"))
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}
