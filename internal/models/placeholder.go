package models

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/adtedit/internal/picking"
)

// ErrModelNotFound is returned when a model file does not exist.
var ErrModelNotFound = errors.New("model file not found")

// FileChecker reports whether a game file exists.
type FileChecker interface {
	Exists(path string) bool
}

// PlaceholderLoader stands in for a model parser. It checks that the model
// file exists and returns a model with fixed bounds and no render passes.
type PlaceholderLoader struct {
	Files  FileChecker
	Extent float32 // Half width of the bounds; 1 when zero
}

// LoadModel implements Loader.
func (l PlaceholderLoader) LoadModel(name string) (Model, error) {
	if l.Files != nil && !l.Files.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	e := l.Extent
	if e == 0 {
		e = 1
	}
	return &placeholderModel{
		bounds: picking.NewAABB(mgl32.Vec3{-e, -e, 0}, mgl32.Vec3{e, e, 2 * e}),
	}, nil
}

type placeholderModel struct {
	bounds picking.AABB
}

func (m *placeholderModel) BoundingBox() picking.AABB       { return m.bounds }
func (m *placeholderModel) NeedsPerInstanceAnimation() bool { return false }
func (m *placeholderModel) HasBlendPass() bool              { return false }
func (m *placeholderModel) Close() error                    { return nil }
