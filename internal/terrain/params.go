package terrain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ChangeType selects the terrain brush.
type ChangeType int

const (
	ChangeElevate ChangeType = iota
	ChangeFlatten
	ChangeBlur
	ChangeShading
)

// String returns the brush name.
func (c ChangeType) String() string {
	switch c {
	case ChangeElevate:
		return "elevate"
	case ChangeFlatten:
		return "flatten"
	case ChangeBlur:
		return "blur"
	case ChangeShading:
		return "shading"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// ParseChangeType parses a brush name.
func ParseChangeType(s string) (ChangeType, error) {
	for c := ChangeElevate; c <= ChangeShading; c++ {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown terrain brush %q", s)
}

// Algorithm selects the falloff profile of a terrain brush.
type Algorithm int

const (
	AlgorithmFlat Algorithm = iota
	AlgorithmLinear
	AlgorithmQuadratic
	AlgorithmTrigonometric
)

// String returns the profile name.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmFlat:
		return "flat"
	case AlgorithmLinear:
		return "linear"
	case AlgorithmQuadratic:
		return "quadratic"
	case AlgorithmTrigonometric:
		return "trigonometric"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// ParseAlgorithm parses a profile name.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := AlgorithmFlat; a <= AlgorithmTrigonometric; a++ {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown brush algorithm %q", s)
}

// FalloffMode selects the pressure curve of the texture brush.
type FalloffMode int

const (
	FalloffLinear FalloffMode = iota
	FalloffTrigonometric
)

// String returns the falloff name.
func (f FalloffMode) String() string {
	if f == FalloffTrigonometric {
		return "trigonometric"
	}
	return "linear"
}

// ParseFalloff parses a falloff name. Unknown names fall back to linear.
func ParseFalloff(s string) FalloffMode {
	if strings.EqualFold(s, "trigonometric") {
		return FalloffTrigonometric
	}
	return FalloffLinear
}

// ChangeParams describes one terrain brush application.
type ChangeParams struct {
	Method      ChangeType
	Center      mgl32.Vec3
	InnerRadius float32
	OuterRadius float32
	Amount      float32
	Algorithm   Algorithm
	Inverted    bool
	TimeDiff    time.Duration

	// Shading is the vertex color multiplier painted by ChangeShading (1.0 is neutral).
	Shading mgl32.Vec3
}

// TextureParams describes one texture brush application.
type TextureParams struct {
	Center      mgl32.Vec3
	InnerRadius float32
	OuterRadius float32
	Amount      float32 // Pressure in [0, 1]
	Falloff     FalloffMode
	TargetValue float32 // Target layer weight in [0, 255]
	Texture     string
	Inverted    bool
}

// HeightQuery answers ground height lookups across loaded tiles.
type HeightQuery interface {
	TryGetHeight(x, y float32) (float32, bool)
}

// HeightFunc adapts a function to HeightQuery.
type HeightFunc func(x, y float32) (float32, bool)

// TryGetHeight calls f.
func (f HeightFunc) TryGetHeight(x, y float32) (float32, bool) {
	return f(x, y)
}

// noHeights misses every query.
type noHeights struct{}

func (noHeights) TryGetHeight(float32, float32) (float32, bool) { return 0, false }

// Texture is an opaque handle returned by a TextureResolver.
type Texture any

// TextureResolver maps texture names to loaded textures.
type TextureResolver interface {
	GetTexture(name string) Texture
}
