// Package script runs brush scripts: YAML lists of terrain, texture, hole and
// impassable-flag edits applied to an editing session.
package script

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Script is a parsed brush script.
//
//	name: raise hills
//	tiles: [[32, 48], [33, 48]]
//	steps:
//	  - op: terrain
//	    method: elevate
//	    tile: [32, 48]
//	    at: [120, 200]
//	    amount: 15
//	    repeat: 4
//	  - op: save
type Script struct {
	Name  string   `yaml:"name"`
	Tiles [][2]int `yaml:"tiles"`
	Steps []Step   `yaml:"steps"`
}

// Op names.
const (
	OpTerrain    = "terrain"
	OpTexture    = "texture"
	OpHole       = "hole"
	OpImpassable = "impassable"
	OpSave       = "save"
)

// Step is one brush application. Unset numeric fields take the brush defaults.
type Step struct {
	Op string `yaml:"op"`

	// Position: editor coordinates, or relative to the tile origin when Tile is set.
	Tile   *[2]int    `yaml:"tile"`
	At     [2]float32 `yaml:"at"`
	Height *float32   `yaml:"height"` // Brush center height; ground height when unset

	Method      string   `yaml:"method"`
	Algorithm   string   `yaml:"algorithm"`
	Falloff     string   `yaml:"falloff"`
	InnerRadius *float32 `yaml:"inner_radius"`
	OuterRadius *float32 `yaml:"outer_radius"`
	Amount      *float32 `yaml:"amount"`
	Inverted    bool     `yaml:"inverted"`

	Duration time.Duration `yaml:"duration"` // Brush time per application, 1s when unset
	Repeat   int           `yaml:"repeat"`

	Shading     *[3]float32 `yaml:"shading"`
	Texture     string      `yaml:"texture"`
	TargetValue *float32    `yaml:"target_value"`

	Big    bool `yaml:"big"`    // Hole covers the whole chunk
	Remove bool `yaml:"remove"` // Fill the hole or clear the impassable flag
}

// Parse decodes a script. Unknown keys are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script is empty")
		}
		return nil, errors.Wrap(err, "decoding script")
	}
	for i, st := range s.Steps {
		switch st.Op {
		case OpTerrain, OpTexture, OpHole, OpImpassable, OpSave:
		default:
			return nil, errors.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
		if st.Op == OpTexture && st.Texture == "" {
			return nil, errors.Errorf("step %d: texture step without texture", i+1)
		}
		if st.Repeat < 0 {
			return nil, errors.Errorf("step %d: negative repeat", i+1)
		}
	}
	return &s, nil
}

// Load reads a script file.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening script")
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "script %s", path)
	}
	return s, nil
}
