package script

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/config"
	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/terrain"
)

// Editor is the part of a session a script drives.
type Editor interface {
	LoadArea(ix, iy int) (*terrain.Area, error)
	GetLandHeight(x, y float32) float32
	ApplyTerrain(p terrain.ChangeParams) bool
	ApplyTexture(p terrain.TextureParams) bool
	SetHole(x, y float32, add, big bool) bool
	SetImpassable(x, y float32, on bool) bool
	SaveAll() error
}

// Result counts what a run did.
type Result struct {
	Steps   int // Steps executed without error
	Changed int // Brush applications that changed terrain
	Saves   int
}

// Run executes the script. A failing step is reported and the run goes on
// with the next one; the returned error combines every failure.
func Run(ed Editor, s *Script, defaults config.BrushConfig) (Result, error) {
	log := logger.Named("script").With(zap.String("script", s.Name))
	var (
		res  Result
		errs error
	)

	for _, t := range s.Tiles {
		if _, err := ed.LoadArea(t[0], t[1]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	for i, st := range s.Steps {
		changed, err := runStep(ed, st, defaults)
		if err != nil {
			log.Warn("step failed", zap.Int("step", i+1), zap.String("op", st.Op), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(err, "step %d (%s)", i+1, st.Op))
			continue
		}
		res.Steps++
		res.Changed += changed
		if st.Op == OpSave {
			res.Saves++
		}
	}

	log.Info("script finished",
		zap.Int("steps", res.Steps),
		zap.Int("changed", res.Changed),
		zap.Int("failed", len(multierr.Errors(errs))))
	return res, errs
}

func runStep(ed Editor, st Step, d config.BrushConfig) (int, error) {
	if st.Op == OpSave {
		return 0, ed.SaveAll()
	}

	x, y := st.At[0], st.At[1]
	if st.Tile != nil {
		x += float32(st.Tile[0]) * terrain.TileSize
		y += float32(st.Tile[1]) * terrain.TileSize
	}
	z := ed.GetLandHeight(x, y)
	if st.Height != nil {
		z = *st.Height
	}
	center := mgl32.Vec3{x, y, z}

	switch st.Op {
	case OpHole:
		if ed.SetHole(x, y, !st.Remove, st.Big) {
			return 1, nil
		}
		return 0, nil
	case OpImpassable:
		if ed.SetImpassable(x, y, !st.Remove) {
			return 1, nil
		}
		return 0, nil
	}

	repeat := max(st.Repeat, 1)
	changed := 0
	switch st.Op {
	case OpTerrain:
		p, err := changeParams(st, d, center)
		if err != nil {
			return 0, err
		}
		for range repeat {
			if ed.ApplyTerrain(p) {
				changed++
			}
		}
	case OpTexture:
		p := textureParams(st, d, center)
		for range repeat {
			if ed.ApplyTexture(p) {
				changed++
			}
		}
	}
	return changed, nil
}

func pick(v *float32, def float32) float32 {
	if v != nil {
		return *v
	}
	return def
}

func pickString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func changeParams(st Step, d config.BrushConfig, center mgl32.Vec3) (terrain.ChangeParams, error) {
	method, err := terrain.ParseChangeType(pickString(st.Method, d.Method))
	if err != nil {
		return terrain.ChangeParams{}, err
	}
	alg, err := terrain.ParseAlgorithm(pickString(st.Algorithm, d.Algorithm))
	if err != nil {
		return terrain.ChangeParams{}, err
	}
	p := terrain.ChangeParams{
		Method:      method,
		Center:      center,
		InnerRadius: pick(st.InnerRadius, d.InnerRadius),
		OuterRadius: pick(st.OuterRadius, d.OuterRadius),
		Amount:      pick(st.Amount, d.Amount),
		Algorithm:   alg,
		Inverted:    st.Inverted,
		TimeDiff:    st.Duration,
		Shading:     mgl32.Vec3{1, 1, 1},
	}
	if p.TimeDiff <= 0 {
		p.TimeDiff = time.Second
	}
	if st.Shading != nil {
		p.Shading = mgl32.Vec3(*st.Shading)
	}
	if p.OuterRadius <= 0 {
		return p, errors.Errorf("outer radius %v must be positive", p.OuterRadius)
	}
	return p, nil
}

func textureParams(st Step, d config.BrushConfig, center mgl32.Vec3) terrain.TextureParams {
	return terrain.TextureParams{
		Center:      center,
		InnerRadius: pick(st.InnerRadius, d.InnerRadius),
		OuterRadius: pick(st.OuterRadius, d.OuterRadius),
		Amount:      pick(st.Amount, 1),
		Falloff:     terrain.ParseFalloff(pickString(st.Falloff, d.Falloff)),
		TargetValue: pick(st.TargetValue, d.TargetValue),
		Texture:     st.Texture,
		Inverted:    st.Inverted,
	}
}
