// Package session owns the loaded map tiles of one editing session and routes
// brush operations to them.
package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/models"
	"github.com/Faultbox/adtedit/internal/terrain"
	"github.com/Faultbox/adtedit/pkg/formats"
)

// Session errors.
var (
	ErrClosed         = errors.New("session is closed")
	ErrUnsavedChanges = errors.New("unsaved changes discarded")
	ErrTileOutOfRange = errors.New("tile index out of range")
)

// Options configures a session.
type Options struct {
	Continent     string
	Files         terrain.FileProvider
	Models        *models.Registry // nil disables model instances
	Textures      terrain.TextureResolver
	AlphaMode     formats.AlphaMode
	CompressAlpha bool
}

// Session is the root object of an editing session. Brush calls are expected
// from one goroutine; height queries and snapshots may come from others.
type Session struct {
	id   uuid.UUID
	opts Options
	log  *zap.Logger

	mu     sync.RWMutex
	areas  map[int]*terrain.Area
	failed map[int]error
	closed bool
}

// New creates an empty session.
func New(opts Options) *Session {
	id := uuid.New()
	return &Session{
		id:     id,
		opts:   opts,
		log:    logger.Named("session").With(zap.String("session", id.String()), zap.String("continent", opts.Continent)),
		areas:  make(map[int]*terrain.Area),
		failed: make(map[int]error),
	}
}

// ID returns the session id used on log lines.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Continent returns the map name.
func (s *Session) Continent() string {
	return s.opts.Continent
}

func (s *Session) areaOptions() terrain.AreaOptions {
	opts := terrain.AreaOptions{
		Textures:      s.opts.Textures,
		AlphaMode:     s.opts.AlphaMode,
		CompressAlpha: s.opts.CompressAlpha,
	}
	if s.opts.Models != nil {
		opts.Registry = s.opts.Models
	}
	return opts
}

// LoadArea loads tile (ix, iy) once. A tile that failed to load stays failed
// for the rest of the session and keeps returning its error.
func (s *Session) LoadArea(ix, iy int) (*terrain.Area, error) {
	if ix < 0 || iy < 0 || ix >= terrain.TilesPerMap || iy >= terrain.TilesPerMap {
		return nil, errors.Wrapf(ErrTileOutOfRange, "tile %d,%d", ix, iy)
	}
	idx := terrain.AreaIndex(ix, iy)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if a, ok := s.areas[idx]; ok {
		return a, nil
	}
	if err, ok := s.failed[idx]; ok {
		return nil, err
	}

	a, err := terrain.LoadArea(s.opts.Files, s.opts.Continent, ix, iy, s.areaOptions())
	if err != nil {
		err = errors.Wrapf(err, "loading tile %d,%d", ix, iy)
		s.failed[idx] = err
		s.log.Warn("tile load failed", zap.Int("x", ix), zap.Int("y", iy), zap.Error(err))
		return nil, err
	}
	s.areas[idx] = a
	s.log.Info("tile loaded", zap.Int("x", ix), zap.Int("y", iy))
	return a, nil
}

// LoadAreas loads several tiles and reports every failure.
func (s *Session) LoadAreas(tiles [][2]int) error {
	var err error
	for _, t := range tiles {
		if _, e := s.LoadArea(t[0], t[1]); e != nil {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// Area returns a loaded tile or nil.
func (s *Session) Area(ix, iy int) *terrain.Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areas[terrain.AreaIndex(ix, iy)]
}

// AreaAt returns the loaded tile under the editor position (x, y), or nil.
func (s *Session) AreaAt(x, y float32) *terrain.Area {
	ix, iy, ok := terrain.TileAt(x, y)
	if !ok {
		return nil
	}
	return s.Area(ix, iy)
}

// Areas returns the loaded tiles ordered by map index.
func (s *Session) Areas() []*terrain.Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]int, 0, len(s.areas))
	for k := range s.areas {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*terrain.Area, len(keys))
	for i, k := range keys {
		out[i] = s.areas[k]
	}
	return out
}

// UnloadArea closes a tile and forgets it, discarding unsaved edits.
func (s *Session) UnloadArea(ix, iy int) bool {
	idx := terrain.AreaIndex(ix, iy)
	s.mu.Lock()
	a, ok := s.areas[idx]
	delete(s.areas, idx)
	delete(s.failed, idx)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if a.IsChanged() {
		s.log.Warn("unloading tile with unsaved changes", zap.Int("x", ix), zap.Int("y", iy))
	}
	a.Close()
	return true
}

// TryGetHeight implements terrain.HeightQuery over every loaded tile.
func (s *Session) TryGetHeight(x, y float32) (float32, bool) {
	a := s.AreaAt(x, y)
	if a == nil {
		return 0, false
	}
	return a.HeightAt(x, y)
}

// GetLandHeight returns the ground height at (x, y), or 0 off the loaded tiles.
func (s *Session) GetLandHeight(x, y float32) float32 {
	h, _ := s.TryGetHeight(x, y)
	return h
}

// SaveAll writes every changed tile. Every tile is attempted; failures are combined.
func (s *Session) SaveAll() error {
	var err error
	saved := 0
	for _, a := range s.Areas() {
		if !a.IsChanged() {
			continue
		}
		if e := a.Save(s.opts.Files); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "saving tile %d,%d", a.IndexX, a.IndexY))
			continue
		}
		saved++
	}
	s.log.Info("session saved", zap.Int("tiles", saved), zap.Int("failed", len(multierr.Errors(err))))
	return err
}

// Close releases every tile. Tiles with unsaved edits are reported in the
// returned error; their edits are lost.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	areas := s.areas
	s.areas = make(map[int]*terrain.Area)
	s.mu.Unlock()

	var err error
	for _, a := range areas {
		if a.IsChanged() {
			err = multierr.Append(err, errors.Wrapf(ErrUnsavedChanges, "tile %d,%d", a.IndexX, a.IndexY))
		}
		a.Close()
	}
	s.log.Debug("session closed", zap.Int("tiles", len(areas)))
	return err
}
