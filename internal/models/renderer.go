package models

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
)

// Renderer owns a loaded model and the instances placed from it.
type Renderer struct {
	Hash uint64
	Name string

	model     Model
	instances map[uint32]*Instance // Guarded by Registry.mu

	queued   bool // Guarded by unloadQueue.mu
	disposed sync.Once
}

func newRenderer(hash uint64, name string, m Model) *Renderer {
	return &Renderer{
		Hash:      hash,
		Name:      name,
		model:     m,
		instances: make(map[uint32]*Instance),
	}
}

// Model returns the loaded model.
func (r *Renderer) Model() Model {
	return r.model
}

// dispose releases the model. Later calls do nothing.
func (r *Renderer) dispose() {
	r.disposed.Do(func() {
		if err := r.model.Close(); err != nil {
			logger.Warn("closing model", zap.String("model", r.Name), zap.Error(err))
		}
	})
}
