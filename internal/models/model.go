// Package models tracks placed model instances, their shared renderers and
// per-frame visibility.
package models

import (
	"hash/fnv"

	"github.com/Faultbox/adtedit/internal/picking"
	"github.com/Faultbox/adtedit/pkg/encoding"
)

// Model is a loaded model resource shared by all of its instances.
type Model interface {
	// BoundingBox returns the model-space bounds.
	BoundingBox() picking.AABB
	// NeedsPerInstanceAnimation reports whether instances must be drawn one by one.
	NeedsPerInstanceAnimation() bool
	// HasBlendPass reports whether instances need back-to-front ordering.
	HasBlendPass() bool
	// Close releases the model's device resources.
	Close() error
}

// Loader loads models by file name.
type Loader interface {
	LoadModel(name string) (Model, error)
}

// Device receives draw calls.
type Device interface {
	DrawBatch(m Model, instances []*Instance)
	DrawInstance(m Model, instance *Instance)
}

// Hash returns the identity of a model file name. Names differing only in
// case or path separator share a hash.
func Hash(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(encoding.UpperName(name)))
	return h.Sum64()
}
