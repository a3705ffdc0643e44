package models

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/adtedit/internal/picking"
)

// Instance is one placement of a model.
type Instance struct {
	UUID uint32
	Hash uint64
	Name string

	renderer *Renderer
	refs     int // Guarded by Registry.mu

	mu        sync.RWMutex
	position  mgl32.Vec3
	rotation  mgl32.Vec3 // Degrees
	scale     float32
	transform mgl32.Mat4
	bounds    picking.AABB
	depth     float32
}

func newInstance(r *Renderer, uuid uint32, position, rotation mgl32.Vec3, scale float32) *Instance {
	inst := &Instance{
		UUID:     uuid,
		Hash:     r.Hash,
		Name:     r.Name,
		renderer: r,
		refs:     1,
		position: position,
		rotation: rotation,
		scale:    scale,
	}
	inst.updateTransform()
	return inst
}

// updateTransform rebuilds the world matrix and bounds. Caller holds mu or owns inst.
func (inst *Instance) updateTransform() {
	inst.transform = mgl32.Translate3D(inst.position[0], inst.position[1], inst.position[2]).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(inst.rotation[2]))).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(inst.rotation[1]))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(inst.rotation[0]))).
		Mul4(mgl32.Scale3D(inst.scale, inst.scale, inst.scale))
	inst.bounds = inst.renderer.model.BoundingBox().Transform(inst.transform)
}

// Model returns the shared model of the instance.
func (inst *Instance) Model() Model {
	return inst.renderer.model
}

// Position returns the world position.
func (inst *Instance) Position() mgl32.Vec3 {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.position
}

// Rotation returns the rotation in degrees around X, Y and Z.
func (inst *Instance) Rotation() mgl32.Vec3 {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.rotation
}

// Scale returns the uniform scale.
func (inst *Instance) Scale() float32 {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.scale
}

// Transform returns the model to world matrix.
func (inst *Instance) Transform() mgl32.Mat4 {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.transform
}

// BoundingBox returns the world-space bounds.
func (inst *Instance) BoundingBox() picking.AABB {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.bounds
}

// Depth returns the camera distance computed by the last UpdateDepths.
func (inst *Instance) Depth() float32 {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.depth
}

// UpdatePosition moves the instance by delta.
func (inst *Instance) UpdatePosition(delta mgl32.Vec3) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.position = inst.position.Add(delta)
	inst.updateTransform()
}

func (inst *Instance) updateDepth(camera mgl32.Vec3) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.depth = inst.bounds.Center().Sub(camera).Len()
}

// Intersect tests the ray against the world bounds.
func (inst *Instance) Intersect(ray picking.Ray) (float32, bool) {
	return ray.IntersectAABB(inst.BoundingBox())
}
