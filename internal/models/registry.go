package models

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/internal/picking"
)

// DefaultUnloadInterval is how long the unload worker sleeps when its queue is empty.
const DefaultUnloadInterval = 200 * time.Millisecond

// Registry maps model names to shared renderers and tracks which instances
// are visible in the current view.
//
// Lock order is mu, then visMu. Instances of one model share one renderer; a
// renderer whose last instance is removed goes to the unload queue.
type Registry struct {
	loader Loader
	device Device

	mu        sync.Mutex
	renderers map[uint64]*Renderer
	closed    bool

	// The three visibility sets are disjoint and change together under visMu.
	visMu      sync.Mutex
	batched    map[uint32]*Instance
	nonBatched map[uint32]*Instance
	sorted     map[uint32]*Instance

	unload *unloadQueue
}

// NewRegistry creates a registry. A zero interval selects DefaultUnloadInterval.
func NewRegistry(loader Loader, device Device, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultUnloadInterval
	}
	return &Registry{
		loader:     loader,
		device:     device,
		renderers:  make(map[uint64]*Renderer),
		batched:    make(map[uint32]*Instance),
		nonBatched: make(map[uint32]*Instance),
		sorted:     make(map[uint32]*Instance),
		unload:     newUnloadQueue(interval),
	}
}

// Start runs the unload worker until ctx is done or Shutdown is called.
func (r *Registry) Start(ctx context.Context) {
	r.unload.start(ctx)
}

// Shutdown stops the unload worker after it has disposed every queued renderer.
// The registry ignores calls made afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.unload.shutdown()
}

// AddInstance places model name with the given unique id. The model is loaded
// on first use. Adding a uuid that is already placed returns the existing
// instance and counts one more reference. Returns nil when the model cannot be
// loaded; nothing is registered in that case.
func (r *Registry) AddInstance(name string, uuid uint32, position, rotation mgl32.Vec3, scale float32) *Instance {
	hash := Hash(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	rd, ok := r.renderers[hash]
	if !ok {
		m, err := r.loader.LoadModel(name)
		if err != nil || m == nil {
			logger.Warn("model load failed", zap.String("model", name), zap.Error(err))
			return nil
		}
		rd = newRenderer(hash, name, m)
		r.renderers[hash] = rd
		logger.Debug("model loaded", zap.String("model", name), zap.Uint64("hash", hash))
	}

	if inst, ok := rd.instances[uuid]; ok {
		inst.refs++
		return inst
	}
	inst := newInstance(rd, uuid, position, rotation, scale)
	rd.instances[uuid] = inst
	return inst
}

// RemoveInstance drops one reference to the instance uuid of model name.
func (r *Registry) RemoveInstance(name string, uuid uint32) {
	r.RemoveInstanceByHash(Hash(name), uuid)
}

// RemoveInstanceByHash drops one reference to an instance. When the last
// reference goes the instance leaves every visibility set, and an empty
// renderer is queued for unloading.
func (r *Registry) RemoveInstanceByHash(hash uint64, uuid uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	rd, ok := r.renderers[hash]
	if !ok {
		return
	}
	inst, ok := rd.instances[uuid]
	if !ok {
		return
	}
	inst.refs--
	if inst.refs > 0 {
		return
	}
	delete(rd.instances, uuid)

	r.visMu.Lock()
	r.hideLocked(inst)
	r.visMu.Unlock()

	if len(rd.instances) == 0 {
		delete(r.renderers, hash)
		r.unload.enqueue(rd)
	}
}

// hideLocked removes inst from the visibility sets. Caller holds visMu.
func (r *Registry) hideLocked(inst *Instance) {
	for _, set := range []map[uint32]*Instance{r.batched, r.nonBatched, r.sorted} {
		if set[inst.UUID] == inst {
			delete(set, inst.UUID)
		}
	}
}

// PushMapReferences marks instances visible for the current view. Instances
// with blend passes are depth sorted, animated ones are drawn one by one and
// the rest are batched per model. Already visible or removed instances are skipped.
func (r *Registry) PushMapReferences(instances []*Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.visMu.Lock()
	defer r.visMu.Unlock()
	for _, inst := range instances {
		if inst == nil || r.isVisibleLocked(inst.UUID) {
			continue
		}
		rd, ok := r.renderers[inst.Hash]
		if !ok || rd.instances[inst.UUID] != inst {
			continue
		}
		m := rd.model
		switch {
		case m.HasBlendPass():
			r.sorted[inst.UUID] = inst
		case m.NeedsPerInstanceAnimation():
			r.nonBatched[inst.UUID] = inst
		default:
			r.batched[inst.UUID] = inst
		}
	}
}

func (r *Registry) isVisibleLocked(uuid uint32) bool {
	_, a := r.batched[uuid]
	_, b := r.nonBatched[uuid]
	_, c := r.sorted[uuid]
	return a || b || c
}

// ViewChanged clears the visibility sets.
func (r *Registry) ViewChanged() {
	r.visMu.Lock()
	defer r.visMu.Unlock()
	clear(r.batched)
	clear(r.nonBatched)
	clear(r.sorted)
}

// UpdateDepths recomputes the camera distance of the depth sorted instances.
func (r *Registry) UpdateDepths(camera mgl32.Vec3) {
	r.visMu.Lock()
	defer r.visMu.Unlock()
	for _, inst := range r.sorted {
		inst.updateDepth(camera)
	}
}

// SortedInstances returns the blended instances back to front: descending
// depth, ties broken by ascending uuid.
func (r *Registry) SortedInstances() []*Instance {
	r.visMu.Lock()
	out := make([]*Instance, 0, len(r.sorted))
	for _, inst := range r.sorted {
		out = append(out, inst)
	}
	r.visMu.Unlock()

	slices.SortFunc(out, func(a, b *Instance) int {
		da, db := a.Depth(), b.Depth()
		switch {
		case da > db:
			return -1
		case da < db:
			return 1
		}
		return byUUID(a, b)
	})
	return out
}

// OnFrame draws the visible instances: per-model batches first, then the
// animated instances, then the blended ones back to front.
func (r *Registry) OnFrame(camera mgl32.Vec3) {
	if r.device == nil {
		return
	}
	r.UpdateDepths(camera)

	r.visMu.Lock()
	batches := make(map[*Renderer][]*Instance)
	for _, inst := range r.batched {
		batches[inst.renderer] = append(batches[inst.renderer], inst)
	}
	single := make([]*Instance, 0, len(r.nonBatched))
	for _, inst := range r.nonBatched {
		single = append(single, inst)
	}
	r.visMu.Unlock()

	renderers := make([]*Renderer, 0, len(batches))
	for rd := range batches {
		renderers = append(renderers, rd)
	}
	slices.SortFunc(renderers, func(a, b *Renderer) int { return compareUint64(a.Hash, b.Hash) })
	for _, rd := range renderers {
		insts := batches[rd]
		slices.SortFunc(insts, byUUID)
		r.device.DrawBatch(rd.model, insts)
	}

	slices.SortFunc(single, byUUID)
	for _, inst := range single {
		r.device.DrawInstance(inst.renderer.model, inst)
	}
	for _, inst := range r.SortedInstances() {
		r.device.DrawInstance(inst.renderer.model, inst)
	}
}

func byUUID(a, b *Instance) int {
	return compareUint64(uint64(a.UUID), uint64(b.UUID))
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Intersect returns the visible instance whose bounds the ray hits first.
func (r *Registry) Intersect(ray picking.Ray) (*Instance, float32, bool) {
	r.visMu.Lock()
	defer r.visMu.Unlock()

	var (
		best    *Instance
		bestHit float32
	)
	for _, set := range []map[uint32]*Instance{r.batched, r.nonBatched, r.sorted} {
		for _, inst := range set {
			dist, ok := inst.Intersect(ray)
			if !ok {
				continue
			}
			if best == nil || dist < bestHit || (dist == bestHit && inst.UUID < best.UUID) {
				best = inst
				bestHit = dist
			}
		}
	}
	return best, bestHit, best != nil
}

// Stats reports the number of loaded renderers and placed instances.
func (r *Registry) Stats() (renderers, instances int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.renderers {
		instances += len(rd.instances)
	}
	return len(r.renderers), instances
}

// Visible reports the sizes of the batched, non-batched and sorted sets.
func (r *Registry) Visible() (batched, nonBatched, sorted int) {
	r.visMu.Lock()
	defer r.visMu.Unlock()
	return len(r.batched), len(r.nonBatched), len(r.sorted)
}

// PendingUnloads returns the number of renderers waiting for disposal.
func (r *Registry) PendingUnloads() int {
	return r.unload.pendingCount()
}
