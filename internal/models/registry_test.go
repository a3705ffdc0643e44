package models

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/adtedit/internal/picking"
)

type fakeModel struct {
	blend   bool
	animate bool
	closed  atomic.Int32
}

func (m *fakeModel) BoundingBox() picking.AABB {
	return picking.NewAABB(mgl32.Vec3{-1, -1, 0}, mgl32.Vec3{1, 1, 2})
}
func (m *fakeModel) NeedsPerInstanceAnimation() bool { return m.animate }
func (m *fakeModel) HasBlendPass() bool              { return m.blend }
func (m *fakeModel) Close() error {
	m.closed.Add(1)
	return nil
}

type fakeLoader struct {
	mu     sync.Mutex
	models map[string]*fakeModel
	loads  int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{models: make(map[string]*fakeModel)}
}

func (l *fakeLoader) LoadModel(name string) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	m, ok := l.models[name]
	if !ok {
		return nil, errors.New("missing")
	}
	return m, nil
}

type drawCall struct {
	batch bool
	uuids []uint32
}

type fakeDevice struct {
	calls []drawCall
}

func (d *fakeDevice) DrawBatch(m Model, instances []*Instance) {
	call := drawCall{batch: true}
	for _, inst := range instances {
		call.uuids = append(call.uuids, inst.UUID)
	}
	d.calls = append(d.calls, call)
}

func (d *fakeDevice) DrawInstance(m Model, instance *Instance) {
	d.calls = append(d.calls, drawCall{uuids: []uint32{instance.UUID}})
}

func TestHash_CaseAndSeparatorInsensitive(t *testing.T) {
	assert.Equal(t, Hash(`World\Tree.m2`), Hash("WORLD/tree.M2"))
	assert.NotEqual(t, Hash("a.m2"), Hash("b.m2"))
}

func TestAddInstance_SharesRenderer(t *testing.T) {
	loader := newFakeLoader()
	loader.models["tree.m2"] = &fakeModel{}
	loader.models["TREE.M2"] = loader.models["tree.m2"]
	reg := NewRegistry(loader, nil, 0)

	a := reg.AddInstance("tree.m2", 1, mgl32.Vec3{10, 10, 0}, mgl32.Vec3{}, 1)
	b := reg.AddInstance("TREE.M2", 2, mgl32.Vec3{20, 10, 0}, mgl32.Vec3{}, 1)
	require.NotNil(t, a)
	require.NotNil(t, b)

	assert.Equal(t, 1, loader.loads)
	assert.Same(t, a.Model(), b.Model())
	renderers, instances := reg.Stats()
	assert.Equal(t, 1, renderers)
	assert.Equal(t, 2, instances)
}

func TestAddInstance_LoadFailureRegistersNothing(t *testing.T) {
	reg := NewRegistry(newFakeLoader(), nil, 0)

	assert.Nil(t, reg.AddInstance("missing.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1))
	renderers, instances := reg.Stats()
	assert.Zero(t, renderers)
	assert.Zero(t, instances)
}

func TestAddInstance_BoundsFollowPlacement(t *testing.T) {
	loader := newFakeLoader()
	loader.models["rock.m2"] = &fakeModel{}
	reg := NewRegistry(loader, nil, 0)

	inst := reg.AddInstance("rock.m2", 7, mgl32.Vec3{100, 200, 50}, mgl32.Vec3{}, 2)
	require.NotNil(t, inst)
	box := inst.BoundingBox()
	assert.InDelta(t, 98, box.Min[0], 1e-4)
	assert.InDelta(t, 102, box.Max[0], 1e-4)
	assert.InDelta(t, 54, box.Max[2], 1e-4)

	inst.UpdatePosition(mgl32.Vec3{0, 0, 10})
	assert.InDelta(t, 60, inst.BoundingBox().Min[2], 1e-4)
	assert.InDelta(t, 60, inst.Position()[2], 1e-4)
}

func TestRemoveInstance_UnloadsOnce(t *testing.T) {
	model := &fakeModel{}
	loader := newFakeLoader()
	loader.models["tree.m2"] = model
	reg := NewRegistry(loader, nil, time.Millisecond)

	a := reg.AddInstance("tree.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.AddInstance("tree.m2", 2, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.PushMapReferences([]*Instance{a})

	reg.RemoveInstance("tree.m2", 1)
	assert.Zero(t, reg.PendingUnloads())
	batched, _, _ := reg.Visible()
	assert.Zero(t, batched)

	reg.RemoveInstance("tree.m2", 2)
	reg.RemoveInstance("tree.m2", 2)
	assert.Equal(t, 1, reg.PendingUnloads())

	reg.Start(context.Background())
	reg.Shutdown()
	assert.Equal(t, int32(1), model.closed.Load())
	assert.Zero(t, reg.PendingUnloads())
}

func TestRemoveInstance_SharedUUIDIsCounted(t *testing.T) {
	loader := newFakeLoader()
	loader.models["tree.m2"] = &fakeModel{}
	reg := NewRegistry(loader, nil, 0)

	a := reg.AddInstance("tree.m2", 5, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	b := reg.AddInstance("tree.m2", 5, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	assert.Same(t, a, b)

	reg.RemoveInstance("tree.m2", 5)
	_, instances := reg.Stats()
	assert.Equal(t, 1, instances)

	reg.RemoveInstance("tree.m2", 5)
	_, instances = reg.Stats()
	assert.Zero(t, instances)
}

func TestShutdown_DrainsWithoutWorker(t *testing.T) {
	model := &fakeModel{}
	loader := newFakeLoader()
	loader.models["tree.m2"] = model
	reg := NewRegistry(loader, nil, 0)

	reg.AddInstance("tree.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.RemoveInstance("tree.m2", 1)
	reg.Shutdown()
	assert.Equal(t, int32(1), model.closed.Load())

	// Ignored after shutdown.
	assert.Nil(t, reg.AddInstance("tree.m2", 2, mgl32.Vec3{}, mgl32.Vec3{}, 1))
	reg.Shutdown()
}

func TestUnloadWorker_DisposesWhileRunning(t *testing.T) {
	model := &fakeModel{}
	loader := newFakeLoader()
	loader.models["tree.m2"] = model
	reg := NewRegistry(loader, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)
	defer reg.Shutdown()

	reg.AddInstance("tree.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.RemoveInstance("tree.m2", 1)

	assert.Eventually(t, func() bool { return model.closed.Load() == 1 }, time.Second, time.Millisecond)
}

func TestUnloadWorker_CancelledContextDisposesInline(t *testing.T) {
	model := &fakeModel{}
	loader := newFakeLoader()
	loader.models["tree.m2"] = model
	reg := NewRegistry(loader, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	reg.Start(ctx)
	defer reg.Shutdown()
	cancel()
	select {
	case <-reg.unload.done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}

	reg.AddInstance("tree.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.RemoveInstance("tree.m2", 1)
	assert.Equal(t, int32(1), model.closed.Load())
	assert.Zero(t, reg.PendingUnloads())

	reg.Shutdown()
	assert.Equal(t, int32(1), model.closed.Load(), "disposed once")
}

func TestPushMapReferences_DisjointSets(t *testing.T) {
	loader := newFakeLoader()
	loader.models["plain.m2"] = &fakeModel{}
	loader.models["anim.m2"] = &fakeModel{animate: true}
	loader.models["glass.m2"] = &fakeModel{blend: true, animate: true}
	reg := NewRegistry(loader, nil, 0)

	plain := reg.AddInstance("plain.m2", 1, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	anim := reg.AddInstance("anim.m2", 2, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	glass := reg.AddInstance("glass.m2", 3, mgl32.Vec3{}, mgl32.Vec3{}, 1)

	reg.PushMapReferences([]*Instance{plain, anim, glass, plain, nil})
	batched, nonBatched, sorted := reg.Visible()
	assert.Equal(t, 1, batched)
	assert.Equal(t, 1, nonBatched)
	assert.Equal(t, 1, sorted)

	reg.ViewChanged()
	batched, nonBatched, sorted = reg.Visible()
	assert.Zero(t, batched+nonBatched+sorted)
}

func TestSortedInstances_DepthThenUUID(t *testing.T) {
	loader := newFakeLoader()
	loader.models["glass.m2"] = &fakeModel{blend: true}
	reg := NewRegistry(loader, nil, 0)

	near := reg.AddInstance("glass.m2", 4, mgl32.Vec3{10, 0, 0}, mgl32.Vec3{}, 1)
	far := reg.AddInstance("glass.m2", 9, mgl32.Vec3{100, 0, 0}, mgl32.Vec3{}, 1)
	tieA := reg.AddInstance("glass.m2", 2, mgl32.Vec3{0, 50, 0}, mgl32.Vec3{}, 1)
	tieB := reg.AddInstance("glass.m2", 1, mgl32.Vec3{0, -50, 0}, mgl32.Vec3{}, 1)
	reg.PushMapReferences([]*Instance{near, far, tieA, tieB})

	reg.UpdateDepths(mgl32.Vec3{0, 0, 1})
	sorted := reg.SortedInstances()
	require.Len(t, sorted, 4)
	assert.Equal(t, []uint32{9, 1, 2, 4}, []uint32{sorted[0].UUID, sorted[1].UUID, sorted[2].UUID, sorted[3].UUID})
}

func TestOnFrame_DrawOrder(t *testing.T) {
	loader := newFakeLoader()
	loader.models["plain.m2"] = &fakeModel{}
	loader.models["anim.m2"] = &fakeModel{animate: true}
	loader.models["glass.m2"] = &fakeModel{blend: true}
	dev := &fakeDevice{}
	reg := NewRegistry(loader, dev, 0)

	glass := reg.AddInstance("glass.m2", 30, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	anim := reg.AddInstance("anim.m2", 20, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	p1 := reg.AddInstance("plain.m2", 11, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	p2 := reg.AddInstance("plain.m2", 10, mgl32.Vec3{}, mgl32.Vec3{}, 1)
	reg.PushMapReferences([]*Instance{glass, anim, p1, p2})

	reg.OnFrame(mgl32.Vec3{0, 0, 100})
	require.Len(t, dev.calls, 3)
	assert.Equal(t, drawCall{batch: true, uuids: []uint32{10, 11}}, dev.calls[0])
	assert.Equal(t, []uint32{20}, dev.calls[1].uuids)
	assert.Equal(t, []uint32{30}, dev.calls[2].uuids)
}

func TestIntersect_NearestVisible(t *testing.T) {
	loader := newFakeLoader()
	loader.models["rock.m2"] = &fakeModel{}
	reg := NewRegistry(loader, nil, 0)

	low := reg.AddInstance("rock.m2", 1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{}, 1)
	high := reg.AddInstance("rock.m2", 2, mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, 1)
	hidden := reg.AddInstance("rock.m2", 3, mgl32.Vec3{0, 0, 20}, mgl32.Vec3{}, 1)
	require.NotNil(t, hidden)
	reg.PushMapReferences([]*Instance{low, high})

	ray := picking.NewRay(mgl32.Vec3{0, 0, 100}, mgl32.Vec3{0, 0, -1})
	hit, dist, ok := reg.Intersect(ray)
	require.True(t, ok)
	assert.Equal(t, uint32(2), hit.UUID)
	assert.InDelta(t, 88, dist, 1e-4)
}
