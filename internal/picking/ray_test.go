package picking

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestIntersectAABB_Hit(t *testing.T) {
	ray := NewRay(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, -1})
	box := NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	dist, hit := ray.IntersectAABB(box)
	if !hit {
		t.Fatal("expected hit")
	}
	if dist != 9 {
		t.Errorf("expected distance 9, got %f", dist)
	}
}

func TestIntersectAABB_Miss(t *testing.T) {
	ray := NewRay(mgl32.Vec3{5, 5, 10}, mgl32.Vec3{0, 0, -1})
	box := NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	if _, hit := ray.IntersectAABB(box); hit {
		t.Error("expected miss")
	}
}

func TestIntersectAABB_Inside(t *testing.T) {
	ray := NewRay(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	box := NewAABB(mgl32.Vec3{-2, -2, -2}, mgl32.Vec3{2, 2, 2})

	dist, hit := ray.IntersectAABB(box)
	if !hit || dist != 2 {
		t.Errorf("expected exit distance 2, got %f (hit=%v)", dist, hit)
	}
}

func TestIntersectTriangle(t *testing.T) {
	a := mgl32.Vec3{0, 0, 0}
	b := mgl32.Vec3{4, 0, 0}
	c := mgl32.Vec3{0, 4, 0}

	ray := NewRay(mgl32.Vec3{1, 1, 5}, mgl32.Vec3{0, 0, -1})
	dist, hit := ray.IntersectTriangle(a, b, c)
	if !hit || dist != 5 {
		t.Errorf("expected hit at 5, got %f (hit=%v)", dist, hit)
	}

	miss := NewRay(mgl32.Vec3{3, 3, 5}, mgl32.Vec3{0, 0, -1})
	if _, hit := miss.IntersectTriangle(a, b, c); hit {
		t.Error("expected miss outside the triangle")
	}

	behind := NewRay(mgl32.Vec3{1, 1, -5}, mgl32.Vec3{0, 0, -1})
	if _, hit := behind.IntersectTriangle(a, b, c); hit {
		t.Error("expected miss behind the origin")
	}
}

func TestAABB_ExtendAndUnion(t *testing.T) {
	box := EmptyAABB()
	if !box.IsEmpty() {
		t.Fatal("expected empty box")
	}
	box.Extend(mgl32.Vec3{1, 2, 3})
	box.Extend(mgl32.Vec3{-1, 5, 0})

	if box.Min != (mgl32.Vec3{-1, 2, 0}) || box.Max != (mgl32.Vec3{1, 5, 3}) {
		t.Errorf("unexpected box %v", box)
	}

	other := EmptyAABB()
	box.Union(other)
	if box.Min != (mgl32.Vec3{-1, 2, 0}) {
		t.Error("union with empty box changed the box")
	}

	if !box.Contains(mgl32.Vec3{0, 3, 1}) || box.Contains(mgl32.Vec3{0, 6, 1}) {
		t.Error("Contains returned wrong result")
	}
}

func TestAABB_Transform(t *testing.T) {
	box := NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	moved := box.Transform(mgl32.Translate3D(10, 0, 0).Mul4(mgl32.Scale3D(2, 2, 2)))

	if moved.Min != (mgl32.Vec3{8, -2, -2}) || moved.Max != (mgl32.Vec3{12, 2, 2}) {
		t.Errorf("unexpected transformed box %v", moved)
	}
}
