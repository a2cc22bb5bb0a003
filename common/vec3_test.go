package common

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func vecAlmostEqual(a, b Vec3, tol float32) bool {
	return almostEqual(a.X, b.X, tol) && almostEqual(a.Y, b.Y, tol) && almostEqual(a.Z, b.Z, tol)
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -5, 6}

	if got, want := a.Add(b), (Vec3{5, -3, 9}); got != want {
		t.Errorf("Add: got %v, want %v", got, want)
	}
	if got, want := a.Sub(b), (Vec3{-3, 7, -3}); got != want {
		t.Errorf("Sub: got %v, want %v", got, want)
	}
	if got, want := a.Scale(2), (Vec3{2, 4, 6}); got != want {
		t.Errorf("Scale: got %v, want %v", got, want)
	}
	if got, want := a.Dot(b), float32(4-10+18); got != want {
		t.Errorf("Dot: got %v, want %v", got, want)
	}
	if got, want := (Vec3{1, 0, 0}).Cross(Vec3{0, 1, 0}), (Vec3{0, 0, 1}); got != want {
		t.Errorf("Cross: got %v, want %v", got, want)
	}
}

func TestVec3Normalize(t *testing.T) {
	v := Vec3{3, 0, 4}
	n := v.Normalize()
	if !almostEqual(n.Length(), 1, 1e-6) {
		t.Errorf("Normalize length: got %v, want 1", n.Length())
	}
	if !vecAlmostEqual(n, Vec3{0.6, 0, 0.8}, 1e-6) {
		t.Errorf("Normalize: got %v, want {0.6 0 0.8}", n)
	}

	if got := (Vec3{}).Normalize(); !got.IsZero() {
		t.Errorf("Normalize zero vector: got %v, want zero", got)
	}
}

func TestVec3Lerp(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{10, -10, 2}
	if got, want := a.Lerp(b, 0.5), (Vec3{5, -5, 1}); !vecAlmostEqual(got, want, 1e-6) {
		t.Errorf("Lerp: got %v, want %v", got, want)
	}
	if got := a.Lerp(b, 0); got != a {
		t.Errorf("Lerp t=0: got %v, want %v", got, a)
	}
	if got := a.Lerp(b, 1); got != b {
		t.Errorf("Lerp t=1: got %v, want %v", got, b)
	}
}

func TestQuatRotate(t *testing.T) {
	// 90° around Y maps +X to -Z.
	q := QuatAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/2))
	got := q.Rotate(Vec3{1, 0, 0})
	if !vecAlmostEqual(got, Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("Rotate: got %v, want {0 0 -1}", got)
	}

	if got := QuatIdentity().Rotate(Vec3{1, 2, 3}); !vecAlmostEqual(got, Vec3{1, 2, 3}, 1e-6) {
		t.Errorf("identity Rotate: got %v, want {1 2 3}", got)
	}
}

func TestQuatMulComposition(t *testing.T) {
	// Two 45° rotations around Y compose to 90°.
	half := QuatAxisAngle(Vec3{0, 1, 0}, float32(math.Pi/4))
	full := half.Mul(half)
	got := full.Rotate(Vec3{1, 0, 0})
	if !vecAlmostEqual(got, Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("composed Rotate: got %v, want {0 0 -1}", got)
	}
}

func TestClampHelpers(t *testing.T) {
	if got := Clamp(5, 0, 1); got != 1 {
		t.Errorf("Clamp high: got %v, want 1", got)
	}
	if got := Clamp(-5, 0, 1); got != 0 {
		t.Errorf("Clamp low: got %v, want 0", got)
	}
	if got := Clamp01(0.25); got != 0.25 {
		t.Errorf("Clamp01 passthrough: got %v, want 0.25", got)
	}
	if got := Lerp(2, 4, 0.25); got != 2.5 {
		t.Errorf("Lerp: got %v, want 2.5", got)
	}
}
