package chain

import "testing"

// TestConstantCurve tests that a constant curve samples the same value
// everywhere.
func TestConstantCurve(t *testing.T) {
	c := Constant(0.25)
	for _, tt := range []float32{-1, 0, 0.5, 1, 2} {
		if got := c.Sample(tt); got != 0.25 {
			t.Errorf("Constant(0.25).Sample(%v) = %v, want 0.25", tt, got)
		}
	}
}

// TestKeyframesInterpolation tests piecewise-linear sampling between keys.
func TestKeyframesInterpolation(t *testing.T) {
	c := Keyframes(
		Keyframe{T: 0, Value: 0},
		Keyframe{T: 0.5, Value: 1},
		Keyframe{T: 1, Value: 0.5},
	)

	tests := []struct {
		t    float32
		want float32
	}{
		{0, 0},
		{0.25, 0.5},
		{0.5, 1},
		{0.75, 0.75},
		{1, 0.5},
	}
	for _, tt := range tests {
		if got := c.Sample(tt.t); !almostEqual32(got, tt.want, 1e-6) {
			t.Errorf("Sample(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

// TestKeyframesClampsOutOfRange tests that samples outside the key range
// clamp to the boundary values.
func TestKeyframesClampsOutOfRange(t *testing.T) {
	c := Keyframes(
		Keyframe{T: 0.2, Value: 0.3},
		Keyframe{T: 0.8, Value: 0.9},
	)

	if got := c.Sample(-1); got != 0.3 {
		t.Errorf("Sample(-1) = %v, want 0.3", got)
	}
	if got := c.Sample(2); got != 0.9 {
		t.Errorf("Sample(2) = %v, want 0.9", got)
	}
}

// TestKeyframesSortsInput tests that keys given out of order still sample as
// an increasing curve.
func TestKeyframesSortsInput(t *testing.T) {
	c := Keyframes(
		Keyframe{T: 1, Value: 1},
		Keyframe{T: 0, Value: 0},
	)
	if got := c.Sample(0.5); !almostEqual32(got, 0.5, 1e-6) {
		t.Errorf("Sample(0.5) = %v, want 0.5", got)
	}
}

// TestKeyframesEmpty tests that a keyless curve samples to zero.
func TestKeyframesEmpty(t *testing.T) {
	c := Keyframes()
	if got := c.Sample(0.5); got != 0 {
		t.Errorf("Sample(0.5) = %v, want 0", got)
	}
}

func almostEqual32(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
