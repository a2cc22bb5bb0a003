package chain

import "sort"

// Curve samples a scalar distribution along a chain. The builder evaluates it
// at each particle's normalized position t in [0, 1] (0 = root, 1 = chain tip)
// to spread a physical parameter over the chain.
type Curve interface {
	// Sample evaluates the curve at t. Implementations clamp t to [0, 1].
	//
	// Parameters:
	//   - t: normalized position along the chain
	//
	// Returns:
	//   - float32: the sampled value
	Sample(t float32) float32
}

// constantCurve returns the same value everywhere.
type constantCurve struct {
	value float32
}

var _ Curve = constantCurve{}

// Constant returns a Curve that samples to v at every position.
//
// Parameters:
//   - v: the constant value
//
// Returns:
//   - Curve: the constant curve
func Constant(v float32) Curve {
	return constantCurve{value: v}
}

func (c constantCurve) Sample(_ float32) float32 {
	return c.value
}

// Keyframe is a single (position, value) pair on a piecewise-linear curve.
type Keyframe struct {
	// T is the normalized position in [0, 1].
	T float32
	// Value is the curve value at T.
	Value float32
}

// keyframeCurve interpolates linearly between sorted keyframes.
type keyframeCurve struct {
	keys []Keyframe
}

var _ Curve = keyframeCurve{}

// Keyframes returns a piecewise-linear Curve through the given points.
// Points are sorted by T internally; sampling before the first or after the
// last keyframe clamps to the boundary value. An empty set samples to zero.
//
// Parameters:
//   - keys: the keyframe points
//
// Returns:
//   - Curve: the piecewise-linear curve
func Keyframes(keys ...Keyframe) Curve {
	sorted := make([]Keyframe, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })
	return keyframeCurve{keys: sorted}
}

func (c keyframeCurve) Sample(t float32) float32 {
	if len(c.keys) == 0 {
		return 0
	}
	if t <= c.keys[0].T {
		return c.keys[0].Value
	}
	last := c.keys[len(c.keys)-1]
	if t >= last.T {
		return last.Value
	}
	for i := 1; i < len(c.keys); i++ {
		if t <= c.keys[i].T {
			a, b := c.keys[i-1], c.keys[i]
			span := b.T - a.T
			if span <= 0 {
				return b.Value
			}
			f := (t - a.T) / span
			return a.Value + (b.Value-a.Value)*f
		}
	}
	return last.Value
}
