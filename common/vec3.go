// Package common contains the math types shared across the engine packages:
// vectors, quaternions, matrices, and the byte-view helpers that stage them
// into GPU buffers.
package common

import "math"

// Vec3 is a 3-component float32 vector. Methods are value-based and never
// mutate the receiver.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// LengthSq returns the squared length of v, avoiding the sqrt.
func (v Vec3) LengthSq() float32 {
	return v.Dot(v)
}

// Normalize returns v scaled to unit length. Vectors shorter than Epsilon
// return the zero vector instead of amplifying noise.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < Epsilon {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Lerp returns the linear interpolation between v and o by t (unclamped).
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	return Vec3{
		Lerp(v.X, o.X, t),
		Lerp(v.Y, o.Y, t),
		Lerp(v.Z, o.Z, t),
	}
}

// IsZero reports whether every component is exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Quat is a rotation quaternion (x, y, z, w). The zero value is not a valid
// rotation; use QuatIdentity.
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return Quat{0, 0, 0, 1}
}

// QuatAxisAngle returns a quaternion rotating angle radians around axis.
// The axis is normalized internally; a zero axis yields the identity.
func QuatAxisAngle(axis Vec3, angle float32) Quat {
	n := axis.Normalize()
	if n.IsZero() {
		return QuatIdentity()
	}
	half := float64(angle) / 2
	s := float32(math.Sin(half))
	return Quat{n.X * s, n.Y * s, n.Z * s, float32(math.Cos(half))}
}

// Mul returns the composition q * o (apply o first, then q).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Normalize returns q scaled to unit length; degenerate input yields identity.
func (q Quat) Normalize() Quat {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l < Epsilon {
		return QuatIdentity()
	}
	inv := 1 / l
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Rotate applies the rotation q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = v + 2*cross(q.xyz, cross(q.xyz, v) + w*v)
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Add(v.Scale(q.W))
	return v.Add(u.Cross(t).Scale(2))
}

// Nlerp returns the normalized linear interpolation between q and o by t,
// negating o when the pair straddles the double cover so the blend takes the
// short arc.
func (q Quat) Nlerp(o Quat, t float32) Quat {
	dot := q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
	if dot < 0 {
		o = Quat{-o.X, -o.Y, -o.Z, -o.W}
	}
	return Quat{
		Lerp(q.X, o.X, t),
		Lerp(q.Y, o.Y, t),
		Lerp(q.Z, o.Z, t),
		Lerp(q.W, o.W, t),
	}.Normalize()
}
