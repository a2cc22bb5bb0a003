package chain

import "github.com/Carmen-Shannon/oxy-chain/common"

// ColliderType identifies a collision primitive. The numeric values are a
// fixed contract shared with the compute kernel and must not change.
type ColliderType int32

const (
	ColliderSphere  ColliderType = 0
	ColliderCapsule ColliderType = 1
	ColliderBox     ColliderType = 2
	ColliderPlane   ColliderType = 3
)

// Collider is a collision primitive snapshot. The simulator reads it and
// never writes back; hosts refresh Center/Params once per tick when colliders
// follow animated transforms.
//
// Field meaning by type:
//   - Sphere: Center + Radius; Params unused.
//   - Capsule: Center = segment start, Radius = capsule radius,
//     Params[0..2] = segment end.
//   - Box: Center = box center, Params[0..2] = half extents (axis-aligned);
//     Radius unused.
//   - Plane: Params[0..2] = unit normal, Params[3] = plane offset d where
//     points on the plane satisfy dot(normal, p) = d; Center and Radius unused.
type Collider struct {
	Type   ColliderType
	Center common.Vec3
	Radius float32
	Params [4]float32
}

// NewSphere returns a sphere collider.
//
// Parameters:
//   - center: sphere center in world space
//   - radius: sphere radius
//
// Returns:
//   - Collider: the sphere descriptor
func NewSphere(center common.Vec3, radius float32) Collider {
	return Collider{Type: ColliderSphere, Center: center, Radius: radius}
}

// NewCapsule returns a capsule collider spanning the segment p0→p1.
//
// Parameters:
//   - p0: segment start in world space
//   - p1: segment end in world space
//   - radius: capsule radius
//
// Returns:
//   - Collider: the capsule descriptor
func NewCapsule(p0, p1 common.Vec3, radius float32) Collider {
	return Collider{
		Type:   ColliderCapsule,
		Center: p0,
		Radius: radius,
		Params: [4]float32{p1.X, p1.Y, p1.Z, 0},
	}
}

// NewBox returns an axis-aligned box collider.
//
// Parameters:
//   - center: box center in world space
//   - halfExtents: half size along each axis
//
// Returns:
//   - Collider: the box descriptor
func NewBox(center, halfExtents common.Vec3) Collider {
	return Collider{
		Type:   ColliderBox,
		Center: center,
		Params: [4]float32{halfExtents.X, halfExtents.Y, halfExtents.Z, 0},
	}
}

// NewPlane returns a half-space collider keeping particles on the normal side
// of the plane through point with the given normal.
//
// Parameters:
//   - point: any point on the plane
//   - normal: plane normal (normalized internally)
//
// Returns:
//   - Collider: the plane descriptor
func NewPlane(point, normal common.Vec3) Collider {
	n := normal.Normalize()
	return Collider{
		Type:   ColliderPlane,
		Params: [4]float32{n.X, n.Y, n.Z, n.Dot(point)},
	}
}

// Resolve pushes a particle out of the primitive. Degenerate parameters
// (non-positive radius or extents, zero-length normal) contribute no
// collision.
//
// Parameters:
//   - pos: the particle position
//   - particleRadius: the particle's own collision radius
//
// Returns:
//   - common.Vec3: the resolved position (unchanged when not penetrating)
//   - bool: true if the collider pushed the particle
func (c Collider) Resolve(pos common.Vec3, particleRadius float32) (common.Vec3, bool) {
	switch c.Type {
	case ColliderSphere:
		return resolveSphere(pos, particleRadius, c.Center, c.Radius)
	case ColliderCapsule:
		end := common.Vec3{X: c.Params[0], Y: c.Params[1], Z: c.Params[2]}
		return resolveCapsule(pos, particleRadius, c.Center, end, c.Radius)
	case ColliderBox:
		half := common.Vec3{X: c.Params[0], Y: c.Params[1], Z: c.Params[2]}
		return resolveBox(pos, particleRadius, c.Center, half)
	case ColliderPlane:
		normal := common.Vec3{X: c.Params[0], Y: c.Params[1], Z: c.Params[2]}
		return resolvePlane(pos, particleRadius, normal, c.Params[3])
	default:
		return pos, false
	}
}

func resolveSphere(pos common.Vec3, particleRadius float32, center common.Vec3, radius float32) (common.Vec3, bool) {
	if radius <= 0 {
		return pos, false
	}
	minDist := radius + particleRadius
	d := pos.Sub(center)
	distSq := d.LengthSq()
	if distSq >= minDist*minDist {
		return pos, false
	}
	dist := d.Length()
	if dist < common.Epsilon {
		// Particle at the exact center: push out along +Y, any direction is as
		// good as another.
		return center.Add(common.Vec3{Y: minDist}), true
	}
	return center.Add(d.Scale(minDist / dist)), true
}

func resolveCapsule(pos common.Vec3, particleRadius float32, p0, p1 common.Vec3, radius float32) (common.Vec3, bool) {
	if radius <= 0 {
		return pos, false
	}
	seg := p1.Sub(p0)
	segLenSq := seg.LengthSq()
	if segLenSq < common.Epsilon {
		// Degenerate segment behaves as a sphere at p0.
		return resolveSphere(pos, particleRadius, p0, radius)
	}
	t := common.Clamp01(pos.Sub(p0).Dot(seg) / segLenSq)
	closest := p0.Add(seg.Scale(t))
	return resolveSphere(pos, particleRadius, closest, radius)
}

func resolveBox(pos common.Vec3, particleRadius float32, center, half common.Vec3) (common.Vec3, bool) {
	if half.X <= 0 || half.Y <= 0 || half.Z <= 0 {
		return pos, false
	}
	local := pos.Sub(center)

	inside := local.X > -half.X && local.X < half.X &&
		local.Y > -half.Y && local.Y < half.Y &&
		local.Z > -half.Z && local.Z < half.Z

	if inside {
		// Push out through the nearest face.
		dx := half.X - abs32(local.X)
		dy := half.Y - abs32(local.Y)
		dz := half.Z - abs32(local.Z)
		switch {
		case dx <= dy && dx <= dz:
			local.X = copySign(half.X+particleRadius, local.X)
		case dy <= dx && dy <= dz:
			local.Y = copySign(half.Y+particleRadius, local.Y)
		default:
			local.Z = copySign(half.Z+particleRadius, local.Z)
		}
		return center.Add(local), true
	}

	// Outside the box: penetrating when closer than particleRadius to the surface.
	closest := common.Vec3{
		X: common.Clamp(local.X, -half.X, half.X),
		Y: common.Clamp(local.Y, -half.Y, half.Y),
		Z: common.Clamp(local.Z, -half.Z, half.Z),
	}
	d := local.Sub(closest)
	distSq := d.LengthSq()
	if distSq >= particleRadius*particleRadius || distSq < common.Epsilon {
		return pos, false
	}
	dist := d.Length()
	pushed := closest.Add(d.Scale(particleRadius / dist))
	return center.Add(pushed), true
}

func resolvePlane(pos common.Vec3, particleRadius float32, normal common.Vec3, d float32) (common.Vec3, bool) {
	if normal.LengthSq() < common.Epsilon {
		return pos, false
	}
	n := normal.Normalize()
	signed := n.Dot(pos) - d - particleRadius
	if signed >= 0 {
		return pos, false
	}
	return pos.Sub(n.Scale(signed)), true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func copySign(mag, sign float32) float32 {
	if sign < 0 {
		return -mag
	}
	return mag
}
