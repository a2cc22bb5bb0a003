package chain

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-chain/common"
)

// GPUParticleSource is the canonical WGSL definition of the Particle struct.
// Matches GPUParticle layout exactly (96 bytes, std430 aligned).
//
//go:embed assets/particle.wgsl
var GPUParticleSource string

// GPUParticle is the GPU-aligned representation of a single simulated particle.
// Matches the WGSL Particle struct layout exactly (see GPUParticleSource).
// Size: 96 bytes (24 words, std430 aligned). ParentIndex rides in the fourth
// vector's pad slot so the stride stays at 24 words.
type GPUParticle struct {
	Position               [3]float32 // offset 0: simulated world position
	_pad0                  float32    // offset 12: vec3 pad
	PrevPosition           [3]float32 // offset 16: previous world position (verlet velocity source)
	_pad1                  float32    // offset 28: vec3 pad
	TransformPosition      [3]float32 // offset 32: animated bone world position this tick
	_pad2                  float32    // offset 44: vec3 pad
	TransformLocalPosition [3]float32 // offset 48: bone local position; doubles as the blended output slot
	ParentIndex            int32      // offset 60: parent particle index, -1 for a chain root (fills vec3 gap)
	Damping                float32    // offset 64
	Elasticity             float32    // offset 68
	Stiffness              float32    // offset 72
	Inert                  float32    // offset 76
	Friction               float32    // offset 80
	Radius                 float32    // offset 84
	BoneLength             float32    // offset 88: rest distance to parent at build time
	IsColliding            int32      // offset 92: nonzero when a collider pushed this particle last step
}

// Size returns the size of the GPUParticle struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUParticle) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParticle struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUParticle) Marshal() []byte {
	buf := make([]byte, 96)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Position[2]))
	binary.LittleEndian.PutUint32(buf[12:16], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.PrevPosition[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.PrevPosition[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.PrevPosition[2]))
	binary.LittleEndian.PutUint32(buf[28:32], 0) // _pad1
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.TransformPosition[0]))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(g.TransformPosition[1]))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(g.TransformPosition[2]))
	binary.LittleEndian.PutUint32(buf[44:48], 0) // _pad2
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.TransformLocalPosition[0]))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(g.TransformLocalPosition[1]))
	binary.LittleEndian.PutUint32(buf[56:60], math.Float32bits(g.TransformLocalPosition[2]))
	binary.LittleEndian.PutUint32(buf[60:64], uint32(g.ParentIndex))
	binary.LittleEndian.PutUint32(buf[64:68], math.Float32bits(g.Damping))
	binary.LittleEndian.PutUint32(buf[68:72], math.Float32bits(g.Elasticity))
	binary.LittleEndian.PutUint32(buf[72:76], math.Float32bits(g.Stiffness))
	binary.LittleEndian.PutUint32(buf[76:80], math.Float32bits(g.Inert))
	binary.LittleEndian.PutUint32(buf[80:84], math.Float32bits(g.Friction))
	binary.LittleEndian.PutUint32(buf[84:88], math.Float32bits(g.Radius))
	binary.LittleEndian.PutUint32(buf[88:92], math.Float32bits(g.BoneLength))
	binary.LittleEndian.PutUint32(buf[92:96], uint32(g.IsColliding))
	return buf
}

// Unmarshal deserializes a GPUParticle from a byte buffer read back from the GPU.
//
// Parameters:
//   - buf: at least 96 bytes in the layout produced by Marshal
//
// Returns:
//   - error: an error if the buffer is too short
func (g *GPUParticle) Unmarshal(buf []byte) error {
	if len(buf) < 96 {
		return fmt.Errorf("chain: GPUParticle buffer too short: %d bytes", len(buf))
	}
	g.Position[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
	g.Position[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
	g.Position[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12]))
	g.PrevPosition[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[16:20]))
	g.PrevPosition[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[20:24]))
	g.PrevPosition[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[24:28]))
	g.TransformPosition[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[32:36]))
	g.TransformPosition[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[36:40]))
	g.TransformPosition[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[40:44]))
	g.TransformLocalPosition[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[48:52]))
	g.TransformLocalPosition[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[52:56]))
	g.TransformLocalPosition[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[56:60]))
	g.ParentIndex = int32(binary.LittleEndian.Uint32(buf[60:64]))
	g.Damping = math.Float32frombits(binary.LittleEndian.Uint32(buf[64:68]))
	g.Elasticity = math.Float32frombits(binary.LittleEndian.Uint32(buf[68:72]))
	g.Stiffness = math.Float32frombits(binary.LittleEndian.Uint32(buf[72:76]))
	g.Inert = math.Float32frombits(binary.LittleEndian.Uint32(buf[76:80]))
	g.Friction = math.Float32frombits(binary.LittleEndian.Uint32(buf[80:84]))
	g.Radius = math.Float32frombits(binary.LittleEndian.Uint32(buf[84:88]))
	g.BoneLength = math.Float32frombits(binary.LittleEndian.Uint32(buf[88:92]))
	g.IsColliding = int32(binary.LittleEndian.Uint32(buf[92:96]))
	return nil
}

// GPUChainSource is the canonical WGSL definition of the Chain struct.
// Matches GPUChain layout exactly (112 bytes, std430 aligned).
//
//go:embed assets/chain.wgsl
var GPUChainSource string

// GPUChain is the GPU-aligned descriptor of one chain's particle range and
// rest-pose bookkeeping. Matches the WGSL Chain struct layout exactly (see
// GPUChainSource). Size: 112 bytes (28 words). BoneTotalLength sits at word 10
// so the matrix starts on a 16-byte boundary.
type GPUChain struct {
	LocalGravity     [3]float32  // offset 0: gravity rotated into root-bone space at build time
	_pad0            float32     // offset 12: vec3 pad
	RestGravity      [3]float32  // offset 16: world gravity expressed by the current rest pose
	_pad1            float32     // offset 28: vec3 pad
	ParticleStart    int32       // offset 32: first particle index in the particle buffer
	ParticleCount    int32       // offset 36: number of particles including the root
	BoneTotalLength  float32     // offset 40: longest root-to-tip rest distance
	_pad2            float32     // offset 44: align mat4 to 16
	RootWorldToLocal [16]float32 // offset 48, size 64 (mat4x4<f32>, column-major)
}

// Size returns the size of the GPUChain struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUChain) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUChain struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload.
func (g *GPUChain) Marshal() []byte {
	buf := make([]byte, 112)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.LocalGravity[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.LocalGravity[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.LocalGravity[2]))
	binary.LittleEndian.PutUint32(buf[12:16], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.RestGravity[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.RestGravity[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.RestGravity[2]))
	binary.LittleEndian.PutUint32(buf[28:32], 0) // _pad1
	binary.LittleEndian.PutUint32(buf[32:36], uint32(g.ParticleStart))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(g.ParticleCount))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(g.BoneTotalLength))
	binary.LittleEndian.PutUint32(buf[44:48], 0) // _pad2
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[48+i*4:52+i*4], math.Float32bits(g.RootWorldToLocal[i]))
	}
	return buf
}

// GPUChainParamsSource is the canonical WGSL definition of the ChainParams struct.
// Matches GPUChainParams layout exactly (80 bytes, std430 aligned).
//
//go:embed assets/chain_params.wgsl
var GPUChainParamsSource string

// GPUChainParams is the GPU-aligned per-chain copy of the owning component's
// step scalars. Carrying them per chain lets one merged dispatch serve many
// components with different parameters. Matches the WGSL ChainParams struct
// layout exactly (see GPUChainParamsSource). Size: 80 bytes (20 words).
type GPUChainParams struct {
	Force         [3]float32 // offset 0: constant external force
	_pad0         float32    // offset 12: vec3 pad
	Gravity       [3]float32 // offset 16: world gravity
	_pad1         float32    // offset 28: vec3 pad
	ObjectMove    [3]float32 // offset 32: chain base movement this tick, pre-scaled by inertia settings
	_pad2         float32    // offset 44: vec3 pad
	DeltaTime     float32    // offset 48: substep duration in seconds
	ObjectScale   float32    // offset 52: uniform scale applied to forces
	Weight        float32    // offset 56: write-back blend factor
	TimeVar       float32    // offset 60: elasticity time normalization
	FreezeAxis    int32      // offset 64: 0 none, 1 X, 2 Y, 3 Z
	LoopCount     int32      // offset 68: substeps per dispatch
	ColliderStart int32      // offset 72: first collider index owned by this chain's component
	ColliderCount int32      // offset 76: number of colliders owned by this chain's component
}

// Size returns the size of the GPUChainParams struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUChainParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUChainParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUChainParams) Marshal() []byte {
	buf := make([]byte, 80)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Force[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Force[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Force[2]))
	binary.LittleEndian.PutUint32(buf[12:16], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Gravity[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Gravity[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Gravity[2]))
	binary.LittleEndian.PutUint32(buf[28:32], 0) // _pad1
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.ObjectMove[0]))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(g.ObjectMove[1]))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(g.ObjectMove[2]))
	binary.LittleEndian.PutUint32(buf[44:48], 0) // _pad2
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.DeltaTime))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(g.ObjectScale))
	binary.LittleEndian.PutUint32(buf[56:60], math.Float32bits(g.Weight))
	binary.LittleEndian.PutUint32(buf[60:64], math.Float32bits(g.TimeVar))
	binary.LittleEndian.PutUint32(buf[64:68], uint32(g.FreezeAxis))
	binary.LittleEndian.PutUint32(buf[68:72], uint32(g.LoopCount))
	binary.LittleEndian.PutUint32(buf[72:76], uint32(g.ColliderStart))
	binary.LittleEndian.PutUint32(buf[76:80], uint32(g.ColliderCount))
	return buf
}

// GPUTransformSource is the canonical WGSL definition of the Transform struct.
// Matches GPUTransform layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/transform.wgsl
var GPUTransformSource string

// GPUTransform is the GPU-aligned per-particle write-back matrix: world space
// into the backing bone's parent space. Identity for chain roots and synthetic
// end particles. Matches the WGSL Transform struct layout exactly (see
// GPUTransformSource). Size: 64 bytes.
type GPUTransform struct {
	WorldToParentLocal [16]float32 // offset 0, size 64 (mat4x4<f32>, column-major)
}

// Size returns the size of the GPUTransform struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUTransform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTransform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUTransform) Marshal() []byte {
	buf := make([]byte, 64)
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.WorldToParentLocal[i]))
	}
	return buf
}

// GPUColliderSource is the canonical WGSL definition of the Collider struct.
// Matches GPUCollider layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/collider.wgsl
var GPUColliderSource string

// GPUCollider is the GPU-aligned representation of one collision primitive.
// Radius rides in the center vector's w slot. Matches the WGSL Collider
// struct layout exactly (see GPUColliderSource). Size: 48 bytes (12 words).
type GPUCollider struct {
	Center [3]float32 // offset 0: sphere/box center, capsule segment start, or plane anchor
	Radius float32    // offset 12: sphere/capsule radius (vec4 w slot)
	Params [4]float32 // offset 16: capsule end / box half extents / plane normal+d
	Type   int32      // offset 32: 0 sphere, 1 capsule, 2 box, 3 plane
	_pad0  int32      // offset 36
	_pad1  int32      // offset 40
	_pad2  int32      // offset 44
}

// Size returns the size of the GPUCollider struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUCollider) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCollider struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUCollider) Marshal() []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Center[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Center[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Center[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Radius))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Params[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Params[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Params[2]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Params[3]))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(g.Type))
	binary.LittleEndian.PutUint32(buf[36:40], 0) // _pad0
	binary.LittleEndian.PutUint32(buf[40:44], 0) // _pad1
	binary.LittleEndian.PutUint32(buf[44:48], 0) // _pad2
	return buf
}

// GPUGlobalsSource is the canonical WGSL definition of the Globals struct.
// Matches GPUGlobals layout exactly (16 bytes, uniform aligned).
//
//go:embed assets/globals.wgsl
var GPUGlobalsSource string

// GPUGlobals is the per-dispatch uniform holding the merged buffer counts.
// The kernel's barrier loops are bounded by these uniform values, with
// per-chain counts only gating the guarded work, so the barriers stay in
// uniform control flow. Matches the WGSL Globals struct layout exactly (see
// GPUGlobalsSource). Size: 16 bytes (4 × u32).
type GPUGlobals struct {
	ChainCount    uint32 // offset 0: workgroups with work to do
	ParticleCount uint32 // offset 4: step-loop bound, at least the largest chain's particle count
	ColliderCount uint32 // offset 8: total merged colliders
	MaxLoopCount  uint32 // offset 12: max LoopCount across merged chains (substep-loop bound)
}

// Size returns the size of the GPUGlobals struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUGlobals) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUGlobals struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUGlobals) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.ChainCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.ParticleCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.ColliderCount)
	binary.LittleEndian.PutUint32(buf[12:16], g.MaxLoopCount)
	return buf
}

// ToGPU converts the particle to its GPU record.
func (p *Particle) ToGPU() GPUParticle {
	colliding := int32(0)
	if p.IsColliding {
		colliding = 1
	}
	return GPUParticle{
		Position:               [3]float32{p.Position.X, p.Position.Y, p.Position.Z},
		PrevPosition:           [3]float32{p.PrevPosition.X, p.PrevPosition.Y, p.PrevPosition.Z},
		TransformPosition:      [3]float32{p.TransformPosition.X, p.TransformPosition.Y, p.TransformPosition.Z},
		TransformLocalPosition: [3]float32{p.TransformLocalPosition.X, p.TransformLocalPosition.Y, p.TransformLocalPosition.Z},
		ParentIndex:            p.ParentIndex,
		Damping:                p.Damping,
		Elasticity:             p.Elasticity,
		Stiffness:              p.Stiffness,
		Inert:                  p.Inert,
		Friction:               p.Friction,
		Radius:                 p.Radius,
		BoneLength:             p.BoneLength,
		IsColliding:            colliding,
	}
}

// ApplyGPU copies the fields the kernel mutates back into the particle:
// simulated positions, the blended local output and the collision flag.
// Build-time constants (indices, parameters, bone length) are left alone.
func (p *Particle) ApplyGPU(g *GPUParticle) {
	p.Position = common.Vec3{X: g.Position[0], Y: g.Position[1], Z: g.Position[2]}
	p.PrevPosition = common.Vec3{X: g.PrevPosition[0], Y: g.PrevPosition[1], Z: g.PrevPosition[2]}
	p.TransformLocalPosition = common.Vec3{
		X: g.TransformLocalPosition[0],
		Y: g.TransformLocalPosition[1],
		Z: g.TransformLocalPosition[2],
	}
	p.IsColliding = g.IsColliding != 0
}

// ToGPU converts the chain descriptor to its GPU record.
func (t *Tree) ToGPU() GPUChain {
	return GPUChain{
		LocalGravity:     [3]float32{t.LocalGravity.X, t.LocalGravity.Y, t.LocalGravity.Z},
		RestGravity:      [3]float32{t.RestGravity.X, t.RestGravity.Y, t.RestGravity.Z},
		ParticleStart:    t.ParticleStart,
		ParticleCount:    t.ParticleCount,
		BoneTotalLength:  t.BoneTotalLength,
		RootWorldToLocal: [16]float32(t.RootWorldToLocal),
	}
}

// ToGPU converts the collider to its GPU record.
func (c *Collider) ToGPU() GPUCollider {
	return GPUCollider{
		Center: [3]float32{c.Center.X, c.Center.Y, c.Center.Z},
		Radius: c.Radius,
		Params: c.Params,
		Type:   int32(c.Type),
	}
}

// ToGPU converts step parameters to their per-chain GPU record. ColliderStart
// and ColliderCount are left zero; the dispatcher fills them in after merging.
func (p *StepParams) ToGPU() GPUChainParams {
	return GPUChainParams{
		Force:       [3]float32{p.Force.X, p.Force.Y, p.Force.Z},
		Gravity:     [3]float32{p.Gravity.X, p.Gravity.Y, p.Gravity.Z},
		ObjectMove:  [3]float32{p.ObjectMove.X, p.ObjectMove.Y, p.ObjectMove.Z},
		DeltaTime:   p.DeltaTime,
		ObjectScale: p.ObjectScale,
		Weight:      p.Weight,
		TimeVar:     p.TimeVar,
		FreezeAxis:  int32(p.FreezeAxis),
		LoopCount:   p.LoopCount,
	}
}

// ParticlesToGPU converts a particle slice into GPU records, reusing dst when
// it has capacity.
func ParticlesToGPU(src []Particle, dst []GPUParticle) []GPUParticle {
	dst = dst[:0]
	for i := range src {
		dst = append(dst, src[i].ToGPU())
	}
	return dst
}

// TreesToGPU converts chain descriptors into GPU records, reusing dst when it
// has capacity.
func TreesToGPU(src []Tree, dst []GPUChain) []GPUChain {
	dst = dst[:0]
	for i := range src {
		dst = append(dst, src[i].ToGPU())
	}
	return dst
}

// TransformsToGPU converts write-back matrices into GPU records, reusing dst
// when it has capacity.
func TransformsToGPU(src []common.Mat4, dst []GPUTransform) []GPUTransform {
	dst = dst[:0]
	for i := range src {
		dst = append(dst, GPUTransform{WorldToParentLocal: [16]float32(src[i])})
	}
	return dst
}

// CollidersToGPU converts colliders into GPU records, reusing dst when it has
// capacity.
func CollidersToGPU(src []Collider, dst []GPUCollider) []GPUCollider {
	dst = dst[:0]
	for i := range src {
		dst = append(dst, src[i].ToGPU())
	}
	return dst
}
