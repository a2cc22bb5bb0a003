// Package chain implements the secondary-motion particle simulation: tree
// building from a bone hierarchy, the verlet step function shared by the CPU
// and GPU paths, collision primitives, and the GPU buffer records consumed by
// the compute kernel.
package chain

import "github.com/Carmen-Shannon/oxy-chain/common"

// FreezeAxis locks one world axis of every particle, restricting motion to a
// plane. The numeric values are shared with the compute kernel.
type FreezeAxis int32

const (
	FreezeNone FreezeAxis = 0
	FreezeX    FreezeAxis = 1
	FreezeY    FreezeAxis = 2
	FreezeZ    FreezeAxis = 3
)

// Particle is the per-bone simulation state. Position/PrevPosition persist
// across frames to retain velocity; TransformPosition/TransformLocalPosition
// are refreshed from the skeleton before every step, and
// TransformLocalPosition doubles as the output slot for the weight-blended
// local translation after the step.
type Particle struct {
	Position               common.Vec3
	PrevPosition           common.Vec3
	TransformPosition      common.Vec3
	TransformLocalPosition common.Vec3

	// EndOffsetLocal is the synthetic end particle's rest position in its
	// leaf bone's local space, captured at build time. The component uses it
	// to re-derive TransformPosition each tick as the leaf animates. Zero for
	// particles backed by a real bone.
	EndOffsetLocal common.Vec3

	// ParentIndex is the index of the parent particle within the owning
	// component's particle slice, or -1 for a chain root. Tree order
	// guarantees a parent always precedes its children.
	ParentIndex int32

	// BoneIndex is the index of the backing bone in the skeleton, or -1 for a
	// synthetic end particle (which has no backing transform).
	BoneIndex int32

	Damping    float32
	Elasticity float32
	Stiffness  float32
	Inert      float32
	Friction   float32
	Radius     float32

	// BoneLength is the rest distance to the parent particle, fixed at build
	// time. Zero for roots.
	BoneLength float32

	IsColliding bool
}

// Tree is a chain descriptor: it owns a contiguous, parent-before-child
// ordered range of the component's particle slice.
type Tree struct {
	// LocalGravity is the world gravity rotated into root-bone-local space at
	// build time; RestGravity is it rotated back by the root's current
	// orientation each tick, giving the gravity direction the rest pose
	// already expresses.
	LocalGravity common.Vec3
	RestGravity  common.Vec3

	// ParticleStart/ParticleCount locate the chain's slice of the particle
	// buffer.
	ParticleStart int32
	ParticleCount int32

	// RootWorldToLocal is the inverse of the chain root bone's world matrix,
	// refreshed each tick.
	RootWorldToLocal common.Mat4

	// BoneTotalLength is the summed rest length of the chain, fixed at build
	// time.
	BoneTotalLength float32

	// RootBone is the skeleton index of the chain's root bone.
	RootBone int32
}

// StepParams are the per-component scalars consumed by one step. They apply
// uniformly to every chain a component owns; the batched dispatcher carries a
// copy per chain so one merged dispatch can serve many components.
type StepParams struct {
	// DeltaTime is the per-substep time delta in seconds.
	DeltaTime float32
	// ObjectScale scales forces by the component's world scale.
	ObjectScale float32
	// Weight blends the written-back local translation between the original
	// pose (0) and the fully simulated result (1).
	Weight float32
	// TimeVar is the rate-normalization factor applied to elasticity.
	TimeVar float32

	FreezeAxis FreezeAxis
	// LoopCount is the number of substeps; values below 1 run one substep.
	LoopCount int32

	Force   common.Vec3
	Gravity common.Vec3
	// ObjectMove is the chain base's world movement this tick, already scaled
	// by the component's root inertia and velocity smoothing. Particles pick
	// it up proportionally to their Inert parameter.
	ObjectMove common.Vec3
}

// DefaultStepParams returns neutral step parameters: unit scale and weight,
// one substep, no external forces.
func DefaultStepParams() StepParams {
	return StepParams{
		ObjectScale: 1,
		Weight:      1,
		TimeVar:     1,
		LoopCount:   1,
	}
}
