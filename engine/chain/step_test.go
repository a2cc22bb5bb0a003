package chain

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-chain/common"
)

// twoParticleChain returns a root at the origin with one child hanging 0.1
// below it, at rest, plus the tree descriptor. RestGravity is zero so applied
// gravity is not cancelled by the rest pose.
func twoParticleChain() ([]Particle, []Tree) {
	particles := []Particle{
		{
			Position:          common.Vec3{},
			PrevPosition:      common.Vec3{},
			TransformPosition: common.Vec3{},
			ParentIndex:       -1,
			BoneIndex:         0,
		},
		{
			Position:               common.Vec3{Y: -0.1},
			PrevPosition:           common.Vec3{Y: -0.1},
			TransformPosition:      common.Vec3{Y: -0.1},
			TransformLocalPosition: common.Vec3{Y: -0.1},
			ParentIndex:            0,
			BoneIndex:              1,
			BoneLength:             0.1,
		},
	}
	trees := []Tree{{
		ParticleStart:    0,
		ParticleCount:    2,
		RootWorldToLocal: common.Mat4Identity(),
		BoneTotalLength:  0.1,
		RootBone:         0,
	}}
	return particles, trees
}

func copyParticles(src []Particle) []Particle {
	return append([]Particle(nil), src...)
}

// TestStepRootAnchoring tests that the root particle snaps to its transform
// position every step and keeps its prior position as velocity history.
func TestStepRootAnchoring(t *testing.T) {
	particles, trees := twoParticleChain()
	particles[0].TransformPosition = common.Vec3{X: 0.3, Y: 0.1}

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	Step(particles, trees, nil, nil, p)

	if got, want := particles[0].Position, (common.Vec3{X: 0.3, Y: 0.1}); got != want {
		t.Errorf("root Position = %+v, want %+v", got, want)
	}
	if got := particles[0].PrevPosition; got != (common.Vec3{}) {
		t.Errorf("root PrevPosition = %+v, want zero (pre-step position)", got)
	}
}

// TestStepGravityOneStep tests one verlet step against hand-computed values:
// unit gravity along +X for one second swings the child onto the rest-length
// sphere at (0.0995, -0.00995, 0).
func TestStepGravityOneStep(t *testing.T) {
	particles, trees := twoParticleChain()

	p := DefaultStepParams()
	p.DeltaTime = 1
	p.Gravity = common.Vec3{X: 1}
	Step(particles, trees, nil, nil, p)

	want := common.Vec3{X: 0.099503719, Y: -0.0099503719}
	if got := particles[1].Position; !vecNear(got, want, 1e-4) {
		t.Errorf("child Position = %+v, want %+v within 1e-4", got, want)
	}

	// The constraint leaves the child exactly one rest length from the root.
	dist := particles[1].Position.Distance(particles[0].Position)
	if !almostEqual32(dist, 0.1, 1e-5) {
		t.Errorf("child distance to root = %v, want 0.1", dist)
	}
}

// TestStepRestGravityCancellation tests that a chain hanging along gravity at
// its rest pose stays at rest: the rest pose already expresses the gravity.
func TestStepRestGravityCancellation(t *testing.T) {
	particles, trees := twoParticleChain()
	trees[0].RestGravity = common.Vec3{Y: -9.81}

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	p.Gravity = common.Vec3{Y: -9.81}

	for range 10 {
		Step(particles, trees, nil, nil, p)
	}

	if got, want := particles[1].Position, (common.Vec3{Y: -0.1}); !vecNear(got, want, 1e-5) {
		t.Errorf("child drifted to %+v, want %+v", got, want)
	}
}

// TestStepFreezeAxis tests that freezing Y pins the Y coordinate while X and
// Z match the unconstrained run exactly.
func TestStepFreezeAxis(t *testing.T) {
	base, trees := twoParticleChain()

	p := DefaultStepParams()
	p.DeltaTime = 1
	p.Gravity = common.Vec3{X: 1, Y: -1}

	free := copyParticles(base)
	freeTrees := append([]Tree(nil), trees...)
	Step(free, freeTrees, nil, nil, p)

	frozen := copyParticles(base)
	p.FreezeAxis = FreezeY
	Step(frozen, trees, nil, nil, p)

	if got := frozen[1].Position.Y; !almostEqual32(got, -0.1, 1e-6) {
		t.Errorf("frozen Y = %v, want -0.1 (pre-step value)", got)
	}
	if got, want := frozen[1].Position.X, free[1].Position.X; !almostEqual32(got, want, 1e-6) {
		t.Errorf("frozen X = %v, want unconstrained X %v", got, want)
	}
	if got, want := frozen[1].Position.Z, free[1].Position.Z; !almostEqual32(got, want, 1e-6) {
		t.Errorf("frozen Z = %v, want unconstrained Z %v", got, want)
	}
}

// TestStepSubstepEquivalence tests that LoopCount=2 in one call matches two
// sequential single-substep calls.
func TestStepSubstepEquivalence(t *testing.T) {
	base, trees := twoParticleChain()

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 120.0
	p.Gravity = common.Vec3{X: 2, Y: -9.81}

	twice := copyParticles(base)
	twiceTrees := append([]Tree(nil), trees...)
	Step(twice, twiceTrees, nil, nil, p)
	Step(twice, twiceTrees, nil, nil, p)

	looped := copyParticles(base)
	p.LoopCount = 2
	Step(looped, trees, nil, nil, p)

	if !vecNear(looped[1].Position, twice[1].Position, 1e-6) {
		t.Errorf("looped Position = %+v, sequential = %+v", looped[1].Position, twice[1].Position)
	}
	if !vecNear(looped[1].PrevPosition, twice[1].PrevPosition, 1e-6) {
		t.Errorf("looped PrevPosition = %+v, sequential = %+v", looped[1].PrevPosition, twice[1].PrevPosition)
	}
}

// TestStepFrictionDampsCollidingParticles tests that a particle flagged as
// colliding bleeds extra velocity through its friction parameter.
func TestStepFrictionDampsCollidingParticles(t *testing.T) {
	run := func(colliding bool) common.Vec3 {
		particles, trees := twoParticleChain()
		particles[1].PrevPosition = common.Vec3{X: -0.01, Y: -0.1}
		particles[1].Damping = 0.2
		particles[1].Friction = 0.5
		particles[1].IsColliding = colliding

		p := DefaultStepParams()
		p.DeltaTime = 1.0 / 60.0
		Step(particles, trees, nil, nil, p)
		return particles[1].Position
	}

	free := run(false)
	rubbing := run(true)
	if rubbing.X >= free.X {
		t.Errorf("colliding particle moved %v along X, free particle %v; want less", rubbing.X, free.X)
	}
}

// TestStepClearsCollisionFlag tests that the collision flag resets when no
// collider touches the particle this step.
func TestStepClearsCollisionFlag(t *testing.T) {
	particles, trees := twoParticleChain()
	particles[1].IsColliding = true

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	Step(particles, trees, nil, nil, p)

	if particles[1].IsColliding {
		t.Error("IsColliding still set after a collision-free step")
	}
}

// TestStepInertia tests the base-motion supplement: Inert=0 keeps the chain
// pinned in world space, Inert=1 carries the full base movement into both the
// prediction and the stored previous position.
func TestStepInertia(t *testing.T) {
	move := common.Vec3{X: 0.5}

	pinned, pinnedTrees := twoParticleChain()
	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	p.ObjectMove = move
	Step(pinned, pinnedTrees, nil, nil, p)
	if got, want := pinned[1].Position, (common.Vec3{Y: -0.1}); !vecNear(got, want, 1e-6) {
		t.Errorf("Inert=0 particle moved to %+v, want %+v", got, want)
	}

	carried, carriedTrees := twoParticleChain()
	carried[1].Inert = 1
	Step(carried, carriedTrees, nil, nil, p)
	if got, want := carried[1].PrevPosition, (common.Vec3{X: 0.5, Y: -0.1}); !vecNear(got, want, 1e-6) {
		t.Errorf("Inert=1 PrevPosition = %+v, want pre-step + rmove %+v", got, want)
	}
	if carried[1].Position.X <= 0 {
		t.Errorf("Inert=1 particle X = %v, want > 0 (carried by base movement)", carried[1].Position.X)
	}
}

// TestStepElasticitySnapsToRestTarget tests that full elasticity restores the
// authored offset from the parent in a single step.
func TestStepElasticitySnapsToRestTarget(t *testing.T) {
	particles, trees := twoParticleChain()
	particles[1].Position = common.Vec3{X: 0.05, Y: -0.08}
	particles[1].PrevPosition = particles[1].Position
	particles[1].Elasticity = 1

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	Step(particles, trees, nil, nil, p)

	// Rest target = parent position + authored offset = (0, -0.1, 0).
	if got, want := particles[1].Position, (common.Vec3{Y: -0.1}); !vecNear(got, want, 1e-5) {
		t.Errorf("child Position = %+v, want rest target %+v", got, want)
	}
}

// TestStepStiffnessLimitsDeviation tests that stiffness caps how far the
// particle may sit from its rest target.
func TestStepStiffnessLimitsDeviation(t *testing.T) {
	run := func(stiffness float32) float32 {
		particles, trees := twoParticleChain()
		particles[1].Position = common.Vec3{X: 0.1}
		particles[1].PrevPosition = particles[1].Position
		particles[1].Stiffness = stiffness

		p := DefaultStepParams()
		p.DeltaTime = 1.0 / 60.0
		Step(particles, trees, nil, nil, p)

		restTarget := common.Vec3{Y: -0.1}
		return particles[1].Position.Distance(restTarget)
	}

	loose := run(0)
	stiff := run(0.75)
	if stiff >= loose {
		t.Errorf("stiffness 0.75 deviation %v, stiffness 0 deviation %v; want smaller", stiff, loose)
	}
	// maxLen = restLen * (1 - 0.75) * 2 = 0.05; the final constraint can
	// only shrink the deviation further.
	if stiff > 0.05+1e-4 {
		t.Errorf("stiff deviation = %v, want <= 0.05", stiff)
	}
}

// TestStepColliderPushAndFlag tests that a collider pushes the particle out
// and marks it as colliding.
func TestStepColliderPushAndFlag(t *testing.T) {
	particles, trees := twoParticleChain()
	colliders := []Collider{NewSphere(common.Vec3{Y: -0.1}, 0.05)}

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	Step(particles, trees, nil, colliders, p)

	if !particles[1].IsColliding {
		t.Error("particle inside collider not flagged")
	}
	if dist := particles[1].Position.Distance(common.Vec3{Y: -0.1}); dist < 0.05-1e-3 {
		t.Errorf("particle still %v from collider center, want pushed toward surface", dist)
	}
}

// TestStepWriteBackBlend tests the weight-blended local write-back after the
// final substep.
func TestStepWriteBackBlend(t *testing.T) {
	run := func(weight float32) common.Vec3 {
		particles, trees := twoParticleChain()
		transforms := []common.Mat4{common.Mat4Identity(), common.Mat4Identity()}

		p := DefaultStepParams()
		p.DeltaTime = 1
		p.Gravity = common.Vec3{X: 1}
		p.Weight = weight
		Step(particles, trees, transforms, nil, p)
		return particles[1].TransformLocalPosition
	}

	if got, want := run(0), (common.Vec3{Y: -0.1}); !vecNear(got, want, 1e-6) {
		t.Errorf("weight 0 local = %+v, want untouched %+v", got, want)
	}

	full := run(1)
	want := common.Vec3{X: 0.099503719, Y: -0.0099503719}
	if !vecNear(full, want, 1e-4) {
		t.Errorf("weight 1 local = %+v, want simulated %+v", full, want)
	}

	half := run(0.5)
	mid := common.Vec3{Y: -0.1}.Lerp(want, 0.5)
	if !vecNear(half, mid, 1e-4) {
		t.Errorf("weight 0.5 local = %+v, want midpoint %+v", half, mid)
	}
}

// TestStepChainsAreIndependent tests that chains stepped together match the
// same chains stepped in isolation.
func TestStepChainsAreIndependent(t *testing.T) {
	// Two chains sharing one particle buffer: the second starts at index 2
	// and its parent indices are slice-absolute.
	combined := []Particle{
		{TransformPosition: common.Vec3{}, ParentIndex: -1},
		{Position: common.Vec3{Y: -0.1}, PrevPosition: common.Vec3{Y: -0.1}, TransformPosition: common.Vec3{Y: -0.1}, ParentIndex: 0, BoneLength: 0.1},
		{Position: common.Vec3{X: 1}, PrevPosition: common.Vec3{X: 1}, TransformPosition: common.Vec3{X: 1}, ParentIndex: -1},
		{Position: common.Vec3{X: 1, Y: -0.2}, PrevPosition: common.Vec3{X: 1, Y: -0.2}, TransformPosition: common.Vec3{X: 1, Y: -0.2}, ParentIndex: 2, BoneLength: 0.2},
	}
	trees := []Tree{
		{ParticleStart: 0, ParticleCount: 2, RootWorldToLocal: common.Mat4Identity()},
		{ParticleStart: 2, ParticleCount: 2, RootWorldToLocal: common.Mat4Identity()},
	}

	p := DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	p.Gravity = common.Vec3{X: 0.5}

	together := copyParticles(combined)
	togetherTrees := append([]Tree(nil), trees...)
	Step(together, togetherTrees, nil, nil, p)

	// Step only the second chain on a fresh copy.
	alone := copyParticles(combined)
	aloneTrees := []Tree{trees[1]}
	Step(alone, aloneTrees, nil, nil, p)

	for i := 2; i < 4; i++ {
		if !vecNear(together[i].Position, alone[i].Position, 1e-6) {
			t.Errorf("particle %d: together %+v, alone %+v", i, together[i].Position, alone[i].Position)
		}
	}
}
