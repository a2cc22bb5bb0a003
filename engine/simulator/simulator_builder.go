package simulator

import (
	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// SimulatorBuilderOption is a function that configures a simulator during
// construction.
type SimulatorBuilderOption func(*simulator)

// WithSkeleton sets the bone hierarchy the chains are built from and written
// back into.
//
// Parameters:
//   - skel: the skeleton
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithSkeleton(skel *skeleton.Skeleton) SimulatorBuilderOption {
	return func(s *simulator) {
		s.skel = skel
	}
}

// WithRoots sets the chain roots by skeleton index. Each root produces one
// independent chain.
//
// Parameters:
//   - indices: the root bone indices
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithRoots(indices ...int32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.rootIndices = append(s.rootIndices[:0], indices...)
	}
}

// WithRootNames sets the chain roots by bone name, resolved against the
// skeleton when the chains are built.
//
// Parameters:
//   - names: the root bone names
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithRootNames(names ...string) SimulatorBuilderOption {
	return func(s *simulator) {
		s.rootNames = append(s.rootNames[:0], names...)
	}
}

// WithExclusions prunes the subtrees rooted at the given bones from every
// chain.
//
// Parameters:
//   - indices: skeleton indices of subtree roots to prune
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithExclusions(indices ...int32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.exclusions = make(map[int32]bool, len(indices))
		for _, i := range indices {
			s.exclusions[i] = true
		}
	}
}

// WithExclusionNames prunes the subtrees rooted at the named bones from every
// chain. Names that do not resolve against the skeleton are ignored.
//
// Parameters:
//   - names: bone names of subtree roots to prune
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithExclusionNames(names ...string) SimulatorBuilderOption {
	return func(s *simulator) {
		s.exclusionNames = append(s.exclusionNames[:0], names...)
	}
}

// WithEndLength extends each chain past its last real bone by a synthetic
// particle placed endLength along the last bone's direction.
//
// Parameters:
//   - endLength: the extension distance
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithEndLength(endLength float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.endLength = endLength
	}
}

// WithEndOffset offsets each chain's synthetic end particle in the leaf
// bone's local space.
//
// Parameters:
//   - offset: the local-space offset
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithEndOffset(offset common.Vec3) SimulatorBuilderOption {
	return func(s *simulator) {
		s.endOffset = offset
	}
}

// WithDamping sets the damping distribution sampled along each chain.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithDamping(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.damping = c
	}
}

// WithElasticity sets the elasticity distribution sampled along each chain.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithElasticity(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.elasticity = c
	}
}

// WithStiffness sets the stiffness distribution sampled along each chain.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithStiffness(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.stiffness = c
	}
}

// WithInert sets the inertia distribution sampled along each chain. Higher
// values let particles ride the chain base's movement instead of simulating
// it.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithInert(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.inert = c
	}
}

// WithFriction sets the friction distribution sampled along each chain,
// applied as extra damping while a particle is colliding.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithFriction(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.friction = c
	}
}

// WithRadius sets the particle collision radius distribution sampled along
// each chain.
//
// Parameters:
//   - c: the distribution curve
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithRadius(c chain.Curve) SimulatorBuilderOption {
	return func(s *simulator) {
		s.radius = c
	}
}

// WithGravity sets the world gravity applied to every particle. The portion
// already expressed by the rest pose is cancelled during the step.
//
// Parameters:
//   - g: the gravity vector
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithGravity(g common.Vec3) SimulatorBuilderOption {
	return func(s *simulator) {
		s.gravity = g
	}
}

// WithForce sets a constant external force applied to every particle, with no
// rest-pose cancellation.
//
// Parameters:
//   - f: the force vector
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithForce(f common.Vec3) SimulatorBuilderOption {
	return func(s *simulator) {
		s.force = f
	}
}

// WithWeight sets how strongly simulation results blend into the skeleton,
// clamped to [0, 1].
//
// Parameters:
//   - w: the blend weight
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithWeight(w float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.weight = common.Clamp01(w)
	}
}

// WithFreezeAxis locks one world axis of every particle, restricting motion
// to a plane.
//
// Parameters:
//   - axis: the axis to freeze, or chain.FreezeNone
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithFreezeAxis(axis chain.FreezeAxis) SimulatorBuilderOption {
	return func(s *simulator) {
		s.freeze = axis
	}
}

// WithUpdateMode selects how frame deltas are turned into simulation time.
//
// Parameters:
//   - mode: the update mode
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithUpdateMode(mode UpdateMode) SimulatorBuilderOption {
	return func(s *simulator) {
		s.updateMode = mode
	}
}

// WithUpdateRate throttles the simulation to fixed substeps of 1/rate seconds
// regardless of update mode. Zero steps every tick with the frame delta.
//
// Parameters:
//   - rate: substeps per second, or 0 for per-tick stepping
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithUpdateRate(rate float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.updateRate = rate
	}
}

// WithTimeScale sets the initial time dilation applied to frame deltas.
//
// Parameters:
//   - scale: the time scale (1 = real time)
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithTimeScale(scale float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.timeScale = scale
	}
}

// WithDistantDisable toggles distance culling: when the component is farther
// than the distance threshold from the reference point, the step is skipped
// while all state is preserved.
//
// Parameters:
//   - enabled: whether to cull by distance
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithDistantDisable(enabled bool) SimulatorBuilderOption {
	return func(s *simulator) {
		s.distantDisable = enabled
	}
}

// WithDistanceToObject sets the distance-culling threshold.
//
// Parameters:
//   - distance: the threshold in world units
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithDistanceToObject(distance float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.distanceToObject = distance
	}
}

// WithReferenceBone measures the distance cull against the given bone's world
// position. An external viewer position, when also configured, wins.
//
// Parameters:
//   - index: the reference bone's skeleton index
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithReferenceBone(index int32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.referenceBone = index
	}
}

// WithViewerPosition measures the distance cull against an externally
// provided point, typically the camera. The function is called once per
// Update while distance culling is enabled.
//
// Parameters:
//   - fn: returns the current viewer position
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithViewerPosition(fn func() common.Vec3) SimulatorBuilderOption {
	return func(s *simulator) {
		s.viewerPosition = fn
	}
}

// WithRootInertia blends the chain base's movement between fully world-space
// (0, particles keep their world positions as the object moves) and fully
// object-relative (1, movement carries the particles with it via their Inert
// parameter).
//
// Parameters:
//   - inertia: the blend factor
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithRootInertia(inertia float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.rootInertia = inertia
	}
}

// WithVelocitySmoothing low-pass-filters the chain base's movement before it
// reaches the particles, avoiding pops on sudden object motion. Zero passes
// movement straight through; values near one spread it across many ticks.
//
// Parameters:
//   - smoothing: the filter strength in [0, 1]
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithVelocitySmoothing(smoothing float32) SimulatorBuilderOption {
	return func(s *simulator) {
		s.velocitySmoothing = smoothing
	}
}

// WithMultithread lets the CPU backend step independent chains in parallel on
// the given number of pooled workers. Chains are never parallelized
// internally; particle order within a chain stays parent-before-child. Zero
// or negative steps serially.
//
// Parameters:
//   - workers: the worker count
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithMultithread(workers int) SimulatorBuilderOption {
	return func(s *simulator) {
		s.workers = workers
	}
}

// WithColliders sets the initial collider snapshot applied during each step.
//
// Parameters:
//   - colliders: the colliders
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithColliders(colliders ...chain.Collider) SimulatorBuilderOption {
	return func(s *simulator) {
		s.colliders = append(s.colliders[:0], colliders...)
	}
}

// WithDispatcher hands the GPU backend a shared dispatcher instead of letting
// it create a private one. The caller keeps ownership and controls the flush
// cadence when batching is enabled.
//
// Parameters:
//   - d: the shared dispatcher
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithDispatcher(d dispatcher.Dispatcher) SimulatorBuilderOption {
	return func(s *simulator) {
		s.dispatcher = d
	}
}

// WithUseBatchedDispatcher defers dispatch to the shared dispatcher's own
// flush, letting one merged dispatch serve every simulator registered with
// it. The host is responsible for calling Flush once per frame after all
// simulators have updated. Without a shared dispatcher configured this falls
// back to a private, inline-flushed instance.
//
// Parameters:
//   - batched: whether to batch with other simulators
//
// Returns:
//   - SimulatorBuilderOption: the option function
func WithUseBatchedDispatcher(batched bool) SimulatorBuilderOption {
	return func(s *simulator) {
		s.batched = batched
	}
}
