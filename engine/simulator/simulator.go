// Package simulator ties the chain physics to a skeleton: it builds particle
// chains from bones, schedules steps against wall-clock time, feeds the CPU
// step function or a GPU dispatcher, and writes the blended results back into
// the skeleton's local translations each tick.
package simulator

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
	"github.com/Carmen-Shannon/oxy-chain/logger"
	"go.uber.org/zap"
)

// UpdateMode selects how Update's frame delta is turned into simulation time.
type UpdateMode int

const (
	// ModeNormal steps once per Update with the time-scaled frame delta.
	ModeNormal UpdateMode = iota

	// ModeFixedUpdate accumulates frame deltas and steps in fixed substeps of
	// 1/UpdateRate, carrying the remainder to the next tick.
	ModeFixedUpdate

	// ModeUndilated steps once per Update with the raw frame delta, ignoring
	// the time scale.
	ModeUndilated

	// ModeDefault behaves like ModeNormal.
	ModeDefault
)

// DefaultUpdateRate is the substep frequency used by ModeFixedUpdate when no
// explicit UpdateRate is configured.
const DefaultUpdateRate float32 = 60

// maxCatchUpSteps bounds how many fixed substeps one Update may run when the
// simulation has fallen behind. Beyond it the backlog is dropped.
const maxCatchUpSteps int32 = 3

// simulator is the implementation of the Simulator interface.
type simulator struct {
	mu          sync.Mutex
	backendType SimulatorBackendType
	backend     simulatorBackend

	// Topology configuration, consumed by rebuildLocked.
	skel        *skeleton.Skeleton
	rootIndices    []int32
	rootNames      []string
	exclusions     map[int32]bool
	exclusionNames []string
	endLength      float32
	endOffset      common.Vec3

	damping    chain.Curve
	elasticity chain.Curve
	stiffness  chain.Curve
	inert      chain.Curve
	friction   chain.Curve
	radius     chain.Curve

	gravity common.Vec3
	force   common.Vec3
	weight  float32
	freeze  chain.FreezeAxis

	updateMode UpdateMode
	updateRate float32
	timeScale  float32

	distantDisable   bool
	distanceToObject float32
	referenceBone    int32
	viewerPosition   func() common.Vec3

	rootInertia       float32
	velocitySmoothing float32

	// CPU backend parallelism; 0 steps chains serially.
	workers int

	// GPU backend wiring.
	dispatcher dispatcher.Dispatcher
	batched    bool

	enabled bool

	// Simulation state.
	particles  []chain.Particle
	trees      []chain.Tree
	transforms []common.Mat4
	colliders  []chain.Collider

	topologyDirty bool

	accumulator   float32
	prevObjectPos common.Vec3
	haveObjectPos bool
	smoothedMove  common.Vec3
	distant       bool
}

// Ensure simulator implements Simulator interface.
var _ Simulator = &simulator{}

// Simulator defines the public interface for a chain physics component.
//
// A Simulator owns the particle chains built from one skeleton, advances them
// on its configured backend each scheduled tick, and writes the weight-blended
// local translations back into the skeleton. It is safe for concurrent use,
// though hosts normally drive Update from a single frame loop.
type Simulator interface {
	// Update advances the simulation by one frame delta. Depending on the
	// update mode this runs zero or more substeps: fixed-rate modes accumulate
	// time and may skip a tick entirely or run several catch-up substeps.
	// Disabled, fully unweighted, or distance-culled components keep their
	// physics state but do not step.
	//
	// Parameters:
	//   - deltaTime: elapsed frame time in seconds
	Update(deltaTime float32)

	// Reset re-anchors every particle onto the skeleton's current pose,
	// discarding velocity and accumulated substep time.
	Reset()

	// RebuildChains rebuilds the particle chains from the current skeleton and
	// topology parameters immediately, clearing any pending dirty flag. The
	// existing physics state is discarded.
	//
	// Returns:
	//   - error: if a configured root name or index cannot be resolved
	RebuildChains() error

	// BackendType returns the execution path this simulator steps on.
	//
	// Returns:
	//   - SimulatorBackendType: BackendTypeCPU or BackendTypeGPU
	BackendType() SimulatorBackendType

	// SetTimeScale sets the time dilation applied to frame deltas. All update
	// modes consume it except ModeUndilated.
	//
	// Parameters:
	//   - scale: the time scale (1 = real time)
	SetTimeScale(scale float32)

	// TimeScale returns the current time dilation factor.
	//
	// Returns:
	//   - float32: the time scale
	TimeScale() float32

	// SetWeight sets how strongly simulation results blend into the skeleton,
	// clamped to [0, 1]. Zero suspends stepping entirely; the pose is left
	// untouched.
	//
	// Parameters:
	//   - w: the blend weight
	SetWeight(w float32)

	// Weight returns the current blend weight.
	//
	// Returns:
	//   - float32: the blend weight in [0, 1]
	Weight() float32

	// SetEnabled toggles the component. A disabled component neither steps nor
	// contributes submissions to a shared dispatcher, but keeps its physics
	// state so re-enabling resumes smoothly.
	//
	// Parameters:
	//   - enabled: whether the component should run
	SetEnabled(enabled bool)

	// Enabled reports whether the component is running.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// ParticleCount returns the number of particles across all chains.
	//
	// Returns:
	//   - int: the particle count
	ParticleCount() int

	// ChainCount returns the number of independent chains.
	//
	// Returns:
	//   - int: the chain count
	ChainCount() int

	// SetColliders replaces the collider set applied during each step.
	//
	// Parameters:
	//   - colliders: the new collider snapshot
	SetColliders(colliders []chain.Collider)

	// AddCollider appends one collider to the active set.
	//
	// Parameters:
	//   - c: the collider to add
	AddCollider(c chain.Collider)

	// RemoveCollider removes the collider at the given index. Out-of-range
	// indices are ignored.
	//
	// Parameters:
	//   - index: the collider's position in the active set
	RemoveCollider(index int)

	// SetSkeleton replaces the bone hierarchy and marks the topology dirty;
	// chains are rebuilt on the next Update.
	//
	// Parameters:
	//   - skel: the new skeleton
	SetSkeleton(skel *skeleton.Skeleton)

	// SetRoots replaces the chain root set by skeleton index and marks the
	// topology dirty.
	//
	// Parameters:
	//   - indices: skeleton indices, one independent chain each
	SetRoots(indices ...int32)

	// SetRootNames replaces the chain root set by bone name and marks the
	// topology dirty. Names resolve against the skeleton at rebuild time.
	//
	// Parameters:
	//   - names: bone names, one independent chain each
	SetRootNames(names ...string)

	// SetExclusions replaces the set of bones whose subtrees are pruned from
	// every chain and marks the topology dirty.
	//
	// Parameters:
	//   - indices: skeleton indices of subtree roots to prune
	SetExclusions(indices ...int32)

	// SetExclusionNames replaces the set of bones, by name, whose subtrees are
	// pruned from every chain and marks the topology dirty. Names that do not
	// resolve against the skeleton are ignored.
	//
	// Parameters:
	//   - names: bone names of subtree roots to prune
	SetExclusionNames(names ...string)

	// SetEndLength sets the synthetic end-bone extension and marks the
	// topology dirty.
	//
	// Parameters:
	//   - v: the extension distance past each leaf bone
	SetEndLength(v float32)

	// SetEndOffset sets the synthetic end-bone offset in leaf-local space and
	// marks the topology dirty.
	//
	// Parameters:
	//   - o: the local-space offset
	SetEndOffset(o common.Vec3)

	// SetDamping replaces the damping curve and marks the topology dirty so
	// the per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetDamping(c chain.Curve)

	// SetElasticity replaces the elasticity curve and marks the topology
	// dirty so the per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetElasticity(c chain.Curve)

	// SetStiffness replaces the stiffness curve and marks the topology dirty
	// so the per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetStiffness(c chain.Curve)

	// SetInert replaces the inertia curve and marks the topology dirty so the
	// per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetInert(c chain.Curve)

	// SetFriction replaces the friction curve and marks the topology dirty so
	// the per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetFriction(c chain.Curve)

	// SetRadius replaces the collision radius curve and marks the topology
	// dirty so the per-particle values are resampled.
	//
	// Parameters:
	//   - c: the curve sampled along each chain
	SetRadius(c chain.Curve)

	// SetGravity replaces the gravity vector and marks the topology dirty,
	// because each chain captures gravity in root-local space when it is
	// built.
	//
	// Parameters:
	//   - g: the gravity vector in object space
	SetGravity(g common.Vec3)

	// SetForce replaces the constant external force applied every step.
	//
	// Parameters:
	//   - f: the force vector in object space
	SetForce(f common.Vec3)

	// SetFreezeAxis sets the plane constraint applied to particle motion.
	//
	// Parameters:
	//   - a: the axis to freeze, or chain.FreezeNone to disable
	SetFreezeAxis(a chain.FreezeAxis)

	// SetUpdateMode sets how Update converts wall time into simulation steps.
	//
	// Parameters:
	//   - m: the update mode
	SetUpdateMode(m UpdateMode)

	// SetUpdateRate sets the fixed stepping rate in steps per second. Any
	// value above zero forces fixed stepping regardless of update mode; zero
	// restores the mode's own behavior.
	//
	// Parameters:
	//   - rate: steps per second, or 0 to defer to the update mode
	SetUpdateRate(rate float32)

	// SetRootInertia sets how strongly object movement carries the particles,
	// from 0 (chains lag in world space) to 1 (chains ride along rigidly).
	//
	// Parameters:
	//   - v: the movement multiplier
	SetRootInertia(v float32)

	// SetVelocitySmoothing sets the low-pass factor applied to tracked object
	// movement, from 0 (no smoothing) to 1 (movement never registers).
	//
	// Parameters:
	//   - v: the smoothing factor
	SetVelocitySmoothing(v float32)

	// SetDistantDisable toggles distance culling against the reference
	// position.
	//
	// Parameters:
	//   - enabled: whether distant chains stop simulating
	SetDistantDisable(enabled bool)

	// SetDistanceToObject sets the distance beyond which simulation is
	// suspended when distance culling is enabled.
	//
	// Parameters:
	//   - d: the cull distance
	SetDistanceToObject(d float32)

	// SetReferenceBone sets the skeleton bone used as the viewer position for
	// distance culling when no position provider is set.
	//
	// Parameters:
	//   - index: the bone index, or a negative value to clear it
	SetReferenceBone(index int32)

	// SetViewerPosition sets a callback providing the viewer position for
	// distance culling. It takes precedence over the reference bone.
	//
	// Parameters:
	//   - fn: the position provider, or nil to clear it
	SetViewerPosition(fn func() common.Vec3)

	// Release frees backend resources. For a GPU backend this unregisters from
	// the dispatcher and releases it if privately owned. The simulator must
	// not be used afterwards.
	Release()
}

// NewSimulator creates a Simulator stepping on the given backend. When a
// skeleton and roots are configured the chains are built immediately; build
// failures are logged and leave the simulator empty until the topology is
// corrected.
//
// Parameters:
//   - backendType: BackendTypeCPU or BackendTypeGPU
//   - options: functional options to further configure the simulator
//
// Returns:
//   - Simulator: the newly created simulator
func NewSimulator(backendType SimulatorBackendType, options ...SimulatorBuilderOption) Simulator {
	defaults := chain.DefaultBuildConfig()
	s := &simulator{
		backendType:      backendType,
		damping:          defaults.Damping,
		elasticity:       defaults.Elasticity,
		stiffness:        defaults.Stiffness,
		inert:            defaults.Inert,
		friction:         defaults.Friction,
		radius:           defaults.Radius,
		weight:           1,
		timeScale:        1,
		rootInertia:      1,
		distanceToObject: 20,
		referenceBone:    -1,
		enabled:          true,
	}
	for _, option := range options {
		option(s)
	}

	// The backend is created after options so dispatcher and worker settings
	// can override the defaults.
	switch backendType {
	case BackendTypeGPU:
		s.backend = newGPUSimulatorBackend(s)
	case BackendTypeCPU:
		fallthrough
	default:
		s.backend = newCPUSimulatorBackend(s)
	}

	if err := s.rebuildLocked(); err != nil {
		logger.Error("chain build failed", zap.Error(err))
	}
	return s
}

func (s *simulator) Update(deltaTime float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.skel == nil || s.backend == nil {
		return
	}
	if s.topologyDirty {
		if err := s.rebuildLocked(); err != nil {
			logger.Error("chain rebuild failed", zap.Error(err))
			return
		}
	}
	if len(s.particles) == 0 {
		return
	}
	if s.checkDistanceLocked() {
		return
	}
	if s.weight <= 0 {
		return
	}

	stepDT, loops, timeVar := s.scheduleLocked(deltaTime)
	if loops == 0 {
		return
	}

	objectMove, objectScale := s.prepareLocked()

	s.backend.step(chain.StepParams{
		DeltaTime:   stepDT,
		ObjectScale: objectScale,
		Weight:      s.weight,
		TimeVar:     timeVar,
		FreezeAxis:  s.freeze,
		LoopCount:   loops,
		Force:       s.force,
		Gravity:     s.gravity,
		ObjectMove:  objectMove,
	})
}

func (s *simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skel == nil || len(s.particles) == 0 {
		return
	}
	s.reanchorLocked()
}

func (s *simulator) RebuildChains() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked()
}

func (s *simulator) BackendType() SimulatorBackendType {
	return s.backendType
}

func (s *simulator) SetTimeScale(scale float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeScale = scale
}

func (s *simulator) TimeScale() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeScale
}

func (s *simulator) SetWeight(w float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weight = common.Clamp01(w)
}

func (s *simulator) Weight() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

func (s *simulator) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *simulator) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *simulator) ParticleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.particles)
}

func (s *simulator) ChainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trees)
}

func (s *simulator) SetColliders(colliders []chain.Collider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colliders = append(s.colliders[:0], colliders...)
}

func (s *simulator) AddCollider(c chain.Collider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colliders = append(s.colliders, c)
}

func (s *simulator) RemoveCollider(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.colliders) {
		return
	}
	s.colliders = append(s.colliders[:index], s.colliders[index+1:]...)
}

func (s *simulator) SetSkeleton(skel *skeleton.Skeleton) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skel = skel
	s.topologyDirty = true
}

func (s *simulator) SetRoots(indices ...int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootIndices = append(s.rootIndices[:0], indices...)
	s.topologyDirty = true
}

func (s *simulator) SetRootNames(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootNames = append(s.rootNames[:0], names...)
	s.topologyDirty = true
}

func (s *simulator) SetExclusions(indices ...int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusions = make(map[int32]bool, len(indices))
	for _, i := range indices {
		s.exclusions[i] = true
	}
	s.topologyDirty = true
}

func (s *simulator) SetExclusionNames(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusionNames = append([]string(nil), names...)
	s.topologyDirty = true
}

func (s *simulator) SetEndLength(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLength = v
	s.topologyDirty = true
}

func (s *simulator) SetEndOffset(o common.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endOffset = o
	s.topologyDirty = true
}

func (s *simulator) SetDamping(c chain.Curve) {
	s.setCurve(&s.damping, c)
}

func (s *simulator) SetElasticity(c chain.Curve) {
	s.setCurve(&s.elasticity, c)
}

func (s *simulator) SetStiffness(c chain.Curve) {
	s.setCurve(&s.stiffness, c)
}

func (s *simulator) SetInert(c chain.Curve) {
	s.setCurve(&s.inert, c)
}

func (s *simulator) SetFriction(c chain.Curve) {
	s.setCurve(&s.friction, c)
}

func (s *simulator) SetRadius(c chain.Curve) {
	s.setCurve(&s.radius, c)
}

func (s *simulator) setCurve(dst *chain.Curve, c chain.Curve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*dst = c
	s.topologyDirty = true
}

func (s *simulator) SetGravity(g common.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gravity = g
	// Rebuild so the chains recapture gravity in root-local space.
	s.topologyDirty = true
}

func (s *simulator) SetForce(f common.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force = f
}

func (s *simulator) SetFreezeAxis(a chain.FreezeAxis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeze = a
}

func (s *simulator) SetUpdateMode(m UpdateMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateMode = m
	s.accumulator = 0
}

func (s *simulator) SetUpdateRate(rate float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateRate = rate
	s.accumulator = 0
}

func (s *simulator) SetRootInertia(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootInertia = v
}

func (s *simulator) SetVelocitySmoothing(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.velocitySmoothing = v
}

func (s *simulator) SetDistantDisable(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distantDisable = enabled
}

func (s *simulator) SetDistanceToObject(d float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distanceToObject = d
}

func (s *simulator) SetReferenceBone(index int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenceBone = index
}

func (s *simulator) SetViewerPosition(fn func() common.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewerPosition = fn
}

func (s *simulator) Release() {
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()
	// The backend talks to external services during teardown, so the
	// simulator mutex must not be held here.
	if backend != nil {
		backend.release()
	}
}

// rebuildLocked resolves the configured roots and rebuilds all chains from the
// skeleton's current pose, replacing the physics state and clearing the dirty
// flag.
func (s *simulator) rebuildLocked() error {
	s.topologyDirty = false
	s.particles = nil
	s.trees = nil
	s.transforms = nil
	s.resetMotionLocked()

	if s.skel == nil {
		return nil
	}

	roots := make([]int32, 0, len(s.rootIndices)+len(s.rootNames))
	roots = append(roots, s.rootIndices...)
	for _, name := range s.rootNames {
		i := s.skel.Find(name)
		if i < 0 {
			return fmt.Errorf("simulator: root bone %q not found", name)
		}
		roots = append(roots, i)
	}

	exclusions := s.exclusions
	if len(s.exclusionNames) > 0 {
		exclusions = make(map[int32]bool, len(s.exclusions)+len(s.exclusionNames))
		for i := range s.exclusions {
			exclusions[i] = true
		}
		// Unresolved names are skipped, not errors; presets may name bones
		// absent from the current skeleton.
		for _, name := range s.exclusionNames {
			if i := s.skel.Find(name); i >= 0 {
				exclusions[i] = true
			}
		}
	}

	particles, trees, err := chain.Build(s.skel, roots, chain.BuildConfig{
		Exclusions: exclusions,
		EndLength:  s.endLength,
		EndOffset:  s.endOffset,
		Gravity:    s.gravity,
		Damping:    s.damping,
		Elasticity: s.elasticity,
		Stiffness:  s.stiffness,
		Inert:      s.inert,
		Friction:   s.friction,
		Radius:     s.radius,
	})
	if err != nil {
		return err
	}

	s.particles = particles
	s.trees = trees
	s.transforms = make([]common.Mat4, len(particles))
	return nil
}

// checkDistanceLocked reports whether this tick is culled by distance. State
// is preserved while culled; on the far-to-near transition the particles are
// re-anchored so the chain does not whip across everything it never
// simulated.
func (s *simulator) checkDistanceLocked() bool {
	if !s.distantDisable {
		return false
	}
	ref, ok := s.referencePositionLocked()
	if !ok {
		return false
	}
	if s.skel.WorldPosition(0).Distance(ref) > s.distanceToObject {
		s.distant = true
		return true
	}
	if s.distant {
		s.reanchorLocked()
	}
	return false
}

// referencePositionLocked resolves the distance-culling reference point. An
// external provider wins over a reference bone; with neither configured the
// cull is inert.
func (s *simulator) referencePositionLocked() (common.Vec3, bool) {
	if s.viewerPosition != nil {
		return s.viewerPosition(), true
	}
	if s.referenceBone >= 0 && int(s.referenceBone) < s.skel.BoneCount() {
		return s.skel.WorldPosition(s.referenceBone), true
	}
	return common.Vec3{}, false
}

// scheduleLocked turns one frame delta into substep parameters. A zero loop
// count means nothing runs this tick.
func (s *simulator) scheduleLocked(deltaTime float32) (stepDT float32, loops int32, timeVar float32) {
	dt := deltaTime
	if s.updateMode != ModeUndilated {
		dt *= s.timeScale
	}

	fixed := s.updateMode == ModeFixedUpdate || s.updateRate > 0
	if !fixed {
		return dt, 1, dt * 60
	}

	rate := s.updateRate
	if rate <= 0 {
		rate = DefaultUpdateRate
	}
	h := 1 / rate
	s.accumulator += dt
	loops = int32(s.accumulator / h)
	if loops > maxCatchUpSteps {
		// Too far behind to catch up; drop the backlog instead of spiraling.
		loops = maxCatchUpSteps
		s.accumulator = 0
	} else {
		s.accumulator -= float32(loops) * h
	}
	return h, loops, 1
}

// prepareLocked refreshes the rest state from the skeleton and advances the
// chain-base movement tracking, returning this tick's ObjectMove and the
// component's world scale.
func (s *simulator) prepareLocked() (common.Vec3, float32) {
	s.refreshRestStateLocked()

	objectWorld := s.skel.WorldMatrix(0)
	objectPos := objectWorld.Translation()
	var move common.Vec3
	if s.haveObjectPos {
		move = objectPos.Sub(s.prevObjectPos)
	}
	s.prevObjectPos = objectPos
	s.haveObjectPos = true

	// One-pole low-pass: smoothing 0 passes movement straight through, values
	// near 1 spread it across many ticks.
	alpha := 1 - common.Clamp01(s.velocitySmoothing)
	s.smoothedMove = s.smoothedMove.Add(move.Sub(s.smoothedMove).Scale(alpha))

	scale := objectWorld.TransformDirection(common.Vec3{X: 1}).Length()
	return s.smoothedMove.Scale(s.rootInertia), scale
}

// refreshRestStateLocked pulls the current animated pose out of the skeleton:
// per-particle rest positions and locals, per-tree gravity bookkeeping, and
// the world-to-parent-local matrices the write-back blends through.
func (s *simulator) refreshRestStateLocked() {
	s.skel.UpdateWorldTransforms()

	for i := range s.particles {
		pt := &s.particles[i]
		if pt.BoneIndex >= 0 {
			pt.TransformPosition = s.skel.WorldPosition(pt.BoneIndex)
			pt.TransformLocalPosition = s.skel.Bone(pt.BoneIndex).Local.Translation
		} else {
			// Synthetic end particle: carried by its leaf bone.
			leaf := s.particles[pt.ParentIndex].BoneIndex
			pt.TransformPosition = s.skel.WorldMatrix(leaf).TransformPoint(pt.EndOffsetLocal)
			pt.TransformLocalPosition = pt.EndOffsetLocal
		}

		if pt.ParentIndex >= 0 {
			parentBone := s.particles[pt.ParentIndex].BoneIndex
			if inv, ok := s.skel.WorldMatrix(parentBone).Invert(); ok {
				s.transforms[i] = inv
			} else {
				s.transforms[i] = common.Mat4Identity()
			}
		} else {
			s.transforms[i] = common.Mat4Identity()
		}
	}

	for t := range s.trees {
		tree := &s.trees[t]
		rootWorld := s.skel.WorldMatrix(tree.RootBone)
		if inv, ok := rootWorld.Invert(); ok {
			tree.RootWorldToLocal = inv
		}
		tree.RestGravity = rootWorld.TransformDirection(tree.LocalGravity)
	}
}

// reanchorLocked snaps every particle onto the skeleton's current pose with
// zero velocity and clears the movement tracking.
func (s *simulator) reanchorLocked() {
	s.refreshRestStateLocked()
	for i := range s.particles {
		pt := &s.particles[i]
		pt.Position = pt.TransformPosition
		pt.PrevPosition = pt.TransformPosition
		pt.IsColliding = false
	}
	s.resetMotionLocked()
}

// resetMotionLocked clears the scheduling and movement-tracking state.
func (s *simulator) resetMotionLocked() {
	s.accumulator = 0
	s.haveObjectPos = false
	s.smoothedMove = common.Vec3{}
	s.distant = false
}

// writeBackLocked pushes the blended local translations into the skeleton.
// Chain roots are anchors and synthetic ends have no backing bone; neither is
// written.
func (s *simulator) writeBackLocked() {
	for i := range s.particles {
		pt := &s.particles[i]
		if pt.ParentIndex < 0 || pt.BoneIndex < 0 {
			continue
		}
		s.skel.SetLocalTranslation(pt.BoneIndex, pt.TransformLocalPosition)
	}
}
