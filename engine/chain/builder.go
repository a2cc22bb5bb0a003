package chain

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// BuildConfig carries everything the tree builder needs besides the hierarchy
// itself: pruning, synthetic end-bone parameters, gravity (for the chain's
// rest-gravity bookkeeping), and the per-parameter distribution curves.
type BuildConfig struct {
	// Exclusions prunes whole subtrees: a bone listed here is skipped along
	// with all of its descendants. Indices outside the hierarchy are ignored.
	Exclusions map[int32]bool

	// EndLength extends each chain past its last real bone by a synthetic
	// particle placed EndLength along the last bone's direction. EndOffset
	// adds a constant offset in the last bone's local space. A synthetic
	// particle is appended to a leaf when either is nonzero.
	EndLength float32
	EndOffset common.Vec3

	// Gravity is the component's world gravity, captured per chain as
	// LocalGravity in root-bone space.
	Gravity common.Vec3

	// Distribution curves, sampled at each particle's normalized distance
	// from the root (0 = root, 1 = chain tip). Nil curves sample to zero.
	// Sampled values are clamped: Damping/Elasticity/Stiffness/Inert/Friction
	// to [0,1], Radius to >= 0.
	Damping    Curve
	Elasticity Curve
	Stiffness  Curve
	Inert      Curve
	Friction   Curve
	Radius     Curve
}

// DefaultBuildConfig returns a config with commonly useful stiffness and
// damping and no pruning or end bones.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Damping:    Constant(0.1),
		Elasticity: Constant(0.1),
		Stiffness:  Constant(0.1),
		Inert:      Constant(0),
		Friction:   Constant(0),
		Radius:     Constant(0),
	}
}

// Build walks the hierarchy from each root and produces one chain per root:
// a contiguous, parent-before-child ordered particle range plus its
// descriptor. An empty root list or a fully excluded hierarchy produces zero
// particles and no error.
//
// Parameters:
//   - skel: the bone hierarchy supplying names, parent links and world matrices
//   - roots: skeleton indices of the chain roots, one independent chain each
//   - cfg: pruning, end-bone and distribution parameters
//
// Returns:
//   - []Particle: all chains' particles, concatenated
//   - []Tree: one descriptor per non-empty chain
//   - error: if a root index is out of range
func Build(skel *skeleton.Skeleton, roots []int32, cfg BuildConfig) ([]Particle, []Tree, error) {
	if skel == nil || len(roots) == 0 {
		return nil, nil, nil
	}

	skel.UpdateWorldTransforms()

	var particles []Particle
	var trees []Tree

	for _, root := range roots {
		if root < 0 || int(root) >= skel.BoneCount() {
			return nil, nil, fmt.Errorf("chain: root index %d out of range (%d bones)", root, skel.BoneCount())
		}
		if cfg.Exclusions[root] {
			continue
		}

		start := int32(len(particles))
		particles = appendBoneParticles(particles, skel, root, -1, cfg)
		count := int32(len(particles)) - start
		if count == 0 {
			continue
		}

		total := sampleDistributions(particles[start:start+count], start, cfg)

		rootWorld := skel.WorldMatrix(root)
		worldToLocal, _ := rootWorld.Invert()

		trees = append(trees, Tree{
			LocalGravity:     worldToLocal.TransformDirection(cfg.Gravity),
			RestGravity:      cfg.Gravity,
			ParticleStart:    start,
			ParticleCount:    count,
			RootWorldToLocal: worldToLocal,
			BoneTotalLength:  total,
			RootBone:         root,
		})
	}

	return particles, trees, nil
}

// appendBoneParticles walks bone and its descendants depth-first, appending
// one particle per included bone (plus synthetic ends at leaves) so that a
// parent always precedes its children in the slice.
func appendBoneParticles(particles []Particle, skel *skeleton.Skeleton, bone, parentParticle int32, cfg BuildConfig) []Particle {
	world := skel.WorldMatrix(bone)
	pos := world.Translation()

	pt := Particle{
		Position:               pos,
		PrevPosition:           pos,
		TransformPosition:      pos,
		TransformLocalPosition: skel.Bone(bone).Local.Translation,
		ParentIndex:            parentParticle,
		BoneIndex:              bone,
	}
	if parentParticle >= 0 {
		pt.BoneLength = particles[parentParticle].TransformPosition.Distance(pos)
	}
	particles = append(particles, pt)
	self := int32(len(particles)) - 1

	walked := false
	for _, child := range skel.Children(bone) {
		if cfg.Exclusions[child] {
			continue
		}
		particles = appendBoneParticles(particles, skel, child, self, cfg)
		walked = true
	}

	if !walked && (cfg.EndLength > 0 || !cfg.EndOffset.IsZero()) {
		particles = appendEndParticle(particles, skel, bone, self, cfg)
	}
	return particles
}

// appendEndParticle extends a leaf with a synthetic particle that has no
// backing bone. Its rest position continues the last bone's direction by
// EndLength plus EndOffset in the leaf's local orientation; the offset is
// stored leaf-local so the component can re-derive the world position each
// tick as the leaf animates.
func appendEndParticle(particles []Particle, skel *skeleton.Skeleton, leaf, parentParticle int32, cfg BuildConfig) []Particle {
	leafWorld := skel.WorldMatrix(leaf)
	leafPos := leafWorld.Translation()

	dir := common.Vec3{X: 1}
	if grand := particles[parentParticle].ParentIndex; grand >= 0 {
		d := leafPos.Sub(particles[grand].TransformPosition)
		if n := d.Normalize(); !n.IsZero() {
			dir = n
		}
	} else if d := leafWorld.TransformDirection(common.Vec3{X: 1}).Normalize(); !d.IsZero() {
		// Single-bone chain: no segment to continue, extend along the leaf's
		// local X axis.
		dir = d
	}

	endWorld := leafPos.Add(dir.Scale(cfg.EndLength)).
		Add(leafWorld.TransformDirection(cfg.EndOffset))

	leafToLocal, _ := leafWorld.Invert()
	endLocal := leafToLocal.TransformPoint(endWorld)

	pt := Particle{
		Position:               endWorld,
		PrevPosition:           endWorld,
		TransformPosition:      endWorld,
		TransformLocalPosition: endLocal,
		EndOffsetLocal:         endLocal,
		ParentIndex:            parentParticle,
		BoneIndex:              -1,
		BoneLength:             particles[parentParticle].TransformPosition.Distance(endWorld),
	}
	return append(particles, pt)
}

// sampleDistributions assigns the curve-sampled physical parameters to every
// particle in one chain and returns the chain's total rest length. The sample
// position is the particle's accumulated rest distance from the root divided
// by the chain's longest root-to-tip path.
func sampleDistributions(chain []Particle, start int32, cfg BuildConfig) float32 {
	accum := make([]float32, len(chain))
	var total float32
	for i := 1; i < len(chain); i++ {
		local := chain[i].ParentIndex - start
		accum[i] = accum[local] + chain[i].BoneLength
		if accum[i] > total {
			total = accum[i]
		}
	}

	for i := range chain {
		t := float32(0)
		if total > common.Epsilon {
			t = accum[i] / total
		} else if len(chain) > 1 {
			t = float32(i) / float32(len(chain)-1)
		}
		chain[i].Damping = common.Clamp01(sample(cfg.Damping, t))
		chain[i].Elasticity = common.Clamp01(sample(cfg.Elasticity, t))
		chain[i].Stiffness = common.Clamp01(sample(cfg.Stiffness, t))
		chain[i].Inert = common.Clamp01(sample(cfg.Inert, t))
		chain[i].Friction = common.Clamp01(sample(cfg.Friction, t))
		if r := sample(cfg.Radius, t); r > 0 {
			chain[i].Radius = r
		}
	}
	return total
}

func sample(c Curve, t float32) float32 {
	if c == nil {
		return 0
	}
	return c.Sample(t)
}
