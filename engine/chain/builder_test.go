package chain

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// hangingSkeleton builds a bone chain hanging along -Y from the origin:
// root -> seg1 -> seg2 -> ... with segment length 0.1 each.
func hangingSkeleton(t *testing.T, segments int) *skeleton.Skeleton {
	t.Helper()
	bones := []skeleton.Bone{{Name: "root", ParentIndex: -1, Local: skeleton.DefaultTransform()}}
	for i := 1; i <= segments; i++ {
		local := skeleton.DefaultTransform()
		local.Translation = common.Vec3{Y: -0.1}
		bones = append(bones, skeleton.Bone{
			Name:        "seg" + string(rune('0'+i)),
			ParentIndex: int32(i - 1),
			Local:       local,
		})
	}
	skel, err := skeleton.NewSkeleton(bones)
	if err != nil {
		t.Fatalf("NewSkeleton: %v", err)
	}
	return skel
}

// TestBuildOrdering tests the parent-before-child slice invariant: every
// non-root particle's parent index points strictly earlier in the slice.
func TestBuildOrdering(t *testing.T) {
	skel := hangingSkeleton(t, 3)

	particles, trees, err := Build(skel, []int32{0}, DefaultBuildConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d trees, want 1", len(trees))
	}
	if len(particles) != 4 {
		t.Fatalf("got %d particles, want 4", len(particles))
	}

	if particles[0].ParentIndex != -1 {
		t.Errorf("root ParentIndex = %d, want -1", particles[0].ParentIndex)
	}
	for i := 1; i < len(particles); i++ {
		if p := particles[i].ParentIndex; p < 0 || p >= int32(i) {
			t.Errorf("particle %d ParentIndex = %d, want in [0, %d)", i, p, i)
		}
	}

	tree := trees[0]
	if tree.ParticleStart != 0 || tree.ParticleCount != 4 {
		t.Errorf("tree range = [%d, %d), want [0, 4)", tree.ParticleStart, tree.ParticleStart+tree.ParticleCount)
	}
	if !almostEqual32(tree.BoneTotalLength, 0.3, 1e-6) {
		t.Errorf("BoneTotalLength = %v, want 0.3", tree.BoneTotalLength)
	}
}

// TestBuildBranchJoint tests that both branches of a fork keep stepping order.
func TestBuildBranchJoint(t *testing.T) {
	down := skeleton.DefaultTransform()
	down.Translation = common.Vec3{Y: -0.1}
	side := skeleton.DefaultTransform()
	side.Translation = common.Vec3{X: 0.1}

	skel, err := skeleton.NewSkeleton([]skeleton.Bone{
		{Name: "root", ParentIndex: -1, Local: skeleton.DefaultTransform()},
		{Name: "left", ParentIndex: 0, Local: down},
		{Name: "right", ParentIndex: 0, Local: side},
		{Name: "leftTip", ParentIndex: 1, Local: down},
	})
	if err != nil {
		t.Fatalf("NewSkeleton: %v", err)
	}

	particles, trees, err := Build(skel, []int32{0}, DefaultBuildConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(trees) != 1 || len(particles) != 4 {
		t.Fatalf("got %d trees / %d particles, want 1 / 4", len(trees), len(particles))
	}
	for i := 1; i < len(particles); i++ {
		if p := particles[i].ParentIndex; p < 0 || p >= int32(i) {
			t.Errorf("particle %d ParentIndex = %d violates stepping order", i, p)
		}
	}
}

// TestBuildExclusions tests that an excluded bone prunes its whole subtree.
func TestBuildExclusions(t *testing.T) {
	skel := hangingSkeleton(t, 3)

	cfg := DefaultBuildConfig()
	cfg.Exclusions = map[int32]bool{2: true}

	particles, _, err := Build(skel, []int32{0}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Bones 2 and 3 pruned; root + seg1 remain.
	if len(particles) != 2 {
		t.Fatalf("got %d particles, want 2", len(particles))
	}
	for _, pt := range particles {
		if pt.BoneIndex == 2 || pt.BoneIndex == 3 {
			t.Errorf("excluded bone %d got a particle", pt.BoneIndex)
		}
	}
}

// TestBuildExcludedRootYieldsNothing tests that excluding a chain root drops
// the whole chain without error.
func TestBuildExcludedRootYieldsNothing(t *testing.T) {
	skel := hangingSkeleton(t, 2)

	cfg := DefaultBuildConfig()
	cfg.Exclusions = map[int32]bool{0: true}

	particles, trees, err := Build(skel, []int32{0}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(particles) != 0 || len(trees) != 0 {
		t.Errorf("got %d particles / %d trees, want none", len(particles), len(trees))
	}
}

// TestBuildSyntheticEnd tests the synthetic end particle appended by
// EndLength.
func TestBuildSyntheticEnd(t *testing.T) {
	skel := hangingSkeleton(t, 2)

	cfg := DefaultBuildConfig()
	cfg.EndLength = 0.05

	particles, trees, err := Build(skel, []int32{0}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(particles) != 4 {
		t.Fatalf("got %d particles, want 4 (3 bones + synthetic end)", len(particles))
	}

	end := particles[3]
	if end.BoneIndex != -1 {
		t.Errorf("synthetic end BoneIndex = %d, want -1", end.BoneIndex)
	}
	if end.ParentIndex != 2 {
		t.Errorf("synthetic end ParentIndex = %d, want 2", end.ParentIndex)
	}
	// Chain hangs along -Y, so the end extends 0.05 past the last bone.
	want := common.Vec3{Y: -0.25}
	if !vecNear(end.TransformPosition, want, 1e-6) {
		t.Errorf("synthetic end position = %+v, want %+v", end.TransformPosition, want)
	}
	if !almostEqual32(end.BoneLength, 0.05, 1e-6) {
		t.Errorf("synthetic end BoneLength = %v, want 0.05", end.BoneLength)
	}
	if !almostEqual32(trees[0].BoneTotalLength, 0.25, 1e-6) {
		t.Errorf("BoneTotalLength = %v, want 0.25", trees[0].BoneTotalLength)
	}
}

// TestBuildEndOffset tests the synthetic end particle placed by EndOffset
// alone.
func TestBuildEndOffset(t *testing.T) {
	skel := hangingSkeleton(t, 1)

	cfg := DefaultBuildConfig()
	cfg.EndOffset = common.Vec3{X: 0.2}

	particles, _, err := Build(skel, []int32{0}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(particles) != 3 {
		t.Fatalf("got %d particles, want 3", len(particles))
	}
	end := particles[2]
	want := common.Vec3{X: 0.2, Y: -0.1}
	if !vecNear(end.TransformPosition, want, 1e-6) {
		t.Errorf("end offset position = %+v, want %+v", end.TransformPosition, want)
	}
	if end.EndOffsetLocal.IsZero() {
		t.Error("synthetic end EndOffsetLocal not captured")
	}
}

// TestBuildDistribution tests curve-sampled parameters along the chain.
func TestBuildDistribution(t *testing.T) {
	skel := hangingSkeleton(t, 2)

	cfg := DefaultBuildConfig()
	cfg.Damping = Keyframes(Keyframe{T: 0, Value: 0}, Keyframe{T: 1, Value: 1})
	cfg.Radius = Constant(-0.5)  // clamped to 0
	cfg.Stiffness = Constant(2)  // clamped to 1
	cfg.Elasticity = Constant(0) // exercise the zero path

	particles, _, err := Build(skel, []int32{0}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(particles) != 3 {
		t.Fatalf("got %d particles, want 3", len(particles))
	}

	// Root samples at t=0, tip at t=1, middle halfway.
	if got := particles[0].Damping; !almostEqual32(got, 0, 1e-6) {
		t.Errorf("root Damping = %v, want 0", got)
	}
	if got := particles[1].Damping; !almostEqual32(got, 0.5, 1e-6) {
		t.Errorf("middle Damping = %v, want 0.5", got)
	}
	if got := particles[2].Damping; !almostEqual32(got, 1, 1e-6) {
		t.Errorf("tip Damping = %v, want 1", got)
	}

	for i, pt := range particles {
		if pt.Radius != 0 {
			t.Errorf("particle %d Radius = %v, want 0 (clamped)", i, pt.Radius)
		}
		if pt.Stiffness != 1 {
			t.Errorf("particle %d Stiffness = %v, want 1 (clamped)", i, pt.Stiffness)
		}
	}
}

// TestBuildNoRoots tests that an empty root list builds nothing.
func TestBuildNoRoots(t *testing.T) {
	skel := hangingSkeleton(t, 2)
	particles, trees, err := Build(skel, nil, DefaultBuildConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if particles != nil || trees != nil {
		t.Errorf("got %d particles / %d trees, want none", len(particles), len(trees))
	}
}

// TestBuildRootOutOfRange tests the error path for a bad root index.
func TestBuildRootOutOfRange(t *testing.T) {
	skel := hangingSkeleton(t, 1)
	if _, _, err := Build(skel, []int32{5}, DefaultBuildConfig()); err == nil {
		t.Fatal("expected error for out-of-range root")
	}
}

// TestBuildMultipleRoots tests independent chains from separate roots.
func TestBuildMultipleRoots(t *testing.T) {
	down := skeleton.DefaultTransform()
	down.Translation = common.Vec3{Y: -0.1}
	apart := skeleton.DefaultTransform()
	apart.Translation = common.Vec3{X: 1}

	skel, err := skeleton.NewSkeleton([]skeleton.Bone{
		{Name: "rootA", ParentIndex: -1, Local: skeleton.DefaultTransform()},
		{Name: "tailA", ParentIndex: 0, Local: down},
		{Name: "rootB", ParentIndex: -1, Local: apart},
		{Name: "tailB", ParentIndex: 2, Local: down},
	})
	if err != nil {
		t.Fatalf("NewSkeleton: %v", err)
	}

	// NewSkeleton may reorder bones, so resolve the roots by name.
	roots := []int32{skel.Find("rootA"), skel.Find("rootB")}
	particles, trees, err := Build(skel, roots, DefaultBuildConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(trees) != 2 {
		t.Fatalf("got %d trees, want 2", len(trees))
	}
	if trees[0].ParticleStart != 0 || trees[1].ParticleStart != 2 {
		t.Errorf("tree starts = %d, %d, want 0, 2", trees[0].ParticleStart, trees[1].ParticleStart)
	}
	// Second chain's particle parent index stays slice-absolute.
	if particles[3].ParentIndex != 2 {
		t.Errorf("second chain tail ParentIndex = %d, want 2", particles[3].ParentIndex)
	}
	if trees[1].RootBone != roots[1] {
		t.Errorf("second tree RootBone = %d, want %d", trees[1].RootBone, roots[1])
	}
}
