package dispatcher

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/compute"
)

// testComponent records what the dispatcher hands back through ApplyResults.
type testComponent struct {
	id      uint64
	applied []chain.GPUParticle
	calls   int
}

func (c *testComponent) ID() uint64 { return c.id }

func (c *testComponent) ApplyResults(particles []chain.GPUParticle) {
	c.applied = append(c.applied[:0], particles...)
	c.calls++
}

// hangingChain builds a two-particle chain rooted at (rootX, 0, 0) with the
// child resting 0.1 below, plus identity write-back transforms.
func hangingChain(rootX float32) ([]chain.Particle, []chain.Tree, []common.Mat4) {
	particles := []chain.Particle{
		{TransformPosition: common.Vec3{X: rootX}, ParentIndex: -1},
		{
			Position:               common.Vec3{X: rootX, Y: -0.1},
			PrevPosition:           common.Vec3{X: rootX, Y: -0.1},
			TransformPosition:      common.Vec3{X: rootX, Y: -0.1},
			TransformLocalPosition: common.Vec3{Y: -0.1},
			ParentIndex:            0,
			BoneLength:             0.1,
		},
	}
	trees := []chain.Tree{{
		ParticleStart:    0,
		ParticleCount:    2,
		RootWorldToLocal: common.Mat4Identity(),
		BoneTotalLength:  0.1,
	}}
	transforms := []common.Mat4{common.Mat4Identity(), common.Mat4Identity()}
	return particles, trees, transforms
}

// testParams returns step parameters with a lateral pull so stepped particles
// move deterministically away from their rest pose.
func testParams() chain.StepParams {
	p := chain.DefaultStepParams()
	p.DeltaTime = 1.0 / 60.0
	p.Gravity = common.Vec3{X: 1}
	return p
}

func near3(a, b [3]float32, eps float32) bool {
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > eps {
			return false
		}
	}
	return true
}

func TestRegistrationLifecycle(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	a := &testComponent{id: 1}
	b := &testComponent{id: 2}

	d.Register(a)
	d.Register(a)
	d.Register(b)
	if got := d.RegisteredComponentCount(); got != 2 {
		t.Errorf("RegisteredComponentCount = %d after duplicate Register, want 2", got)
	}
	if !d.IsRegistered(a) || !d.IsRegistered(b) {
		t.Error("registered components not reported as registered")
	}

	d.Unregister(a)
	if d.IsRegistered(a) {
		t.Error("unregistered component still reported as registered")
	}
	d.Unregister(a)
	if got := d.RegisteredComponentCount(); got != 1 {
		t.Errorf("RegisteredComponentCount = %d after duplicate Unregister, want 1", got)
	}
	if d.UsingGPU() {
		t.Error("software stepping dispatcher reports UsingGPU")
	}
}

func TestSubmitWithoutRegistrationIsIgnored(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 7}
	particles, trees, transforms := hangingChain(0)
	d.SubmitData(c, particles, trees, transforms, nil, testParams())
	d.Flush()

	if c.calls != 0 {
		t.Errorf("unregistered component received %d ApplyResults calls", c.calls)
	}
	if got := d.TotalParticleCount(); got != 0 {
		t.Errorf("TotalParticleCount = %d, want 0", got)
	}
}

// TestFlushMatchesHandMergedReference submits two components, merges the same
// data by hand, and checks the flushed results are identical to stepping the
// hand-merged records directly. Submission order is deliberately reversed so
// the merge provably follows registration order.
func TestFlushMatchesHandMergedReference(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	a := &testComponent{id: 1}
	b := &testComponent{id: 2}
	d.Register(a)
	d.Register(b)

	pa, ta, xa := hangingChain(0)
	pb, tb, xb := hangingChain(5)
	ca := []chain.Collider{chain.NewSphere(common.Vec3{Y: -0.12}, 0.05)}
	params := testParams()

	d.SubmitData(b, pb, tb, xb, nil, params)
	d.SubmitData(a, pa, ta, xa, ca, params)

	// Hand-merge in registration order: a's records first, b's rewritten by
	// a's particle and collider counts.
	mergedParticles := chain.ParticlesToGPU(pa, nil)
	for _, p := range chain.ParticlesToGPU(pb, nil) {
		if p.ParentIndex >= 0 {
			p.ParentIndex += 2
		}
		mergedParticles = append(mergedParticles, p)
	}
	chainA := ta[0].ToGPU()
	chainB := tb[0].ToGPU()
	chainB.ParticleStart += 2
	mergedChains := []chain.GPUChain{chainA, chainB}

	prA := params.ToGPU()
	prA.ColliderStart = 0
	prA.ColliderCount = 1
	prB := params.ToGPU()
	prB.ColliderStart = 1
	prB.ColliderCount = 0
	mergedParams := []chain.GPUChainParams{prA, prB}

	mergedTransforms := chain.TransformsToGPU(append(append([]common.Mat4{}, xa...), xb...), nil)
	mergedColliders := chain.CollidersToGPU(ca, nil)
	globals := chain.GPUGlobals{ChainCount: 2, ParticleCount: 2, ColliderCount: 1, MaxLoopCount: 1}
	chain.StepRecords(globals, mergedParticles, mergedChains, mergedParams, mergedTransforms, mergedColliders)

	d.Flush()

	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("ApplyResults calls = (%d, %d), want (1, 1)", a.calls, b.calls)
	}
	if got := d.TotalParticleCount(); got != 4 {
		t.Errorf("TotalParticleCount = %d, want 4", got)
	}
	if got := d.TotalColliderCount(); got != 1 {
		t.Errorf("TotalColliderCount = %d, want 1", got)
	}

	for i := range a.applied {
		got, want := a.applied[i], mergedParticles[i]
		if got.Position != want.Position || got.PrevPosition != want.PrevPosition ||
			got.TransformLocalPosition != want.TransformLocalPosition || got.IsColliding != want.IsColliding {
			t.Errorf("component a particle %d = %+v, want %+v", i, got, want)
		}
	}
	for i := range b.applied {
		got, want := b.applied[i], mergedParticles[2+i]
		if got.Position != want.Position || got.PrevPosition != want.PrevPosition ||
			got.TransformLocalPosition != want.TransformLocalPosition || got.IsColliding != want.IsColliding {
			t.Errorf("component b particle %d = %+v, want %+v", i, got, want)
		}
	}
}

// TestComponentIsolationAcrossOffsets checks that merged components do not
// bleed into each other: two identical chains submitted at different world
// offsets must step to the same result, shifted by the offset.
func TestComponentIsolationAcrossOffsets(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	a := &testComponent{id: 1}
	b := &testComponent{id: 2}
	d.Register(a)
	d.Register(b)

	pa, ta, xa := hangingChain(0)
	pb, tb, xb := hangingChain(5)
	params := testParams()
	d.SubmitData(a, pa, ta, xa, nil, params)
	d.SubmitData(b, pb, tb, xb, nil, params)
	d.Flush()

	if len(a.applied) != 2 || len(b.applied) != 2 {
		t.Fatalf("applied lengths = (%d, %d), want (2, 2)", len(a.applied), len(b.applied))
	}
	for i := range a.applied {
		shifted := a.applied[i].Position
		shifted[0] += 5
		if !near3(b.applied[i].Position, shifted, 1e-5) {
			t.Errorf("particle %d: b at %v, a shifted %v", i, b.applied[i].Position, shifted)
		}
		if !near3(b.applied[i].TransformLocalPosition, a.applied[i].TransformLocalPosition, 1e-5) {
			t.Errorf("particle %d local write-back differs: %v vs %v", i, b.applied[i].TransformLocalPosition, a.applied[i].TransformLocalPosition)
		}
	}
}

// TestColliderWindowsStayComponentLocal checks that one component's colliders
// never touch another component's particles, even when their chains overlap
// in world space.
func TestColliderWindowsStayComponentLocal(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	a := &testComponent{id: 1}
	b := &testComponent{id: 2}
	d.Register(a)
	d.Register(b)

	pa, ta, xa := hangingChain(0)
	pb, tb, xb := hangingChain(0)
	ca := []chain.Collider{chain.NewSphere(common.Vec3{Y: -0.12}, 0.05)}
	params := testParams()

	d.SubmitData(a, pa, ta, xa, ca, params)
	d.SubmitData(b, pb, tb, xb, nil, params)
	d.Flush()

	if a.applied[1].IsColliding == 0 {
		t.Error("component a child not flagged by its own collider")
	}
	if b.applied[1].IsColliding != 0 {
		t.Error("component b child flagged by component a's collider")
	}
}

func TestLastSubmissionWins(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)

	p0, t0, x0 := hangingChain(0)
	p5, t5, x5 := hangingChain(5)
	params := testParams()
	d.SubmitData(c, p0, t0, x0, nil, params)
	d.SubmitData(c, p5, t5, x5, nil, params)
	d.Flush()

	if c.calls != 1 {
		t.Fatalf("ApplyResults calls = %d, want 1", c.calls)
	}
	// The root anchors to its transform, so the flushed root position tells
	// which submission was stepped.
	if got := c.applied[0].Position; got != [3]float32{5, 0, 0} {
		t.Errorf("root position = %v, want the second submission's [5 0 0]", got)
	}
	if got := d.TotalParticleCount(); got != 2 {
		t.Errorf("TotalParticleCount = %d, want 2", got)
	}
}

func TestFlushConsumesSubmissions(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)

	particles, trees, transforms := hangingChain(0)
	d.SubmitData(c, particles, trees, transforms, nil, testParams())
	d.Flush()
	d.Flush()

	if c.calls != 1 {
		t.Errorf("ApplyResults calls = %d after two flushes, want 1", c.calls)
	}
	if got := d.TotalParticleCount(); got != 0 {
		t.Errorf("TotalParticleCount = %d after an empty flush, want 0", got)
	}
}

func TestDisabledDispatcherDropsWork(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)
	particles, trees, transforms := hangingChain(0)

	// Disabling consumes whatever was submitted but not yet flushed.
	d.SubmitData(c, particles, trees, transforms, nil, testParams())
	d.SetEnabled(false)
	if d.Enabled() {
		t.Error("Enabled() = true after SetEnabled(false)")
	}
	d.Flush()
	d.SetEnabled(true)
	d.Flush()
	if c.calls != 0 {
		t.Errorf("ApplyResults calls = %d, want 0 after disable dropped the submission", c.calls)
	}

	// Submissions made while disabled are ignored outright.
	d.SetEnabled(false)
	d.SubmitData(c, particles, trees, transforms, nil, testParams())
	d.SetEnabled(true)
	d.Flush()
	if c.calls != 0 {
		t.Errorf("ApplyResults calls = %d, want 0 for a submission made while disabled", c.calls)
	}

	// Back to normal once enabled.
	d.SubmitData(c, particles, trees, transforms, nil, testParams())
	d.Flush()
	if c.calls != 1 {
		t.Errorf("ApplyResults calls = %d after re-enable, want 1", c.calls)
	}
}

func TestResetDropsPendingKeepsRegistry(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)
	particles, trees, transforms := hangingChain(0)
	d.SubmitData(c, particles, trees, transforms, nil, testParams())

	d.Reset()
	d.Flush()

	if c.calls != 0 {
		t.Errorf("ApplyResults calls = %d after Reset, want 0", c.calls)
	}
	if !d.IsRegistered(c) {
		t.Error("Reset unregistered the component")
	}
}

func TestUnregisterDropsPending(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)
	particles, trees, transforms := hangingChain(0)
	d.SubmitData(c, particles, trees, transforms, nil, testParams())

	d.Unregister(c)
	d.Flush()

	if c.calls != 0 {
		t.Errorf("ApplyResults calls = %d after Unregister, want 0", c.calls)
	}
}

func TestMismatchedTransformsDropped(t *testing.T) {
	d := NewDispatcher(WithSoftwareStepping(true))
	defer d.Release()

	c := &testComponent{id: 1}
	d.Register(c)
	particles, trees, _ := hangingChain(0)
	d.SubmitData(c, particles, trees, []common.Mat4{common.Mat4Identity()}, nil, testParams())
	d.Flush()

	if c.calls != 0 {
		t.Errorf("ApplyResults calls = %d for a mismatched submission, want 0", c.calls)
	}
	if got := d.TotalParticleCount(); got != 0 {
		t.Errorf("TotalParticleCount = %d, want 0", got)
	}
}

// TestDispatchAgreesWithSoftwareStepping runs the same submissions through a
// GPU dispatcher and a software one and requires the results to agree within
// 1e-4 per component. The second round grows the merged buffers to exercise
// bind group regrowth.
func TestDispatchAgreesWithSoftwareStepping(t *testing.T) {
	dev, err := compute.NewDevice(compute.BackendTypeWGPU, compute.WithLabel("Dispatcher Test Device"))
	if err != nil {
		t.Skipf("no compute-capable adapter: %v", err)
	}
	defer dev.Release()

	gpu := NewDispatcher(WithDevice(dev))
	defer gpu.Release()
	if !gpu.UsingGPU() {
		t.Skip("kernel registration fell back to CPU stepping")
	}
	soft := NewDispatcher(WithSoftwareStepping(true))
	defer soft.Release()

	colliders := []chain.Collider{
		chain.NewSphere(common.Vec3{Y: -0.12}, 0.05),
		chain.NewPlane(common.Vec3{Y: -0.25}, common.Vec3{Y: 1}),
	}
	params := testParams()
	params.LoopCount = 3
	params.Weight = 0.7

	round := func(roots []float32) {
		t.Helper()
		gpuClients := make([]*testComponent, len(roots))
		softClients := make([]*testComponent, len(roots))
		for i, rootX := range roots {
			gpuClients[i] = &testComponent{id: uint64(i + 1)}
			softClients[i] = &testComponent{id: uint64(i + 1)}
			gpu.Register(gpuClients[i])
			soft.Register(softClients[i])

			particles, trees, transforms := hangingChain(rootX)
			gpu.SubmitData(gpuClients[i], particles, trees, transforms, colliders, params)
			soft.SubmitData(softClients[i], particles, trees, transforms, colliders, params)
		}

		gpu.Flush()
		soft.Flush()

		if !gpu.UsingGPU() {
			t.Fatal("dispatch failed and latched onto the CPU path")
		}
		for i := range roots {
			g, s := gpuClients[i].applied, softClients[i].applied
			if len(g) != len(s) {
				t.Fatalf("component %d: GPU returned %d particles, software %d", i, len(g), len(s))
			}
			for j := range g {
				if !near3(g[j].Position, s[j].Position, 1e-4) {
					t.Errorf("component %d particle %d Position: GPU %v, software %v", i, j, g[j].Position, s[j].Position)
				}
				if !near3(g[j].PrevPosition, s[j].PrevPosition, 1e-4) {
					t.Errorf("component %d particle %d PrevPosition: GPU %v, software %v", i, j, g[j].PrevPosition, s[j].PrevPosition)
				}
				if !near3(g[j].TransformLocalPosition, s[j].TransformLocalPosition, 1e-4) {
					t.Errorf("component %d particle %d TransformLocalPosition: GPU %v, software %v", i, j, g[j].TransformLocalPosition, s[j].TransformLocalPosition)
				}
				if (g[j].IsColliding != 0) != (s[j].IsColliding != 0) {
					t.Errorf("component %d particle %d IsColliding: GPU %d, software %d", i, j, g[j].IsColliding, s[j].IsColliding)
				}
			}
			gpu.Unregister(gpuClients[i])
			soft.Unregister(softClients[i])
		}
	}

	round([]float32{0, 5})

	// Twelve components push the merged particle and collider counts past the
	// initial buffer capacities, forcing regrowth and a bind group rebuild.
	grown := make([]float32, 12)
	for i := range grown {
		grown[i] = float32(i) * 2
	}
	round(grown)
}
