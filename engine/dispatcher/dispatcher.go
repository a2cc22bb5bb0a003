// Package dispatcher merges the chain buffers of many simulation components
// into shared GPU buffers and steps them all with a single compute dispatch
// per tick. Components register once, submit their converted records every
// tick, and receive their stepped particles back after Flush demultiplexes
// the merged output. When no compute-capable adapter is available the
// dispatcher steps the same merged records on the CPU, so callers see
// identical behavior either way.
package dispatcher

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/compute"
	"github.com/Carmen-Shannon/oxy-chain/engine/compute/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-chain/engine/compute/pipeline"
	"github.com/Carmen-Shannon/oxy-chain/engine/shader"
	"github.com/Carmen-Shannon/oxy-chain/logger"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Element strides of the GPU records, used to size the shared buffers. The
// layout tests in the chain package pin these against the WGSL definitions.
var (
	particleStride  = uint64((&chain.GPUParticle{}).Size())
	chainStride     = uint64((&chain.GPUChain{}).Size())
	paramsStride    = uint64((&chain.GPUChainParams{}).Size())
	transformStride = uint64((&chain.GPUTransform{}).Size())
	colliderStride  = uint64((&chain.GPUCollider{}).Size())
)

// Client is a simulation component that feeds chains into a shared
// dispatcher. Implementations convert their skeleton state into GPU records
// each tick, submit them, and apply the stepped records back to their
// particles when the dispatcher flushes.
type Client interface {
	// ID returns a process-unique identifier for this component. Registration,
	// submission, and unregistration are keyed by it, so two components must
	// never share an ID.
	//
	// Returns:
	//   - uint64: the component's unique identifier
	ID() uint64

	// ApplyResults delivers this component's stepped particle records after a
	// flush. The slice aliases the dispatcher's merged buffer and is only valid
	// for the duration of the call; copy out anything retained. ApplyResults is
	// invoked with the dispatcher's internal lock held, so implementations must
	// not call back into the dispatcher.
	//
	// Parameters:
	//   - particles: the component's particles in submission order, stepped
	ApplyResults(particles []chain.GPUParticle)
}

// submission holds one component's converted records between SubmitData and
// Flush. The slices are reused across ticks to avoid per-tick allocation;
// pending marks whether the current contents have been flushed yet.
type submission struct {
	particles  []chain.GPUParticle
	chains     []chain.GPUChain
	transforms []chain.GPUTransform
	colliders  []chain.GPUCollider
	params     chain.StepParams
	pending    bool
}

// resultWindow records which span of the merged particle buffer belongs to
// which client, so Flush can demultiplex results in registration order.
type resultWindow struct {
	client Client
	start  int
	count  int
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher struct {
	mu sync.Mutex

	kernel   shader.Shader
	device   compute.Device
	provider bind_group_provider.BindGroupProvider

	// ownsDevice marks a device acquired by the constructor rather than
	// injected through WithDevice; only owned devices are released.
	ownsDevice bool

	// Binding indices of the kernel's group 0 variables, resolved once from
	// the processed kernel metadata.
	globalsBinding    int
	particlesBinding  int
	chainsBinding     int
	paramsBinding     int
	transformsBinding int
	collidersBinding  int

	enabled bool

	// gpuFailed latches after the first failed dispatch; stepping stays on
	// the CPU from then on so a broken driver cannot fail every tick.
	gpuFailed bool

	// clients holds registered components in registration order, which is
	// also the merge and demultiplex order.
	clients     []Client
	submissions map[uint64]*submission

	// Merged per-flush buffers, reused across flushes.
	mergedParticles  []chain.GPUParticle
	mergedChains     []chain.GPUChain
	mergedParams     []chain.GPUChainParams
	mergedTransforms []chain.GPUTransform
	mergedColliders  []chain.GPUCollider
	windows          []resultWindow

	// Grow-only GPU buffer capacities in elements. Transforms share
	// particleCap because transform records ride the particle index space.
	particleCap    int
	chainCap       int
	colliderCap    int
	bindGroupReady bool

	staging    *wgpu.Buffer
	stagingCap uint64

	// Pre-creation config collected from builder options
	softwareOnly bool
}

// Dispatcher batches the chain workloads of many components into one compute
// dispatch per tick. Components Register once, SubmitData every simulated
// tick, and the owner of the tick loop calls Flush once after all components
// have submitted. Submissions are consumed by the flush that steps them.
//
// All methods are safe for concurrent use.
type Dispatcher interface {
	// Register adds a component to the dispatcher. Registering an already
	// registered component is a no-op, and registration order determines the
	// order results are delivered in.
	//
	// Parameters:
	//   - c: the component to register
	Register(c Client)

	// Unregister removes a component and drops any submission it has pending.
	// Unregistering a component that is not registered is a no-op.
	//
	// Parameters:
	//   - c: the component to remove
	Unregister(c Client)

	// IsRegistered reports whether the component is currently registered.
	//
	// Parameters:
	//   - c: the component to look up
	//
	// Returns:
	//   - bool: true if the component is registered
	IsRegistered(c Client) bool

	// SubmitData converts one component's chain state into GPU records and
	// stages them for the next flush. Submitting again before the flush
	// replaces the staged data. Submissions from unregistered components and
	// submissions made while the dispatcher is disabled are ignored.
	//
	// The transforms slice must carry one write-back matrix per particle;
	// a mismatched submission cannot be merged and is dropped at flush.
	//
	// Parameters:
	//   - c: the submitting component
	//   - particles: the component's particles across all of its chains
	//   - trees: the component's chain descriptors with component-local indices
	//   - transforms: per-particle world-to-parent-local write-back matrices
	//   - colliders: the component's colliders, visible only to its own chains
	//   - params: the component's step scalars for this tick
	SubmitData(c Client, particles []chain.Particle, trees []chain.Tree, transforms []common.Mat4, colliders []chain.Collider, params chain.StepParams)

	// Flush merges all pending submissions into the shared buffers, rewriting
	// particle and collider indices into merged space, steps every chain with
	// one kernel dispatch, and hands each component its stepped records via
	// ApplyResults in registration order. When no GPU is available, or a
	// dispatch has failed, the merged records are stepped on the CPU instead.
	// Pending submissions are consumed whether or not anything was stepped.
	Flush()

	// SetEnabled toggles the dispatcher. Disabling drops pending submissions
	// and makes SubmitData and Flush no-ops until re-enabled.
	//
	// Parameters:
	//   - enabled: the new enabled state
	SetEnabled(enabled bool)

	// Enabled reports whether the dispatcher is accepting submissions.
	//
	// Returns:
	//   - bool: true if the dispatcher is enabled
	Enabled() bool

	// Reset drops all pending submissions while keeping components registered.
	// Call it after a teleport or pose snap so stale pre-snap data is not
	// stepped into the new pose.
	Reset()

	// TotalParticleCount returns the number of particles stepped by the most
	// recent flush, summed across all components that submitted to it.
	//
	// Returns:
	//   - int: the merged particle count of the last flush
	TotalParticleCount() int

	// TotalColliderCount returns the number of colliders carried by the most
	// recent flush, summed across all components that submitted to it.
	//
	// Returns:
	//   - int: the merged collider count of the last flush
	TotalColliderCount() int

	// RegisteredComponentCount returns the number of registered components.
	//
	// Returns:
	//   - int: the registry size
	RegisteredComponentCount() int

	// UsingGPU reports whether flushes are dispatched to a compute device.
	// False when software stepping was forced, no adapter was available, or a
	// failed dispatch has latched the dispatcher onto the CPU path.
	//
	// Returns:
	//   - bool: true if the next flush will dispatch to the GPU
	UsingGPU() bool

	// Release frees the shared GPU buffers, the staging buffer, and the
	// compute device when the dispatcher owns it. Devices injected through
	// WithDevice are left alive for their owner to release. The dispatcher
	// must not be used after Release.
	Release()
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher creates a dispatcher with its kernel parsed and, unless
// software stepping was forced, a compute device ready to dispatch. GPU
// acquisition failures are not fatal: the dispatcher logs the condition once
// and steps every flush on the CPU, so construction always succeeds.
//
// Parameters:
//   - options: variadic list of DispatcherBuilderOption functions to configure the dispatcher
//
// Returns:
//   - Dispatcher: a ready-to-use dispatcher
func NewDispatcher(options ...DispatcherBuilderOption) Dispatcher {
	d := &dispatcher{
		kernel:      NewKernel(),
		enabled:     true,
		submissions: make(map[uint64]*submission),
	}
	for _, opt := range options {
		opt(d)
	}
	d.resolveBindings()

	if d.softwareOnly {
		return d
	}

	if d.device == nil {
		dev, err := compute.NewDevice(compute.BackendTypeWGPU, compute.WithLabel("Chain Dispatcher"))
		if err != nil {
			logger.Warn("no compute device for batched chain dispatch, stepping on the CPU", zap.Error(err))
			return d
		}
		d.device = dev
		d.ownsDevice = true
	}

	if err := d.device.RegisterPipelines(pipeline.NewPipeline(KernelKey, pipeline.WithShader(d.kernel))); err != nil {
		logger.Warn("chain kernel registration failed, stepping on the CPU", zap.Error(err))
		if d.ownsDevice {
			d.device.Release()
		}
		d.device = nil
		d.ownsDevice = false
		return d
	}

	d.provider = bind_group_provider.NewBindGroupProvider("Chain Dispatcher")
	return d
}

// resolveBindings maps the kernel's bind group variable names to binding
// indices once at construction. The kernel is an embedded asset, so a missing
// name is a programming error rather than a runtime condition.
func (d *dispatcher) resolveBindings() {
	lookup := func(name string) int {
		binding, ok := d.kernel.BindGroupFromVarName(0, name)
		if !ok {
			panic(fmt.Sprintf("dispatcher: kernel %s has no binding named %q", KernelKey, name))
		}
		return binding
	}
	d.globalsBinding = lookup("globals")
	d.particlesBinding = lookup("particles")
	d.chainsBinding = lookup("chains")
	d.paramsBinding = lookup("chain_params")
	d.transformsBinding = lookup("transforms")
	d.collidersBinding = lookup("colliders")
}

func (d *dispatcher) Register(c Client) {
	if c == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOfLocked(c.ID()) >= 0 {
		return
	}
	d.clients = append(d.clients, c)
}

func (d *dispatcher) Unregister(c Client) {
	if c == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.indexOfLocked(c.ID()); i >= 0 {
		d.clients = append(d.clients[:i], d.clients[i+1:]...)
	}
	delete(d.submissions, c.ID())
}

func (d *dispatcher) IsRegistered(c Client) bool {
	if c == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indexOfLocked(c.ID()) >= 0
}

// indexOfLocked returns the registration slot for an ID, or -1. Callers hold d.mu.
func (d *dispatcher) indexOfLocked(id uint64) int {
	for i, c := range d.clients {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

func (d *dispatcher) SubmitData(c Client, particles []chain.Particle, trees []chain.Tree, transforms []common.Mat4, colliders []chain.Collider, params chain.StepParams) {
	if c == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled || d.indexOfLocked(c.ID()) < 0 {
		return
	}

	sub := d.submissions[c.ID()]
	if sub == nil {
		sub = &submission{}
		d.submissions[c.ID()] = sub
	}
	// The last submission before a flush wins; the converted buffers are
	// reused in place.
	sub.particles = chain.ParticlesToGPU(particles, sub.particles)
	sub.chains = chain.TreesToGPU(trees, sub.chains)
	sub.transforms = chain.TransformsToGPU(transforms, sub.transforms)
	sub.colliders = chain.CollidersToGPU(colliders, sub.colliders)
	sub.params = params
	sub.pending = true
}

func (d *dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return
	}

	maxChainParticles, maxLoop := d.merge()
	if len(d.mergedChains) == 0 {
		d.clearPendingLocked()
		return
	}

	globals := chain.GPUGlobals{
		ChainCount:    uint32(len(d.mergedChains)),
		ParticleCount: uint32(maxChainParticles),
		ColliderCount: uint32(len(d.mergedColliders)),
		MaxLoopCount:  uint32(maxLoop),
	}

	stepped := false
	if d.device != nil && d.provider != nil && !d.gpuFailed {
		if err := d.dispatch(globals); err != nil {
			if !d.gpuFailed {
				d.gpuFailed = true
				logger.Warn("chain dispatch failed, stepping on the CPU from now on", zap.Error(err))
			}
		} else {
			stepped = true
		}
	}
	if !stepped {
		chain.StepRecords(globals, d.mergedParticles, d.mergedChains, d.mergedParams, d.mergedTransforms, d.mergedColliders)
	}

	for _, w := range d.windows {
		w.client.ApplyResults(d.mergedParticles[w.start : w.start+w.count])
	}
	d.clearPendingLocked()
}

// merge concatenates all pending submissions into the shared buffers in
// registration order, rewriting component-local particle and collider indices
// into merged space. It returns the largest per-chain particle count and the
// largest loop count, which bound the kernel's barrier loops.
func (d *dispatcher) merge() (maxChainParticles int, maxLoop int32) {
	d.mergedParticles = d.mergedParticles[:0]
	d.mergedChains = d.mergedChains[:0]
	d.mergedParams = d.mergedParams[:0]
	d.mergedTransforms = d.mergedTransforms[:0]
	d.mergedColliders = d.mergedColliders[:0]
	d.windows = d.windows[:0]
	maxLoop = 1

	for _, c := range d.clients {
		sub := d.submissions[c.ID()]
		if sub == nil || !sub.pending {
			continue
		}
		if len(sub.chains) == 0 || len(sub.particles) == 0 {
			continue
		}
		// Transform records ride the particle index space; a mismatched
		// submission cannot be merged without corrupting later windows.
		if len(sub.transforms) != len(sub.particles) {
			continue
		}

		particleOffset := int32(len(d.mergedParticles))
		colliderOffset := int32(len(d.mergedColliders))

		for _, p := range sub.particles {
			if p.ParentIndex >= 0 {
				p.ParentIndex += particleOffset
			}
			d.mergedParticles = append(d.mergedParticles, p)
		}
		d.mergedTransforms = append(d.mergedTransforms, sub.transforms...)
		d.mergedColliders = append(d.mergedColliders, sub.colliders...)

		pr := sub.params.ToGPU()
		pr.ColliderStart = colliderOffset
		pr.ColliderCount = int32(len(sub.colliders))
		if pr.LoopCount > maxLoop {
			maxLoop = pr.LoopCount
		}

		for _, ch := range sub.chains {
			ch.ParticleStart += particleOffset
			if int(ch.ParticleCount) > maxChainParticles {
				maxChainParticles = int(ch.ParticleCount)
			}
			d.mergedChains = append(d.mergedChains, ch)
			d.mergedParams = append(d.mergedParams, pr)
		}

		d.windows = append(d.windows, resultWindow{client: c, start: int(particleOffset), count: len(sub.particles)})
	}
	return maxChainParticles, maxLoop
}

// dispatch uploads the merged buffers, runs one kernel dispatch covering
// every chain, and reads the stepped particle records back into
// mergedParticles. Callers hold d.mu.
func (d *dispatcher) dispatch(globals chain.GPUGlobals) error {
	if err := d.ensureBuffers(); err != nil {
		return err
	}

	staged := make([]bind_group_provider.BufferWrite, 0, 6)
	for _, w := range []bind_group_provider.BufferWrite{
		{Provider: d.provider, Binding: d.globalsBinding, Data: globals.Marshal()},
		{Provider: d.provider, Binding: d.particlesBinding, Data: common.SliceToBytes(d.mergedParticles)},
		{Provider: d.provider, Binding: d.chainsBinding, Data: common.SliceToBytes(d.mergedChains)},
		{Provider: d.provider, Binding: d.paramsBinding, Data: common.SliceToBytes(d.mergedParams)},
		{Provider: d.provider, Binding: d.transformsBinding, Data: common.SliceToBytes(d.mergedTransforms)},
		{Provider: d.provider, Binding: d.collidersBinding, Data: common.SliceToBytes(d.mergedColliders)},
	} {
		// Empty merged slices produce nil views; there is nothing to upload.
		if len(w.Data) > 0 {
			staged = append(staged, w)
		}
	}
	d.device.WriteBuffers(staged)

	if err := d.device.BeginComputeFrame(); err != nil {
		return err
	}
	d.device.DispatchCompute(KernelKey, d.provider, [3]uint32{globals.ChainCount, 1, 1})

	particleBytes := uint64(len(d.mergedParticles)) * particleStride
	if err := d.device.CopyBufferToBuffer(d.provider.Buffer(d.particlesBinding), 0, d.staging, 0, particleBytes); err != nil {
		d.device.EndComputeFrame()
		return err
	}
	d.device.EndComputeFrame()

	raw, err := d.device.ReadBuffer(d.staging, particleBytes)
	if err != nil {
		return err
	}
	for i := range d.mergedParticles {
		if err := d.mergedParticles[i].Unmarshal(raw[uint64(i)*particleStride:]); err != nil {
			return err
		}
	}
	return nil
}

// ensureBuffers grows the shared GPU buffers to fit the merged data and
// rebuilds the bind group when any binding changed. Capacities only grow, so
// a transient spike in chain count never causes reallocation churn afterward.
// Callers hold d.mu.
func (d *dispatcher) ensureBuffers() error {
	grew := false
	if n := len(d.mergedParticles); n > d.particleCap {
		d.particleCap = growCap(d.particleCap, n)
		d.provider.ReleaseBuffer(d.particlesBinding)
		d.provider.ReleaseBuffer(d.transformsBinding)
		grew = true
	}
	if n := len(d.mergedChains); n > d.chainCap {
		d.chainCap = growCap(d.chainCap, n)
		d.provider.ReleaseBuffer(d.chainsBinding)
		d.provider.ReleaseBuffer(d.paramsBinding)
		grew = true
	}
	if n := len(d.mergedColliders); n > d.colliderCap {
		d.colliderCap = growCap(d.colliderCap, n)
		d.provider.ReleaseBuffer(d.collidersBinding)
		grew = true
	}

	if grew || !d.bindGroupReady {
		sizes := map[int]uint64{
			d.particlesBinding:  uint64(d.particleCap) * particleStride,
			d.chainsBinding:     uint64(d.chainCap) * chainStride,
			d.paramsBinding:     uint64(d.chainCap) * paramsStride,
			d.transformsBinding: uint64(d.particleCap) * transformStride,
			// A bound runtime array needs at least one element even when no
			// component has submitted colliders yet.
			d.collidersBinding: uint64(max(d.colliderCap, 1)) * colliderStride,
		}
		usage := map[int]wgpu.BufferUsage{
			d.particlesBinding: wgpu.BufferUsageCopySrc,
		}
		d.provider.ReleaseBindGroup()
		if err := d.device.InitBindGroup(d.provider, d.kernel.BindGroupLayoutDescriptor(0), usage, sizes); err != nil {
			return err
		}
		d.bindGroupReady = true
	}

	if needed := uint64(d.particleCap) * particleStride; needed > d.stagingCap {
		if d.staging != nil {
			d.staging.Release()
			d.staging = nil
			d.stagingCap = 0
		}
		buf, err := d.device.CreateBuffer("Chain Dispatcher Staging Buffer", needed, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		d.staging = buf
		d.stagingCap = needed
	}
	return nil
}

// growCap doubles from the previous capacity until it fits n, starting from a
// small floor so the first few ticks do not reallocate on every new chain.
func growCap(current, n int) int {
	c := max(current, 16)
	for c < n {
		c *= 2
	}
	return c
}

func (d *dispatcher) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled && !enabled {
		d.clearPendingLocked()
	}
	d.enabled = enabled
}

func (d *dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearPendingLocked()
}

// clearPendingLocked consumes all pending submissions, keeping their slices
// for reuse. Callers hold d.mu.
func (d *dispatcher) clearPendingLocked() {
	for _, sub := range d.submissions {
		sub.pending = false
	}
}

func (d *dispatcher) TotalParticleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mergedParticles)
}

func (d *dispatcher) TotalColliderCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mergedColliders)
}

func (d *dispatcher) RegisteredComponentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *dispatcher) UsingGPU() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device != nil && d.provider != nil && !d.gpuFailed
}

func (d *dispatcher) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging != nil {
		d.staging.Release()
		d.staging = nil
		d.stagingCap = 0
	}
	if d.provider != nil {
		d.provider.Release()
		d.provider = nil
	}
	if d.device != nil && d.ownsDevice {
		d.device.Release()
	}
	d.device = nil
	d.ownsDevice = false
	d.bindGroupReady = false
}
