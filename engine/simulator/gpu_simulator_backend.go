package simulator

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-chain/logger"
)

// clientSeq hands out dispatcher client identities across all simulators.
var clientSeq atomic.Uint64

// gpuSimulatorBackend submits each prepared tick to a compute dispatcher and
// receives the stepped particles back through the Client interface. With a
// shared dispatcher the host controls the flush cadence and one merged
// dispatch serves every registered simulator; a private dispatcher is flushed
// inline so Update keeps the same synchronous semantics as the CPU backend.
type gpuSimulatorBackend struct {
	sim  *simulator
	id   uint64
	disp dispatcher.Dispatcher

	// owns marks a privately created dispatcher, released with the backend.
	owns bool
	// flushInline runs the dispatch inside step instead of leaving it to the
	// host's per-frame flush.
	flushInline bool

	// Submission snapshots, reused across ticks. The dispatcher converts them
	// during SubmitData, so they are free for reuse as soon as it returns.
	particles  []chain.Particle
	trees      []chain.Tree
	transforms []common.Mat4
	colliders  []chain.Collider
}

var _ dispatcher.Client = &gpuSimulatorBackend{}

func newGPUSimulatorBackend(s *simulator) *gpuSimulatorBackend {
	b := &gpuSimulatorBackend{
		sim: s,
		id:  clientSeq.Add(1),
	}
	if s.dispatcher != nil {
		b.disp = s.dispatcher
	} else {
		if s.batched {
			logger.Warn("batched dispatch requested without a shared dispatcher, using a private one")
		}
		b.disp = dispatcher.NewDispatcher()
		b.owns = true
	}
	b.flushInline = b.owns || !s.batched
	b.disp.Register(b)
	return b
}

// step snapshots the prepared simulation state and hands it to the
// dispatcher. The simulator mutex is released around the dispatcher calls:
// a flush delivers results through ApplyResults, which takes it back.
func (b *gpuSimulatorBackend) step(params chain.StepParams) {
	s := b.sim
	b.particles = append(b.particles[:0], s.particles...)
	b.trees = append(b.trees[:0], s.trees...)
	b.transforms = append(b.transforms[:0], s.transforms...)
	b.colliders = append(b.colliders[:0], s.colliders...)
	disp := b.disp

	s.mu.Unlock()
	disp.SubmitData(b, b.particles, b.trees, b.transforms, b.colliders, params)
	if b.flushInline {
		disp.Flush()
	}
	s.mu.Lock()
}

func (b *gpuSimulatorBackend) release() {
	b.disp.Unregister(b)
	if b.owns {
		b.disp.Release()
	}
}

// ID implements dispatcher.Client.
func (b *gpuSimulatorBackend) ID() uint64 {
	return b.id
}

// ApplyResults implements dispatcher.Client: it copies the stepped window
// back into the simulator and pushes the blended translations into the
// skeleton. The dispatcher holds its own lock here, so no dispatcher calls
// are allowed.
func (b *gpuSimulatorBackend) ApplyResults(particles []chain.GPUParticle) {
	s := b.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(particles) != len(s.particles) {
		// Topology changed between submit and flush; the window no longer
		// maps onto the current chains.
		return
	}
	for i := range particles {
		s.particles[i].ApplyGPU(&particles[i])
	}
	s.writeBackLocked()
}
