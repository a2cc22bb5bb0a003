package simulator

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
)

// stepQueueSize accommodates typical chain counts with headroom.
const stepQueueSize = 256

// cpuSimulatorBackend steps chains in place with the step function. With a
// worker pool configured, independent chains fan out across workers; particle
// ranges of distinct trees never overlap, so they share the particle slice
// without coordination. Order within a chain is always parent-before-child.
type cpuSimulatorBackend struct {
	sim *simulator

	// pool manages a bounded set of reusable goroutines for the parallel
	// path. Workers persist across ticks, avoiding per-tick goroutine spawn
	// overhead. Nil when the simulator is configured serial.
	pool worker.DynamicWorkerPool
}

func newCPUSimulatorBackend(s *simulator) *cpuSimulatorBackend {
	b := &cpuSimulatorBackend{sim: s}
	if s.workers > 0 {
		b.pool = worker.NewDynamicWorkerPool(s.workers, stepQueueSize, 1*time.Second)
	}
	return b
}

func (b *cpuSimulatorBackend) step(params chain.StepParams) {
	s := b.sim
	if b.pool == nil || len(s.trees) < 2 {
		chain.Step(s.particles, s.trees, s.transforms, s.colliders, params)
		s.writeBackLocked()
		return
	}

	// A WaitGroup provides the per-tick barrier since pool.Wait() blocks until
	// workers idle-exit, which is unsuitable for frame-rate workloads.
	var wg sync.WaitGroup
	for t := range s.trees {
		wg.Add(1)
		tree := s.trees[t : t+1]
		b.pool.SubmitTask(worker.Task{
			ID: t,
			Do: func() (any, error) {
				defer wg.Done()
				chain.Step(s.particles, tree, s.transforms, s.colliders, params)
				return nil, nil
			},
		})
	}
	wg.Wait()
	s.writeBackLocked()
}

func (b *cpuSimulatorBackend) release() {
	// Pool workers exit on their idle timeout; no explicit shutdown needed.
}
