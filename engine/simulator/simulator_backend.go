package simulator

import "github.com/Carmen-Shannon/oxy-chain/engine/chain"

// SimulatorBackendType identifies which execution path a Simulator steps its
// chains on.
type SimulatorBackendType int

const (
	// BackendTypeCPU runs the step function directly, serially or in parallel
	// across independent chains.
	BackendTypeCPU SimulatorBackendType = iota

	// BackendTypeGPU hands each prepared tick to a compute dispatcher, either
	// a private instance or a shared batched one. When no compute device is
	// available the dispatcher steps the same records in software, so the GPU
	// backend never drops a tick.
	BackendTypeGPU
)

// simulatorBackend executes one prepared tick. step is invoked with the
// simulator's mutex held and must hold it again when it returns; the GPU
// backend releases it around dispatcher calls because result delivery
// (Client.ApplyResults) locks the simulator from the dispatcher's side.
type simulatorBackend interface {
	step(params chain.StepParams)
	release()
}
