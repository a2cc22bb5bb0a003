package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-chain/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-chain/engine/simulator"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables per-tick throughput logging.
//
// Parameters:
//   - enabled: if true, enables per-tick throughput logging
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the simulation tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.tickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithDispatcher sets the shared dispatcher the engine flushes once after each
// tick. Simulators built with WithUseBatchedDispatcher submit into it during
// Update and rely on this flush; without a shared dispatcher every simulator
// flushes inline.
//
// Parameters:
//   - d: the shared dispatcher to flush each tick
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDispatcher(d dispatcher.Dispatcher) EngineBuilderOption {
	return func(e *engine) {
		e.dispatcher = d
	}
}

// WithSimulator registers a simulator at the given order key during engine
// construction. Simulators update in ascending key order during each tick.
//
// Parameters:
//   - key: the order key (lower updates first)
//   - sim: the Simulator to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSimulator(key int, sim simulator.Simulator) EngineBuilderOption {
	return func(e *engine) {
		e.simulators[key] = sim
	}
}

// WithTickCallback registers the per-tick callback during engine construction.
// The callback fires at the start of each tick, before simulator updates.
//
// Parameters:
//   - callback: function to call each tick, receiving the delta time in seconds
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickCallback(callback func(deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.tickCallback = callback
	}
}
