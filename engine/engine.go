package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-chain/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-chain/engine/profiler"
	"github.com/Carmen-Shannon/oxy-chain/engine/simulator"
	"github.com/Carmen-Shannon/oxy-chain/logger"

	"go.uber.org/zap"
)

// engine implements the Engine interface.
// Coordinates the fixed-rate simulation thread and the shared dispatch flush.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	dispatcher dispatcher.Dispatcher

	profiler         *profiler.Profiler
	profilingEnabled bool

	tickRate     time.Duration
	tickCallback func(deltaTime float32)

	simulators map[int]simulator.Simulator
}

// Engine is the frame host for chain simulation.
// Each tick it fires the tick callback so the host can pose skeletons, updates
// every registered simulator in key order, and flushes the shared dispatcher
// once so batched components ride a single GPU submission.
type Engine interface {
	// EnableProfiler enables per-tick throughput logging.
	EnableProfiler()

	// DisableProfiler disables per-tick throughput logging.
	DisableProfiler()

	// SetTickRate sets the simulation tick rate in ticks per second.
	// If the engine is running, the change takes effect immediately.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called at the start of each tick,
	// before any simulator updates. Use this to pose skeletons from animation
	// clips or gameplay so the simulators see the frame's target pose.
	//
	// Parameters:
	//   - callback: function to call each tick, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// AddSimulator registers a simulator at the given key.
	// Simulators update in ascending key order during each tick.
	//
	// Parameters:
	//   - key: the order key (lower updates first)
	//   - sim: the Simulator to register
	AddSimulator(key int, sim simulator.Simulator)

	// RemoveSimulator removes the simulator at the given key.
	// The simulator is not released; the caller keeps ownership.
	//
	// Parameters:
	//   - key: the order key of the simulator to remove
	RemoveSimulator(key int)

	// Simulator retrieves the simulator registered at the given key.
	// Returns nil if no simulator exists at that key.
	//
	// Parameters:
	//   - key: the order key of the simulator to retrieve
	//
	// Returns:
	//   - simulator.Simulator: the simulator at the key, or nil if not found
	Simulator(key int) simulator.Simulator

	// Simulators returns a copy of all registered simulators keyed by order.
	//
	// Returns:
	//   - map[int]simulator.Simulator: a copy of the simulators map
	Simulators() map[int]simulator.Simulator

	// Dispatcher returns the shared dispatcher flushed after each tick, or nil
	// when every registered simulator flushes inline.
	//
	// Returns:
	//   - dispatcher.Dispatcher: the shared dispatcher, or nil
	Dispatcher() dispatcher.Dispatcher

	// Step advances one tick inline without the loop: callback, simulator
	// updates, dispatcher flush. Hosts that own their frame loop call this once
	// per frame instead of Run.
	//
	// Parameters:
	//   - deltaTime: elapsed frame time in seconds
	Step(deltaTime float32)

	// Run starts the simulation loop (blocks until Quit is called).
	Run()

	// Quit signals the simulation loop to stop and unblocks Run.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release frees every registered simulator and the shared dispatcher.
	// Call after the loop has stopped.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Initializes the profiler and tick rate with sensible defaults.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, simulators, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		simulators:      make(map[int]simulator.Simulator),
		profiler:        profiler.NewProfiler(),
		tickRate:        time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	return e
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	e.handle()
	e.wg.Wait()
}

// Quit signals the simulation goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

// handle launches the simulation and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleSimulation()
	go e.handleQuit()
}

// handleSimulation runs the fixed-rate tick loop in its own goroutine.
// Fires ticks at the configured rate and listens for dynamic rate changes via
// tickRateChannel. Recovers from panics to avoid crashing the whole process
// and signals quit on recovery. Exits when the quit channel is closed.
func (e *engine) handleSimulation() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("simulation goroutine recovered from panic", zap.Any("panic", r))
			e.signalQuit()
		}
	}()

	ticker := time.NewTicker(e.currentTickRate())
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.tickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// tick runs one simulation frame: the tick callback first so the host can pose
// skeletons, then every simulator in ascending key order, then one dispatcher
// flush. The snapshot is taken under the lock so registration changes from
// other goroutines take effect on the next tick.
func (e *engine) tick(deltaTime float32) {
	e.mu.Lock()
	callback := e.tickCallback
	disp := e.dispatcher
	keys := make([]int, 0, len(e.simulators))
	for k := range e.simulators {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	sims := make([]simulator.Simulator, len(keys))
	for i, k := range keys {
		sims[i] = e.simulators[k]
	}
	e.mu.Unlock()

	start := time.Now()

	if callback != nil {
		callback(deltaTime)
	}

	particles := 0
	for _, sim := range sims {
		sim.Update(deltaTime)
		particles += sim.ParticleCount()
	}

	if disp != nil {
		disp.Flush()
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Step(particles, time.Since(start))
	}
}

func (e *engine) Step(deltaTime float32) {
	e.tick(deltaTime)
}

// EnableProfiler enables per-tick throughput logging.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables per-tick throughput logging.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// currentTickRate reads the tick rate under the lock.
func (e *engine) currentTickRate() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickRate
}

// SetTickRate sets the simulation tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.tickRate = newRate
	}
	e.mu.Unlock()

	if running {
		// Send to channel for immediate update in the running loop.
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			// Channel has a pending update, drain and send new value
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	}
}

// SetTickCallback registers the function called at the start of each tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) AddSimulator(key int, sim simulator.Simulator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.simulators[key] = sim
}

func (e *engine) RemoveSimulator(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.simulators, key)
}

func (e *engine) Simulator(key int) simulator.Simulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simulators[key]
}

func (e *engine) Simulators() map[int]simulator.Simulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]simulator.Simulator, len(e.simulators))
	for k, v := range e.simulators {
		cp[k] = v
	}
	return cp
}

func (e *engine) Dispatcher() dispatcher.Dispatcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher
}

// Release frees every registered simulator, then the shared dispatcher.
// Simulators unregister from the dispatcher during their own release, so the
// dispatcher goes down last.
func (e *engine) Release() {
	e.mu.Lock()
	sims := make([]simulator.Simulator, 0, len(e.simulators))
	for _, s := range e.simulators {
		sims = append(sims, s)
	}
	e.simulators = make(map[int]simulator.Simulator)
	disp := e.dispatcher
	e.dispatcher = nil
	e.mu.Unlock()

	for _, s := range sims {
		s.Release()
	}
	if disp != nil {
		disp.Release()
	}
}
