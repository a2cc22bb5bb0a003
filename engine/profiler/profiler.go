// Package profiler reports simulation throughput and memory pressure while
// tuning chains. It is sampling-only; nothing here feeds back into stepping.
package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-chain/logger"

	"go.uber.org/zap"
)

// Profiler aggregates per-step timings and logs a summary line at a fixed
// interval: steps per second, particle throughput, step latency, heap usage,
// allocation rate and GC pauses.
type Profiler struct {
	steps          int
	particles      int64
	stepTotal      time.Duration
	stepMax        time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a Profiler that logs once per second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Step records one simulator update and logs the aggregated statistics when
// the reporting interval has elapsed.
//
// Parameters:
//   - particles: how many particles the update simulated
//   - d: how long the update took
//
// Returns:
//   - bool: true if stats were logged this call, false otherwise
func (p *Profiler) Step(particles int, d time.Duration) bool {
	p.steps++
	p.particles += int64(particles)
	p.stepTotal += d
	if d > p.stepMax {
		p.stepMax = d
	}

	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	stepsPerSec := float64(p.steps) / elapsed.Seconds()
	particlesPerSec := float64(p.particles) / elapsed.Seconds()
	avgStepMs := 0.0
	if p.steps > 0 {
		avgStepMs = p.stepTotal.Seconds() * 1000 / float64(p.steps)
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap, TotalAlloc is cumulative churn, Sys is the OS
	// footprint.
	heapMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses.
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	logger.Info("simulation stats",
		zap.Float64("steps_per_sec", stepsPerSec),
		zap.Float64("particles_per_sec", particlesPerSec),
		zap.Float64("avg_step_ms", avgStepMs),
		zap.Float64("max_step_ms", p.stepMax.Seconds()*1000),
		zap.Float64("heap_mb", heapMB),
		zap.Float64("alloc_rate_mb_per_sec", allocRateMB),
		zap.Uint32("gc_count", gcCount),
		zap.Uint64("gc_last_pause_us", lastPauseUs),
		zap.Uint64("gc_max_pause_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	)

	p.steps = 0
	p.particles = 0
	p.stepTotal = 0
	p.stepMax = 0
	p.lastTime = now
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
