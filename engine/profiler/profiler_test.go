package profiler

import (
	"testing"
	"time"
)

func TestStepAggregatesUntilInterval(t *testing.T) {
	p := NewProfiler()
	p.updateInterval = 50 * time.Millisecond

	if p.Step(100, time.Millisecond) {
		t.Fatal("logged before the interval elapsed")
	}
	if p.steps != 1 || p.particles != 100 {
		t.Fatalf("steps = %d, particles = %d, want 1 and 100", p.steps, p.particles)
	}

	time.Sleep(60 * time.Millisecond)
	if !p.Step(200, 2*time.Millisecond) {
		t.Fatal("interval elapsed but nothing was logged")
	}
	if p.steps != 0 || p.particles != 0 || p.stepMax != 0 {
		t.Fatal("aggregates were not reset after logging")
	}
}
