package dispatcher

import (
	"github.com/Carmen-Shannon/oxy-chain/engine/compute"
)

// DispatcherBuilderOption is a function that configures a dispatcher during
// construction.
type DispatcherBuilderOption func(*dispatcher)

// WithDevice injects an existing compute Device instead of letting the
// dispatcher acquire its own. The caller keeps ownership: Release leaves an
// injected device alive. Use this when several dispatchers, or other compute
// workloads, share one adapter.
//
// Parameters:
//   - device: the compute device to dispatch on
//
// Returns:
//   - DispatcherBuilderOption: the option function
func WithDevice(device compute.Device) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.device = device
		d.ownsDevice = false
	}
}

// WithSoftwareStepping forces every flush to step the merged records on the
// CPU, skipping compute device acquisition entirely. Results are identical to
// the kernel's, so this is the option to reach for in tests and on hosts
// where GPU access is unwanted.
//
// Parameters:
//   - force: true to bypass the GPU
//
// Returns:
//   - DispatcherBuilderOption: the option function
func WithSoftwareStepping(force bool) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.softwareOnly = force
	}
}
