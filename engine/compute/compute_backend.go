package compute

// ComputeBackendType identifies the GPU backend implementation used by the Device.
type ComputeBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based compute backend.
	BackendTypeWGPU ComputeBackendType = iota
)

// ComputeBackend is the top-level backend interface for the compute Device.
// It embeds the concrete backend interface for the selected GPU API.
type ComputeBackend interface {
	wgpuComputeBackend
}
