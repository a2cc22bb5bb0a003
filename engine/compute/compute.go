package compute

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-chain/engine/compute/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-chain/engine/compute/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// device is the implementation of the Device interface.
type device struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType ComputeBackendType
	backend     ComputeBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	label                string
}

// Device defines the interface for the headless compute system.
//
// This is a high-level API designed to simplify compute dispatch into a streamlined and idiomatic flow.
// The Device manages a cache of compute pipelines, creates GPU resources for BindGroupProviders, and
// batches dispatches and buffer copies into single queue submissions. The Device also implements a
// backend which allows for multiple backend API implementations to exist.
//
// Unlike a windowed renderer there is no surface: the Device requests any compute-capable adapter
// and works entirely with buffers.
type Device interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding GPU
	// compute pipeline objects via the backend, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// InitBindGroup creates GPU buffers and a bind group from a layout descriptor and stores them
	// on the given BindGroupProvider. Buffer usage and size can be overridden per binding.
	// Buffers already present on the provider are kept, so releasing one buffer and calling
	// InitBindGroup again grows that binding in place.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags to OR into the derived usage, keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes to use instead of MinBindingSize, keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	// Each BufferWrite targets a specific buffer on a BindGroupProvider at a given binding and offset.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginComputeFrame creates a single command encoder for batching all compute dispatches
	// and buffer copies within a frame into one GPU submission. Must be paired with
	// EndComputeFrame after all DispatchCompute and CopyBufferToBuffer calls for the frame.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// EndComputeFrame finishes the batched compute command encoder and submits the resulting
	// command buffer to the GPU queue. Must be called after BeginComputeFrame and all
	// DispatchCompute calls for the frame.
	EndComputeFrame()

	// DispatchCompute looks up the cached compute Pipeline by key, then encodes a compute pass
	// within the current batched compute frame started by BeginComputeFrame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - computeProvider: the BindGroupProvider whose BindGroup will be set on the compute pass
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32)

	// CreateBuffer creates a standalone GPU buffer not owned by any provider.
	// Used for staging buffers that receive copies of storage buffers for CPU readback.
	//
	// Parameters:
	//   - label: a debug label for the buffer
	//   - size: the buffer size in bytes
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the created buffer
	//   - error: an error if the buffer could not be created
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// CopyBufferToBuffer encodes a buffer-to-buffer copy within the current batched compute
	// frame. The copy executes in submission order after any compute passes encoded before it,
	// so copying a storage buffer into a MapRead staging buffer after DispatchCompute captures
	// the kernel's output.
	//
	// Parameters:
	//   - src: the source buffer (must have CopySrc usage)
	//   - srcOffset: the byte offset into the source buffer
	//   - dst: the destination buffer (must have CopyDst or MapRead usage)
	//   - dstOffset: the byte offset into the destination buffer
	//   - size: the number of bytes to copy
	//
	// Returns:
	//   - error: an error if no compute frame is in progress or the copy could not be encoded
	CopyBufferToBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset uint64, size uint64) error

	// ReadBuffer maps a MapRead buffer, copies its contents to CPU memory, and unmaps it.
	// Blocks until the GPU has finished all submitted work touching the buffer. Must be
	// called after EndComputeFrame has submitted the commands that produced the data.
	//
	// Parameters:
	//   - buf: the buffer to read (must have MapRead usage)
	//   - size: the number of bytes to read from the start of the buffer
	//
	// Returns:
	//   - []byte: a copy of the buffer contents
	//   - error: an error if the buffer could not be mapped or read
	ReadBuffer(buf *wgpu.Buffer, size uint64) ([]byte, error)

	// Release releases all cached pipelines and the underlying GPU device, queue, adapter,
	// and instance. The Device must not be used after Release. BindGroupProviders created
	// by callers are not released here; callers release their own providers.
	Release()
}

var _ Device = &device{}

// NewDevice creates a new headless compute Device with the specified backend type.
// Unlike a windowed renderer, adapter acquisition can legitimately fail on machines
// without GPU support, so the error is returned for the caller to fall back on a
// CPU path instead of panicking.
//
// Parameters:
//   - backendType: the type of compute backend to use (e.g., WGPU)
//   - options: variadic list of DeviceBuilderOption functions to configure the Device
//
// Returns:
//   - Device: a new instance of Device configured with the specified backend and options
//   - error: an error if no compute-capable adapter or device could be acquired
func NewDevice(backendType ComputeBackendType, options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		label:         "Compute Device",
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(d)
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		backend, err := newWGPUComputeBackend(d.forceFallbackAdapter, d.label)
		if err != nil {
			return nil, err
		}
		d.backend = backend
	}

	return d, nil
}

func (d *device) Pipeline(key string) pipeline.Pipeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelineCache[key]
}

func (d *device) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := d.pipelineCache[key]; exists {
			continue
		}
		if err := d.backend.RegisterComputePipeline(p); err != nil {
			return err
		}
		d.pipelineCache[key] = p
	}
	return nil
}

func (d *device) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return d.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (d *device) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backend.WriteBuffers(writes)
}

func (d *device) BeginComputeFrame() error {
	return d.backend.BeginComputeFrame()
}

func (d *device) EndComputeFrame() {
	d.backend.EndComputeFrame()
}

func (d *device) DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.pipelineCache[pipelineKey]
	if !exists {
		return
	}

	d.backend.DispatchCompute(p, computeProvider, workGroupCount)
}

func (d *device) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return d.backend.CreateBuffer(label, size, usage)
}

func (d *device) CopyBufferToBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset uint64, size uint64) error {
	return d.backend.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

func (d *device) ReadBuffer(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	return d.backend.ReadBuffer(buf, size)
}

func (d *device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, p := range d.pipelineCache {
		p.Release()
		delete(d.pipelineCache, key)
	}
	if d.backend != nil {
		d.backend.Release()
		d.backend = nil
	}
}
