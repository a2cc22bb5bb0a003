package pipeline

import (
	"github.com/Carmen-Shannon/oxy-chain/engine/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// pipeline is the unexported implementation of Pipeline.
type pipeline struct {
	// pipelineKey uniquely identifies this pipeline in the Device's cache.
	pipelineKey string
	// shader is the compute kernel this pipeline executes.
	shader shader.Shader
	// computePipeline is the GPU pipeline object, set by the Device during registration.
	computePipeline *wgpu.ComputePipeline
}

// Pipeline wraps a compute kernel together with its GPU pipeline object.
// A Pipeline starts life as a key plus a shader; Device.RegisterPipelines compiles
// the kernel and fills in the GPU object.
type Pipeline interface {
	// PipelineKey returns the unique key identifying this pipeline.
	//
	// Returns:
	//   - string: the pipeline key
	PipelineKey() string

	// Shader returns the compute kernel attached to this pipeline, or nil if none was set.
	//
	// Returns:
	//   - shader.Shader: the attached kernel
	Shader() shader.Shader

	// Pipeline returns the GPU compute pipeline, or nil if the pipeline has not been
	// registered with a Device yet.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the GPU pipeline object or nil
	Pipeline() *wgpu.ComputePipeline

	// SetComputePipeline stores the GPU pipeline object after registration.
	// Called by Device.RegisterPipelines.
	//
	// Parameters:
	//   - p: the created compute pipeline
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release releases the GPU pipeline object if one was created.
	Release()
}

// Compile-time check that pipeline implements Pipeline
var _ Pipeline = &pipeline{}

// NewPipeline creates a new Pipeline with the provided key and options.
//
// Parameters:
//   - pipelineKey: a unique key identifying this pipeline
//   - options: a variadic list of options to configure the pipeline
//
// Returns:
//   - Pipeline: a new instance of Pipeline configured with the provided options
func NewPipeline(pipelineKey string, options ...PipelineOption) Pipeline {
	p := &pipeline{
		pipelineKey: pipelineKey,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) Pipeline() *wgpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) Release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
