package pipeline

import (
	"github.com/Carmen-Shannon/oxy-chain/engine/shader"
)

// PipelineOption defines a function that configures a pipeline.
type PipelineOption func(*pipeline)

// WithShader attaches a compute kernel to the pipeline.
//
// Parameters:
//   - s: the kernel to attach
//
// Returns:
//   - PipelineOption: the option function
func WithShader(s shader.Shader) PipelineOption {
	return func(p *pipeline) {
		p.shader = s
	}
}
