package dispatcher

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-chain/engine/shader"
)

// KernelKey is the pipeline cache key for the chain step compute kernel.
const KernelKey = "chain_step"

// KernelWorkgroupSize is the kernel's @workgroup_size x dimension. One
// workgroup steps one chain, with particle slots distributed across the
// workgroup's invocations.
const KernelWorkgroupSize = 64

// kernelSource is the annotated WGSL source of the chain step kernel. Struct
// definitions and bind group declarations are generated by the shader
// pre-processor from @oxy: annotations, keeping the WGSL structs and the Go
// upload path defined in exactly one place.
//
//go:embed assets/chain_step.wgsl
var kernelSource string

// NewKernel parses the embedded chain step kernel into a Shader ready for
// pipeline registration. Each dispatcher owns its own instance so binding
// metadata lookups never share state.
//
// Returns:
//   - shader.Shader: the processed chain step kernel
func NewKernel() shader.Shader {
	return shader.NewShader(KernelKey, kernelSource)
}
