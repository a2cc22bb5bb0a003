package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupProviderOption defines a function that configures a bindGroupProvider.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBindGroup sets a pre-created bind group on the provider.
//
// Parameters:
//   - bg: the bind group to set
//
// Returns:
//   - BindGroupProviderOption: the option function
func WithBindGroup(bg *wgpu.BindGroup) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroup = bg
	}
}

// WithBindGroupLayout sets a pre-created bind group layout on the provider.
// Providers sharing a layout across identical kernels can reuse one layout
// instead of creating a new layout per provider.
//
// Parameters:
//   - bgl: the bind group layout to set
//
// Returns:
//   - BindGroupProviderOption: the option function
func WithBindGroupLayout(bgl *wgpu.BindGroupLayout) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroupLayout = bgl
	}
}

// WithBuffer sets a pre-created buffer for a specific binding index.
//
// Parameters:
//   - binding: the binding index for the buffer
//   - buf: the buffer to set
//
// Returns:
//   - BindGroupProviderOption: the option function
func WithBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		if p.buffers == nil {
			p.buffers = make(map[int]*wgpu.Buffer)
		}
		p.buffers[binding] = buf
	}
}

// WithBuffers sets multiple pre-created buffers, keyed by binding index.
//
// Parameters:
//   - buffers: a map of buffers keyed by binding index
//
// Returns:
//   - BindGroupProviderOption: the option function
func WithBuffers(buffers map[int]*wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers = buffers
	}
}
