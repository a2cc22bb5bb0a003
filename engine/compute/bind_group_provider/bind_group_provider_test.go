package bind_group_provider

import (
	"testing"
)

func TestNewBindGroupProviderLabel(t *testing.T) {
	p := NewBindGroupProvider("Chain Dispatch")
	if p.Label() != "Chain Dispatch" {
		t.Errorf("Label() = %q, want %q", p.Label(), "Chain Dispatch")
	}
}

func TestProviderStartsEmpty(t *testing.T) {
	p := NewBindGroupProvider("empty")
	if p.BindGroup() != nil {
		t.Error("BindGroup() should be nil before initialization")
	}
	if p.BindGroupLayout() != nil {
		t.Error("BindGroupLayout() should be nil before initialization")
	}
	if p.Buffer(0) != nil {
		t.Error("Buffer(0) should be nil before initialization")
	}
	if got := len(p.Buffers()); got != 0 {
		t.Errorf("len(Buffers()) = %d, want 0", got)
	}
}

func TestBufferBookkeeping(t *testing.T) {
	// nil *wgpu.Buffer values stand in for real GPU buffers; the provider only
	// tracks them by binding index and never dereferences on the Set/Get path.
	p := NewBindGroupProvider("bookkeeping")

	p.SetBuffer(3, nil)
	if _, ok := p.Buffers()[3]; !ok {
		t.Error("SetBuffer(3, nil) should record binding 3 in the buffers map")
	}
	if p.Buffer(7) != nil {
		t.Error("Buffer(7) should be nil for an unset binding")
	}

	p.ReleaseBuffer(3)
	if _, ok := p.Buffers()[3]; ok {
		t.Error("ReleaseBuffer(3) should remove binding 3 from the buffers map")
	}

	// Releasing an unset binding is a no-op.
	p.ReleaseBuffer(42)
}

func TestSetBuffersReplacesMap(t *testing.T) {
	p := NewBindGroupProvider("replace")
	p.SetBuffer(0, nil)
	p.SetBuffer(1, nil)

	p.SetBuffers(nil)
	if p.Buffer(0) != nil || p.Buffer(1) != nil {
		t.Error("SetBuffers(nil) should drop previously tracked buffers")
	}

	// SetBuffer after a nil map replacement must re-allocate the map.
	p.SetBuffer(2, nil)
	if _, ok := p.Buffers()[2]; !ok {
		t.Error("SetBuffer after SetBuffers(nil) should track the new binding")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := NewBindGroupProvider("release")
	p.SetBuffer(0, nil)
	p.SetBuffer(1, nil)

	p.Release()
	if got := len(p.Buffers()); got != 0 {
		t.Errorf("len(Buffers()) after Release = %d, want 0", got)
	}

	// Second release must not panic on already-cleared resources.
	p.Release()
	p.ReleaseBindGroup()
}

func TestWithBufferOption(t *testing.T) {
	p := NewBindGroupProvider("opts", WithBuffer(5, nil))
	if _, ok := p.Buffers()[5]; !ok {
		t.Error("WithBuffer(5, nil) should pre-populate binding 5")
	}
}
