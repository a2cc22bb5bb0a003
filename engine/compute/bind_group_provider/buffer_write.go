package bind_group_provider

// BufferWrite describes a pending write to a provider-owned GPU buffer.
// The compute Device consumes a batch of BufferWrites in a single call so that
// per-frame uploads for one dispatch travel together.
type BufferWrite struct {
	// Provider is the owner of the target buffer.
	Provider BindGroupProvider
	// Binding is the binding index of the target buffer within the provider.
	Binding int
	// Offset is the byte offset into the target buffer.
	Offset uint64
	// Data is the raw bytes to upload.
	Data []byte
}
