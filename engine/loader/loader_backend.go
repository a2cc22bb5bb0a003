package loader

import "io"

// loaderBackend defines the generic interface for loading rigs from files or streams.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load performs a full rig import from the given file path.
	// This extracts the skeleton and its animations.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *Rig: the imported rig
	//   - error: error if loading fails
	Load(path string) (*Rig, error)

	// LoadSkeletonOnly imports only the bone hierarchy from the given file path.
	// Animation extraction is skipped.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *Rig: the imported rig with skeleton only
	//   - error: error if loading fails
	LoadSkeletonOnly(path string) (*Rig, error)

	// LoadReader imports a rig from a reader stream.
	//
	// Parameters:
	//   - r: the reader providing rig data
	//   - isGLB: true if the reader provides GLB binary data, false for text-based formats
	//
	// Returns:
	//   - *Rig: the imported rig
	//   - error: error if loading fails
	LoadReader(r io.Reader, isGLB bool) (*Rig, error)
}
