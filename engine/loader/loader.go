// Package loader imports skeleton rigs from glTF/GLB files. A rig bundles the
// bone hierarchy with its animation clips; the host poses the skeleton from a
// clip each frame and the chain simulator layers secondary motion on top.
package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// LoaderBackendType identifies the rig file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// Rig is an imported bone hierarchy with its animation clips.
type Rig struct {
	// Name identifies the rig, from the document's scene name or the file name.
	Name string

	// Skeleton is the imported bone hierarchy.
	Skeleton *skeleton.Skeleton

	// Animations are the clips targeting the skeleton. Empty for
	// skeleton-only loads and documents without animations.
	Animations []*Animation
}

// Animation returns the clip with the given name, or nil if the rig has none.
//
// Parameters:
//   - name: the clip name to look up
//
// Returns:
//   - *Animation: the matching clip or nil
func (r *Rig) Animation(name string) *Animation {
	for _, a := range r.Animations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	rigCache map[string]*Rig

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching rigs.
// It abstracts the file format (glTF, GLB) behind a generic backend and
// manages a cache of previously loaded rigs.
type Loader interface {
	// Load imports a rig file and caches the result.
	// If the rig is already cached (by file path), the cached version is returned.
	// The backend is selected based on the file extension (.gltf/.glb → glTF backend).
	//
	// Parameters:
	//   - path: the file path to the rig file
	//
	// Returns:
	//   - *Rig: the loaded and cached rig
	//   - error: error if loading fails
	Load(path string) (*Rig, error)

	// LoadSkeletonOnly imports only the bone hierarchy, skipping animations.
	// Useful when clips are authored elsewhere and only the skeleton feeds
	// the simulator.
	//
	// Parameters:
	//   - path: the file path to the rig file
	//
	// Returns:
	//   - *Rig: the loaded rig (skeleton only)
	//   - error: error if loading fails
	LoadSkeletonOnly(path string) (*Rig, error)

	// LoadReader imports a rig from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded rig
	//   - r: the reader providing rig data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *Rig: the loaded rig
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*Rig, error)

	// Get retrieves a cached rig by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - *Rig: the cached rig or nil
	Get(name string) *Rig

	// Rigs returns the full rig cache.
	//
	// Returns:
	//   - map[string]*Rig: all cached rigs keyed by name
	Rigs() map[string]*Rig
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:       sync.RWMutex{},
		rigCache: make(map[string]*Rig),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*Rig, error) {
	l.mu.RLock()
	if cached, ok := l.rigCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	rig, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	l.mu.Lock()
	l.rigCache[path] = rig
	l.mu.Unlock()

	return rig, nil
}

func (l *loader) LoadSkeletonOnly(path string) (*Rig, error) {
	l.mu.RLock()
	if cached, ok := l.rigCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	rig, err := backend.LoadSkeletonOnly(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	l.mu.Lock()
	l.rigCache[path] = rig
	l.mu.Unlock()

	return rig, nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*Rig, error) {
	l.mu.RLock()
	if cached, ok := l.rigCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	rig, err := l.backend.LoadReader(r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	if rig.Name == unnamedRigName && name != "" {
		rig.Name = name
	}

	l.mu.Lock()
	l.rigCache[name] = rig
	l.mu.Unlock()

	return rig, nil
}

func (l *loader) Get(name string) *Rig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rigCache[name]
}

func (l *loader) Rigs() map[string]*Rig {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*Rig, len(l.rigCache))
	for k, v := range l.rigCache {
		result[k] = v
	}
	return result
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported rig format: %s", ext)
	}
}
