package skeleton

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-chain/common"
)

// Transform is a bone's transform relative to its parent.
type Transform struct {
	// Translation is the position offset.
	Translation common.Vec3

	// Rotation is the orientation as a quaternion.
	Rotation common.Quat

	// Scale is the scale factor along each axis.
	Scale common.Vec3
}

// DefaultTransform returns an identity transform (zero translation, identity
// rotation, unit scale).
func DefaultTransform() Transform {
	return Transform{
		Rotation: common.QuatIdentity(),
		Scale:    common.Vec3{X: 1, Y: 1, Z: 1},
	}
}

// Bone represents a single bone in a hierarchy.
type Bone struct {
	// Name is the bone's identifier (for lookup and debugging).
	Name string

	// ParentIndex is the index of the parent bone (-1 for root bones).
	ParentIndex int32

	// Local is the bone's transform relative to its parent.
	// The simulator writes simulated translations back into it each tick.
	Local Transform
}

// Skeleton is a bone hierarchy stored as a flat array in parent-before-child
// order. It is the simulator's input collaborator: it supplies world bone
// positions before each step and receives simulated local translations after.
type Skeleton struct {
	bones       []Bone
	nameToIndex map[string]int32
	children    [][]int32

	world      []common.Mat4
	worldDirty bool
}

// NewSkeleton builds a Skeleton from the given bones. The input may be in any
// order; bones are topologically sorted so every parent precedes its children
// and parent indices are remapped accordingly.
//
// Parameters:
//   - bones: the bone array; ParentIndex must be -1 or a valid index into it
//
// Returns:
//   - *Skeleton: the sorted skeleton
//   - error: if a parent index is out of range or the hierarchy contains a cycle
func NewSkeleton(bones []Bone) (*Skeleton, error) {
	for i, b := range bones {
		if b.ParentIndex >= 0 && (int(b.ParentIndex) >= len(bones) || int(b.ParentIndex) == i) {
			return nil, fmt.Errorf("skeleton: bone %q has invalid parent index %d", b.Name, b.ParentIndex)
		}
	}

	sorted, err := sortHierarchy(bones)
	if err != nil {
		return nil, err
	}

	s := &Skeleton{
		bones:       sorted,
		nameToIndex: make(map[string]int32, len(sorted)),
		children:    make([][]int32, len(sorted)),
		world:       make([]common.Mat4, len(sorted)),
		worldDirty:  true,
	}
	for i, b := range sorted {
		s.nameToIndex[b.Name] = int32(i)
		if b.ParentIndex >= 0 {
			s.children[b.ParentIndex] = append(s.children[b.ParentIndex], int32(i))
		}
	}
	return s, nil
}

// sortHierarchy orders bones parent-before-child via BFS from the roots and
// remaps parent indices to the new order. Bones unreachable from any root
// (cyclic parent links) are an error.
func sortHierarchy(bones []Bone) ([]Bone, error) {
	if len(bones) == 0 {
		return nil, nil
	}

	children := make(map[int32][]int32)
	queue := make([]int32, 0, len(bones))
	for i, b := range bones {
		if b.ParentIndex < 0 {
			queue = append(queue, int32(i))
		} else {
			children[b.ParentIndex] = append(children[b.ParentIndex], int32(i))
		}
	}

	sorted := make([]int32, 0, len(bones))
	for len(queue) > 0 {
		oldIdx := queue[0]
		queue = queue[1:]
		sorted = append(sorted, oldIdx)
		queue = append(queue, children[oldIdx]...)
	}

	if len(sorted) < len(bones) {
		return nil, fmt.Errorf("skeleton: %d bone(s) unreachable from any root (cyclic parent links)", len(bones)-len(sorted))
	}

	oldToNew := make(map[int32]int32, len(sorted))
	for newIdx, oldIdx := range sorted {
		oldToNew[oldIdx] = int32(newIdx)
	}

	out := make([]Bone, len(bones))
	for newIdx, oldIdx := range sorted {
		b := bones[oldIdx]
		if b.ParentIndex >= 0 {
			b.ParentIndex = oldToNew[b.ParentIndex]
		}
		out[newIdx] = b
	}
	return out, nil
}

// BoneCount returns the number of bones.
func (s *Skeleton) BoneCount() int {
	return len(s.bones)
}

// Bone returns a copy of the bone at index i.
func (s *Skeleton) Bone(i int32) Bone {
	return s.bones[i]
}

// Find returns the index of the bone with the given name, or -1 if absent.
func (s *Skeleton) Find(name string) int32 {
	if i, ok := s.nameToIndex[name]; ok {
		return i
	}
	return -1
}

// Children returns the child indices of bone i. The returned slice is owned
// by the skeleton and must not be mutated.
func (s *Skeleton) Children(i int32) []int32 {
	return s.children[i]
}

// SetLocalTranslation sets bone i's local translation and marks world
// transforms dirty.
//
// Parameters:
//   - i: the bone index
//   - t: the new local translation
func (s *Skeleton) SetLocalTranslation(i int32, t common.Vec3) {
	s.bones[i].Local.Translation = t
	s.worldDirty = true
}

// SetLocalRotation sets bone i's local rotation and marks world transforms dirty.
//
// Parameters:
//   - i: the bone index
//   - r: the new local rotation
func (s *Skeleton) SetLocalRotation(i int32, r common.Quat) {
	s.bones[i].Local.Rotation = r
	s.worldDirty = true
}

// SetLocalTransform replaces bone i's full local transform and marks world
// transforms dirty.
//
// Parameters:
//   - i: the bone index
//   - t: the new local transform
func (s *Skeleton) SetLocalTransform(i int32, t Transform) {
	s.bones[i].Local = t
	s.worldDirty = true
}

// UpdateWorldTransforms recomputes every bone's world matrix in index order.
// Parent-before-child ordering guarantees each parent's world matrix is final
// before its children compose against it. No-op if nothing changed since the
// last call.
func (s *Skeleton) UpdateWorldTransforms() {
	if !s.worldDirty {
		return
	}
	for i, b := range s.bones {
		local := common.Mat4TRS(b.Local.Translation, b.Local.Rotation, b.Local.Scale)
		if b.ParentIndex >= 0 {
			s.world[i] = s.world[b.ParentIndex].Mul(local)
		} else {
			s.world[i] = local
		}
	}
	s.worldDirty = false
}

// WorldMatrix returns bone i's world matrix, refreshing world transforms if
// any local transform changed since the last update.
//
// Parameters:
//   - i: the bone index
//
// Returns:
//   - common.Mat4: the bone's local-to-world matrix
func (s *Skeleton) WorldMatrix(i int32) common.Mat4 {
	s.UpdateWorldTransforms()
	return s.world[i]
}

// WorldPosition returns bone i's world-space position.
func (s *Skeleton) WorldPosition(i int32) common.Vec3 {
	return s.WorldMatrix(i).Translation()
}
