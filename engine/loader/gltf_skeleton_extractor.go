package loader

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// gltfSkeletonExtractorImpl is the implementation of the gltfSkeletonExtractor interface.
type gltfSkeletonExtractorImpl struct {
	parser gltfParser
}

// gltfSkeletonExtractor defines the interface for extracting bone hierarchies from a
// parsed glTF document. It converts glTF skins (or, for unskinned chain rigs, the
// plain node hierarchy) into engine-ready skeletons.
//
// Both extraction paths also return a node-to-bone mapping so the animation
// extractor can resolve glTF channel targets to bone indices. Bone names are
// made unique during extraction because the skeleton resolves roots and
// exclusions by name.
type gltfSkeletonExtractor interface {
	// ExtractSkinSkeleton builds a skeleton from a skin's joint nodes.
	//
	// Parameters:
	//   - skinIndex: the index of the skin to extract
	//
	// Returns:
	//   - *skeleton.Skeleton: the extracted skeleton
	//   - map[int]int32: glTF node index to bone index mapping
	//   - error: error if extraction fails
	ExtractSkinSkeleton(skinIndex int) (*skeleton.Skeleton, map[int]int32, error)

	// ExtractSceneSkeleton builds a skeleton from the default scene's node
	// hierarchy. This is the fallback for documents without skins, which is
	// common for chain rigs exported as bare transform trees.
	//
	// Returns:
	//   - *skeleton.Skeleton: the extracted skeleton
	//   - map[int]int32: glTF node index to bone index mapping
	//   - error: error if extraction fails
	ExtractSceneSkeleton() (*skeleton.Skeleton, map[int]int32, error)
}

var _ gltfSkeletonExtractor = &gltfSkeletonExtractorImpl{}

// newGLTFSkeletonExtractor creates a new skeleton extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfSkeletonExtractor: the skeleton extractor
func newGLTFSkeletonExtractor(parser gltfParser) gltfSkeletonExtractor {
	return &gltfSkeletonExtractorImpl{parser: parser}
}

func (e *gltfSkeletonExtractorImpl) ExtractSkinSkeleton(skinIndex int) (*skeleton.Skeleton, map[int]int32, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, fmt.Errorf("no document loaded")
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}

	skin := &doc.Skins[skinIndex]
	if len(skin.Joints) == 0 {
		return nil, nil, fmt.Errorf("skin %d has no joints", skinIndex)
	}

	jointToBone := make(map[int]int32, len(skin.Joints))
	for i, jointIndex := range skin.Joints {
		if jointIndex < 0 || jointIndex >= len(doc.Nodes) {
			return nil, nil, fmt.Errorf("joint %d: invalid node index %d", i, jointIndex)
		}
		jointToBone[jointIndex] = int32(i)
	}

	childToParent := gltfBuildParentMap(doc)

	bones := make([]skeleton.Bone, len(skin.Joints))
	names := newBoneNamer()

	for i, jointIndex := range skin.Joints {
		node := &doc.Nodes[jointIndex]
		bones[i].Name = names.unique(node.Name, i)
		bones[i].Local = gltfExtractNodeTransform(node)

		// Walk up through non-joint container nodes so chains stay connected
		// when exporters nest joints under plain transform groups. The
		// skipped containers' transforms fold into the bone's local.
		parent := -1
		nodeIdx := jointIndex
		for {
			p, ok := childToParent[nodeIdx]
			if !ok {
				break
			}
			if boneIdx, isJoint := jointToBone[p]; isJoint {
				parent = int(boneIdx)
				break
			}
			bones[i].Local = gltfComposeTransforms(gltfExtractNodeTransform(&doc.Nodes[p]), bones[i].Local)
			nodeIdx = p
		}
		bones[i].ParentIndex = int32(parent)
	}

	skel, err := skeleton.NewSkeleton(bones)
	if err != nil {
		return nil, nil, err
	}

	// NewSkeleton reorders bones parent-first, so final indices are
	// recovered by the unique names assigned above.
	nodeToBone := make(map[int]int32, len(skin.Joints))
	for i, jointIndex := range skin.Joints {
		nodeToBone[jointIndex] = skel.Find(bones[i].Name)
	}

	return skel, nodeToBone, nil
}

func (e *gltfSkeletonExtractorImpl) ExtractSceneSkeleton() (*skeleton.Skeleton, map[int]int32, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, fmt.Errorf("no document loaded")
	}
	if len(doc.Nodes) == 0 {
		return nil, nil, fmt.Errorf("document has no nodes")
	}

	roots := gltfSceneRoots(doc)
	if len(roots) == 0 {
		return nil, nil, fmt.Errorf("document has no root nodes")
	}

	var bones []skeleton.Bone
	boneNode := make([]int, 0, len(doc.Nodes))
	names := newBoneNamer()
	visited := make(map[int]bool, len(doc.Nodes))

	// Depth-first from the scene roots; visit order puts parents before
	// children, so parent indices always point at already-built bones.
	var walk func(nodeIdx, parentBone int) error
	walk = func(nodeIdx, parentBone int) error {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", nodeIdx)
		}
		if visited[nodeIdx] {
			return fmt.Errorf("node %d appears twice in the hierarchy", nodeIdx)
		}
		visited[nodeIdx] = true

		node := &doc.Nodes[nodeIdx]
		boneIdx := len(bones)
		bones = append(bones, skeleton.Bone{
			Name:        names.unique(node.Name, boneIdx),
			ParentIndex: int32(parentBone),
			Local:       gltfExtractNodeTransform(node),
		})
		boneNode = append(boneNode, nodeIdx)

		for _, child := range node.Children {
			if err := walk(child, boneIdx); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, -1); err != nil {
			return nil, nil, err
		}
	}

	skel, err := skeleton.NewSkeleton(bones)
	if err != nil {
		return nil, nil, err
	}

	nodeToBone := make(map[int]int32, len(bones))
	for i, nodeIdx := range boneNode {
		nodeToBone[nodeIdx] = skel.Find(bones[i].Name)
	}

	return skel, nodeToBone, nil
}

// --- Helper Functions ---

// gltfBuildParentMap inverts the children lists into a child-to-parent map.
func gltfBuildParentMap(doc *gltfDocument) map[int]int {
	childToParent := make(map[int]int)
	for nodeIdx := range doc.Nodes {
		for _, child := range doc.Nodes[nodeIdx].Children {
			childToParent[child] = nodeIdx
		}
	}
	return childToParent
}

// gltfSceneRoots returns the root node indices of the default scene, falling
// back to every node never referenced as a child when the document declares
// no scenes.
func gltfSceneRoots(doc *gltfDocument) []int {
	sceneIdx := 0
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if sceneIdx >= 0 && sceneIdx < len(doc.Scenes) && len(doc.Scenes[sceneIdx].Nodes) > 0 {
		return doc.Scenes[sceneIdx].Nodes
	}

	childToParent := gltfBuildParentMap(doc)
	var roots []int
	for i := range doc.Nodes {
		if _, hasParent := childToParent[i]; !hasParent {
			roots = append(roots, i)
		}
	}
	return roots
}

// boneNamer hands out unique bone names, falling back to a generated name
// for anonymous nodes. Duplicate names get a numeric suffix because the
// skeleton's name lookup must resolve each bone unambiguously.
type boneNamer struct {
	used map[string]bool
}

func newBoneNamer() *boneNamer {
	return &boneNamer{used: make(map[string]bool)}
}

func (n *boneNamer) unique(name string, boneIdx int) string {
	if name == "" {
		name = fmt.Sprintf("bone_%d", boneIdx)
	}
	candidate := name
	for i := 2; n.used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
	n.used[candidate] = true
	return candidate
}

// gltfExtractNodeTransform extracts TRS transform from a glTF node.
func gltfExtractNodeTransform(node *gltfNode) skeleton.Transform {
	if node.Matrix != nil {
		return gltfDecomposeMatrix(*node.Matrix)
	}

	transform := skeleton.DefaultTransform()
	if node.Translation != nil {
		transform.Translation = common.Vec3{X: node.Translation[0], Y: node.Translation[1], Z: node.Translation[2]}
	}
	if node.Rotation != nil {
		transform.Rotation = common.Quat{X: node.Rotation[0], Y: node.Rotation[1], Z: node.Rotation[2], W: node.Rotation[3]}
	}
	if node.Scale != nil {
		transform.Scale = common.Vec3{X: node.Scale[0], Y: node.Scale[1], Z: node.Scale[2]}
	}

	return transform
}

// gltfComposeTransforms returns the transform equivalent to applying b then a.
// Valid in the absence of shear, which TRS transforms cannot express anyway.
func gltfComposeTransforms(a, b skeleton.Transform) skeleton.Transform {
	scaled := common.Vec3{X: a.Scale.X * b.Translation.X, Y: a.Scale.Y * b.Translation.Y, Z: a.Scale.Z * b.Translation.Z}
	return skeleton.Transform{
		Translation: a.Translation.Add(a.Rotation.Rotate(scaled)),
		Rotation:    a.Rotation.Mul(b.Rotation).Normalize(),
		Scale:       common.Vec3{X: a.Scale.X * b.Scale.X, Y: a.Scale.Y * b.Scale.Y, Z: a.Scale.Z * b.Scale.Z},
	}
}

// gltfDecomposeMatrix decomposes a 4x4 column-major matrix into translation,
// rotation (quaternion), and scale. This is an approximation that assumes no shear.
func gltfDecomposeMatrix(m [16]float32) skeleton.Transform {
	var t skeleton.Transform

	// Extract translation (column 3)
	t.Translation = common.Vec3{X: m[12], Y: m[13], Z: m[14]}

	// Extract scale (length of each column)
	sx := gltfVectorLength(m[0], m[1], m[2])
	sy := gltfVectorLength(m[4], m[5], m[6])
	sz := gltfVectorLength(m[8], m[9], m[10])
	t.Scale = common.Vec3{X: sx, Y: sy, Z: sz}

	// Avoid division by zero
	if sx < 0.0001 {
		sx = 1
	}
	if sy < 0.0001 {
		sy = 1
	}
	if sz < 0.0001 {
		sz = 1
	}

	// Build the row-major rotation matrix from the column-major input,
	// normalizing each column by its scale.
	r := [9]float32{
		m[0] / sx, m[4] / sy, m[8] / sz,
		m[1] / sx, m[5] / sy, m[9] / sz,
		m[2] / sx, m[6] / sy, m[10] / sz,
	}

	t.Rotation = gltfMatrixToQuaternion(r)

	return t
}

// gltfVectorLength computes the length of a 3D vector.
func gltfVectorLength(x, y, z float32) float32 {
	return float32(math.Sqrt(float64(x*x + y*y + z*z)))
}

// gltfMatrixToQuaternion converts a 3x3 rotation matrix to a quaternion.
// Matrix is in row-major order: [r00, r01, r02, r10, r11, r12, r20, r21, r22].
func gltfMatrixToQuaternion(m [9]float32) common.Quat {
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[3], m[4], m[5]
	r20, r21, r22 := m[6], m[7], m[8]

	trace := r00 + r11 + r22

	var x, y, z, w float32

	if trace > 0 {
		s := float32(math.Sqrt(float64(trace+1.0))) * 2
		w = 0.25 * s
		x = (r21 - r12) / s
		y = (r02 - r20) / s
		z = (r10 - r01) / s
	} else if r00 > r11 && r00 > r22 {
		s := float32(math.Sqrt(float64(1.0+r00-r11-r22))) * 2
		w = (r21 - r12) / s
		x = 0.25 * s
		y = (r01 + r10) / s
		z = (r02 + r20) / s
	} else if r11 > r22 {
		s := float32(math.Sqrt(float64(1.0+r11-r00-r22))) * 2
		w = (r02 - r20) / s
		x = (r01 + r10) / s
		y = 0.25 * s
		z = (r12 + r21) / s
	} else {
		s := float32(math.Sqrt(float64(1.0+r22-r00-r11))) * 2
		w = (r10 - r01) / s
		x = (r02 + r20) / s
		y = (r12 + r21) / s
		z = 0.25 * s
	}

	return common.Quat{X: x, Y: y, Z: z, W: w}.Normalize()
}
