package loader

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// sceneGLTF is an unskinned three-bone chain with a sway clip. The embedded
// buffer holds two keyframe times [0, 1], two root translations [(0,0,0),
// (1,0,0)], and two mid rotations [identity, 90 degrees about Z].
const sceneGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"name": "tail_rig", "nodes": [0]}],
	"nodes": [
		{"name": "root", "translation": [0, 1, 0], "children": [1]},
		{"name": "mid", "translation": [0, -0.5, 0], "children": [2]},
		{"name": "tip", "translation": [0, -0.5, 0]}
	],
	"buffers": [{"uri": "data:application/octet-stream;base64,AAAAAAAAgD8AAAAAAAAAAAAAAAAAAIA/AAAAAAAAAAAAAAAAAAAAAAAAAAAAAIA/AAAAAAAAAADzBDU/8wQ1Pw==", "byteLength": 64}],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 8},
		{"buffer": 0, "byteOffset": 8, "byteLength": 24},
		{"buffer": 0, "byteOffset": 32, "byteLength": 32}
	],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 2, "type": "SCALAR"},
		{"bufferView": 1, "componentType": 5126, "count": 2, "type": "VEC3"},
		{"bufferView": 2, "componentType": 5126, "count": 2, "type": "VEC4"}
	],
	"animations": [{
		"name": "sway",
		"channels": [
			{"sampler": 0, "target": {"node": 0, "path": "translation"}},
			{"sampler": 1, "target": {"node": 1, "path": "rotation"}}
		],
		"samplers": [
			{"input": 0, "output": 1},
			{"input": 0, "output": 2}
		]
	}]
}`

// skinGLTF nests three joints under a non-joint armature node so the
// container's transform must fold into the root bone.
const skinGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0]}],
	"nodes": [
		{"name": "armature", "translation": [0, 2, 0], "children": [1]},
		{"name": "hip", "translation": [0, 0.5, 0], "children": [2]},
		{"name": "spine", "translation": [0, -0.4, 0], "children": [3]},
		{"name": "tail", "translation": [0, -0.4, 0]}
	],
	"skins": [{"joints": [1, 2, 3]}]
}`

// writeFixture writes doc to a temp file and returns its path.
func writeFixture(t *testing.T, name, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// buildGLB wraps a glTF JSON document in a GLB container with a single JSON chunk.
func buildGLB(t *testing.T, doc string) []byte {
	t.Helper()
	jsonBytes := []byte(doc)
	for len(jsonBytes)%4 != 0 {
		jsonBytes = append(jsonBytes, ' ')
	}

	var buf bytes.Buffer
	header := []uint32{gltfGLBMagic, gltfGLBVersion, uint32(12 + 8 + len(jsonBytes)), uint32(len(jsonBytes)), gltfGLBChunkJSON}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write GLB header: %v", err)
		}
	}
	buf.Write(jsonBytes)
	return buf.Bytes()
}

func loadSceneRig(t *testing.T) *Rig {
	t.Helper()
	l := NewLoader(BackendTypeGLTF)
	rig, err := l.Load(writeFixture(t, "tail.gltf", sceneGLTF))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return rig
}

func TestLoadSceneRig(t *testing.T) {
	rig := loadSceneRig(t)

	if rig.Name != "tail_rig" {
		t.Errorf("Name: got %q, want tail_rig", rig.Name)
	}
	if got := rig.Skeleton.BoneCount(); got != 3 {
		t.Fatalf("BoneCount: got %d, want 3", got)
	}

	root := rig.Skeleton.Find("root")
	mid := rig.Skeleton.Find("mid")
	tip := rig.Skeleton.Find("tip")
	if root < 0 || mid < 0 || tip < 0 {
		t.Fatalf("Find: root=%d mid=%d tip=%d, want all resolved", root, mid, tip)
	}
	if rig.Skeleton.Bone(mid).ParentIndex != root {
		t.Errorf("mid parent: got %d, want %d", rig.Skeleton.Bone(mid).ParentIndex, root)
	}
	if rig.Skeleton.Bone(tip).ParentIndex != mid {
		t.Errorf("tip parent: got %d, want %d", rig.Skeleton.Bone(tip).ParentIndex, mid)
	}

	// root at Y=1, each segment 0.5 down: the tip rests at the origin.
	if got, want := rig.Skeleton.WorldPosition(tip), (common.Vec3{}); got.Distance(want) > 1e-5 {
		t.Errorf("WorldPosition(tip): got %v, want %v", got, want)
	}

	if len(rig.Animations) != 1 {
		t.Fatalf("Animations: got %d, want 1", len(rig.Animations))
	}
	clip := rig.Animations[0]
	if clip.Name != "sway" {
		t.Errorf("clip name: got %q, want sway", clip.Name)
	}
	if clip.Duration != 1 {
		t.Errorf("clip duration: got %v, want 1", clip.Duration)
	}
	if len(clip.Channels) != 2 {
		t.Fatalf("channels: got %d, want 2", len(clip.Channels))
	}
	if got := clip.Channels[0]; got.Bone != root || len(got.PositionKeys) != 2 {
		t.Errorf("channel 0: bone=%d positionKeys=%d, want bone=%d positionKeys=2", got.Bone, len(got.PositionKeys), root)
	}
	if got := clip.Channels[1]; got.Bone != mid || len(got.RotationKeys) != 2 {
		t.Errorf("channel 1: bone=%d rotationKeys=%d, want bone=%d rotationKeys=2", got.Bone, len(got.RotationKeys), mid)
	}
	if rig.Animation("sway") != clip {
		t.Error("Animation(sway): lookup did not return the clip")
	}
	if rig.Animation("missing") != nil {
		t.Error("Animation(missing): expected nil")
	}
}

func TestPoseSamplesClip(t *testing.T) {
	rig := loadSceneRig(t)
	skel := rig.Skeleton
	clip := rig.Animations[0]
	root := skel.Find("root")
	mid := skel.Find("mid")

	clip.Pose(skel, 0.5)

	if got, want := skel.Bone(root).Local.Translation, (common.Vec3{X: 0.5}); got.Distance(want) > 1e-5 {
		t.Errorf("root translation at t=0.5: got %v, want %v", got, want)
	}

	// Nlerp between identity and 90 degrees about Z lands on the 45 degree
	// bisector at t=0.5.
	rotated := skel.Bone(mid).Local.Rotation.Rotate(common.Vec3{X: 1})
	halfRoot2 := float32(0.70710678)
	if want := (common.Vec3{X: halfRoot2, Y: halfRoot2}); rotated.Distance(want) > 1e-4 {
		t.Errorf("mid rotation at t=0.5: rotated X to %v, want %v", rotated, want)
	}

	// The clip has no position track for mid; its translation stays put.
	if got, want := skel.Bone(mid).Local.Translation, (common.Vec3{Y: -0.5}); got.Distance(want) > 1e-5 {
		t.Errorf("mid translation at t=0.5: got %v, want %v", got, want)
	}

	// Sampling past the end clamps to the last key.
	clip.Pose(skel, 5)
	if got, want := skel.Bone(root).Local.Translation, (common.Vec3{X: 1}); got.Distance(want) > 1e-5 {
		t.Errorf("root translation at t=5: got %v, want %v", got, want)
	}
}

func TestLoadSkinRigFoldsContainerTransforms(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	rig, err := l.Load(writeFixture(t, "skin.gltf", skinGLTF))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Scene has no name, so the rig takes the file's base name.
	if rig.Name != "skin" {
		t.Errorf("Name: got %q, want skin", rig.Name)
	}

	// The armature container is not a joint; only the three joints are bones.
	if got := rig.Skeleton.BoneCount(); got != 3 {
		t.Fatalf("BoneCount: got %d, want 3", got)
	}

	hip := rig.Skeleton.Find("hip")
	spine := rig.Skeleton.Find("spine")
	tail := rig.Skeleton.Find("tail")
	if hip < 0 || spine < 0 || tail < 0 {
		t.Fatalf("Find: hip=%d spine=%d tail=%d, want all resolved", hip, spine, tail)
	}
	if rig.Skeleton.Bone(hip).ParentIndex != -1 {
		t.Errorf("hip parent: got %d, want -1", rig.Skeleton.Bone(hip).ParentIndex)
	}
	if rig.Skeleton.Bone(spine).ParentIndex != hip {
		t.Errorf("spine parent: got %d, want %d", rig.Skeleton.Bone(spine).ParentIndex, hip)
	}
	if rig.Skeleton.Bone(tail).ParentIndex != spine {
		t.Errorf("tail parent: got %d, want %d", rig.Skeleton.Bone(tail).ParentIndex, spine)
	}

	// The armature's (0, 2, 0) folds into the hip: 2 + 0.5 = 2.5.
	if got, want := rig.Skeleton.WorldPosition(hip), (common.Vec3{Y: 2.5}); got.Distance(want) > 1e-5 {
		t.Errorf("WorldPosition(hip): got %v, want %v", got, want)
	}
	if got, want := rig.Skeleton.WorldPosition(tail), (common.Vec3{Y: 1.7}); got.Distance(want) > 1e-5 {
		t.Errorf("WorldPosition(tail): got %v, want %v", got, want)
	}
}

func TestLoadReaderGLB(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	rig, err := l.LoadReader("tail_glb", bytes.NewReader(buildGLB(t, sceneGLTF)), true)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}

	if got := rig.Skeleton.BoneCount(); got != 3 {
		t.Errorf("BoneCount: got %d, want 3", got)
	}
	if len(rig.Animations) != 1 {
		t.Errorf("Animations: got %d, want 1", len(rig.Animations))
	}
	if l.Get("tail_glb") != rig {
		t.Error("Get(tail_glb): cached rig not returned")
	}
}

func TestLoadCachesByPath(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	path := writeFixture(t, "tail.gltf", sceneGLTF)

	first, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if first != second {
		t.Error("Load: second call did not return the cached rig")
	}
	if l.Get(path) != first {
		t.Error("Get: cached rig not returned")
	}
	if got := len(l.Rigs()); got != 1 {
		t.Errorf("Rigs: got %d entries, want 1", got)
	}
}

func TestLoadSkeletonOnlySkipsAnimations(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	rig, err := l.LoadSkeletonOnly(writeFixture(t, "tail.gltf", sceneGLTF))
	if err != nil {
		t.Fatalf("LoadSkeletonOnly: %v", err)
	}
	if got := rig.Skeleton.BoneCount(); got != 3 {
		t.Errorf("BoneCount: got %d, want 3", got)
	}
	if len(rig.Animations) != 0 {
		t.Errorf("Animations: got %d, want 0", len(rig.Animations))
	}
}

func TestLoadRejectsUnsupportedFormat(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	if _, err := l.Load("character.obj"); err == nil {
		t.Fatal("Load: expected error for unsupported extension")
	}
}

func TestDuplicateBoneNamesGetSuffixes(t *testing.T) {
	doc := `{
		"asset": {"version": "2.0"},
		"scenes": [{"nodes": [0]}],
		"nodes": [
			{"name": "root", "children": [1, 2]},
			{"name": "seg"},
			{"name": "seg"}
		]
	}`

	l := NewLoader(BackendTypeGLTF)
	rig, err := l.Load(writeFixture(t, "dupes.gltf", doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first := rig.Skeleton.Find("seg")
	second := rig.Skeleton.Find("seg_2")
	if first < 0 || second < 0 {
		t.Fatalf("Find: seg=%d seg_2=%d, want both resolved", first, second)
	}
	if first == second {
		t.Error("duplicate names resolved to the same bone")
	}
}

func TestWithRigSeedsCache(t *testing.T) {
	skel, err := skeleton.NewSkeleton([]skeleton.Bone{
		{Name: "root", ParentIndex: -1, Local: skeleton.DefaultTransform()},
	})
	if err != nil {
		t.Fatalf("NewSkeleton: %v", err)
	}
	rig := &Rig{Name: "procedural", Skeleton: skel}

	l := NewLoader(BackendTypeGLTF, WithRig("procedural", rig))
	if l.Get("procedural") != rig {
		t.Error("Get(procedural): seeded rig not returned")
	}
}
