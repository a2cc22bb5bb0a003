package loader

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-chain/common"
)

// gltfAnimationExtractorImpl is the implementation of the gltfAnimationExtractor interface.
type gltfAnimationExtractorImpl struct {
	parser gltfParser
}

// gltfAnimationExtractor defines the interface for extracting animation data from a
// parsed glTF document. It converts glTF animation definitions into engine-ready
// Animation clips with keyframe data.
//
// The nodeToBone parameter maps glTF node indices to bone indices in the built
// skeleton. It is produced by the skeleton extractor so channels land on the
// correct bones after the skeleton reorders parent-first.
type gltfAnimationExtractor interface {
	// ExtractAnimation extracts a single animation by index.
	//
	// Parameters:
	//   - animIndex: the index of the animation in the document
	//   - nodeToBone: maps glTF node index to skeleton bone index
	//
	// Returns:
	//   - *Animation: the extracted clip
	//   - error: error if extraction fails
	ExtractAnimation(animIndex int, nodeToBone map[int]int32) (*Animation, error)

	// ExtractAnimationsForSkin extracts all animations that target joints belonging to a skin.
	//
	// Parameters:
	//   - skinIndex: the skin index whose joint set determines which animations to extract
	//   - nodeToBone: maps glTF node index to skeleton bone index
	//
	// Returns:
	//   - []*Animation: animations that animate at least one joint of the skin
	//   - error: error if extraction fails
	ExtractAnimationsForSkin(skinIndex int, nodeToBone map[int]int32) ([]*Animation, error)

	// ExtractAllAnimations extracts every animation from the document.
	//
	// Parameters:
	//   - nodeToBone: maps glTF node index to skeleton bone index
	//
	// Returns:
	//   - []*Animation: all extracted clips
	//   - error: error if extraction fails
	ExtractAllAnimations(nodeToBone map[int]int32) ([]*Animation, error)
}

var _ gltfAnimationExtractor = &gltfAnimationExtractorImpl{}

// newGLTFAnimationExtractor creates a new animation extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfAnimationExtractor: the animation extractor
func newGLTFAnimationExtractor(parser gltfParser) gltfAnimationExtractor {
	return &gltfAnimationExtractorImpl{parser: parser}
}

func (e *gltfAnimationExtractorImpl) ExtractAnimation(animIndex int, nodeToBone map[int]int32) (*Animation, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	if animIndex < 0 || animIndex >= len(doc.Animations) {
		return nil, fmt.Errorf("animation index %d out of range", animIndex)
	}

	anim := &doc.Animations[animIndex]

	// channelMap groups channels by bone index so translation, rotation and
	// scale tracks merge into a single AnimationChannel per bone.
	channelMap := make(map[int32]*AnimationChannel)

	var maxTime float32

	for i := range anim.Channels {
		ch := &anim.Channels[i]

		// Skip channels with no target node (e.g. morph targets)
		if ch.Target.Node == nil {
			continue
		}
		nodeIndex := *ch.Target.Node

		// Channels targeting nodes outside the skeleton are skipped.
		boneIndex, ok := nodeToBone[nodeIndex]
		if !ok {
			continue
		}

		if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("animation %q channel %d: invalid sampler index %d", anim.Name, i, ch.Sampler)
		}
		sampler := &anim.Samplers[ch.Sampler]

		timestamps, err := e.parser.ReadScalarAccessor(sampler.Input)
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: failed to read timestamps: %w", anim.Name, i, err)
		}

		// glTF timestamps are seconds; the clip runs to the latest key.
		if len(timestamps) > 0 {
			if t := timestamps[len(timestamps)-1]; t > maxTime {
				maxTime = t
			}
		}

		animCh, exists := channelMap[boneIndex]
		if !exists {
			animCh = &AnimationChannel{Bone: boneIndex}
			channelMap[boneIndex] = animCh
		}

		switch ch.Target.Path {
		case gltfAnimPathTranslation:
			values, err := e.parser.ReadVec3Accessor(sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: failed to read translation values: %w", anim.Name, i, err)
			}
			animCh.PositionKeys = gltfVectorKeys(timestamps, values)

		case gltfAnimPathRotation:
			values, err := e.parser.ReadVec4Accessor(sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: failed to read rotation values: %w", anim.Name, i, err)
			}
			keys := make([]QuatKey, min(len(timestamps), len(values)))
			for j := range keys {
				v := values[j]
				keys[j] = QuatKey{Time: timestamps[j], Value: common.Quat{X: v[0], Y: v[1], Z: v[2], W: v[3]}}
			}
			animCh.RotationKeys = keys

		case gltfAnimPathScale:
			values, err := e.parser.ReadVec3Accessor(sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: failed to read scale values: %w", anim.Name, i, err)
			}
			animCh.ScaleKeys = gltfVectorKeys(timestamps, values)

		case gltfAnimPathWeights:
			// Morph target weights are not supported; skip
			continue
		}
	}

	// Flatten in bone order so extraction is deterministic.
	channels := make([]AnimationChannel, 0, len(channelMap))
	for _, ch := range channelMap {
		channels = append(channels, *ch)
	}
	sort.Slice(channels, func(a, b int) bool { return channels[a].Bone < channels[b].Bone })

	name := anim.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", animIndex)
	}

	return &Animation{
		Name:     name,
		Duration: maxTime,
		Channels: channels,
	}, nil
}

func (e *gltfAnimationExtractorImpl) ExtractAnimationsForSkin(skinIndex int, nodeToBone map[int]int32) ([]*Animation, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}

	jointSet := make(map[int]bool)
	for _, j := range doc.Skins[skinIndex].Joints {
		jointSet[j] = true
	}

	var clips []*Animation

	for animIdx := range doc.Animations {
		anim := &doc.Animations[animIdx]

		relevant := false
		for _, ch := range anim.Channels {
			if ch.Target.Node != nil && jointSet[*ch.Target.Node] {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}

		clip, err := e.ExtractAnimation(animIdx, nodeToBone)
		if err != nil {
			return nil, fmt.Errorf("animation %d: %w", animIdx, err)
		}
		clips = append(clips, clip)
	}

	return clips, nil
}

func (e *gltfAnimationExtractorImpl) ExtractAllAnimations(nodeToBone map[int]int32) ([]*Animation, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}

	clips := make([]*Animation, len(doc.Animations))
	for i := range doc.Animations {
		clip, err := e.ExtractAnimation(i, nodeToBone)
		if err != nil {
			return nil, fmt.Errorf("animation %d: %w", i, err)
		}
		clips[i] = clip
	}

	return clips, nil
}

// gltfVectorKeys pairs timestamps with vec3 values, truncating to the shorter track.
func gltfVectorKeys(timestamps []float32, values [][3]float32) []VectorKey {
	keys := make([]VectorKey, min(len(timestamps), len(values)))
	for j := range keys {
		v := values[j]
		keys[j] = VectorKey{Time: timestamps[j], Value: common.Vec3{X: v[0], Y: v[1], Z: v[2]}}
	}
	return keys
}
