package loader

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// VectorKey is a timestamped vector keyframe.
type VectorKey struct {
	// Time is the keyframe time in seconds.
	Time float32

	// Value is the vector at Time.
	Value common.Vec3
}

// QuatKey is a timestamped rotation keyframe.
type QuatKey struct {
	// Time is the keyframe time in seconds.
	Time float32

	// Value is the rotation at Time.
	Value common.Quat
}

// AnimationChannel holds every keyframe track targeting one bone. Any of the
// key slices may be empty; absent tracks leave that part of the bone's local
// transform untouched when posing.
type AnimationChannel struct {
	// Bone is the skeleton bone index this channel animates.
	Bone int32

	// PositionKeys animate the local translation.
	PositionKeys []VectorKey

	// RotationKeys animate the local rotation.
	RotationKeys []QuatKey

	// ScaleKeys animate the local scale.
	ScaleKeys []VectorKey
}

// Animation is a keyframe clip targeting bones of one skeleton. Clips drive
// the base pose each frame; the chain simulator then layers secondary motion
// on top of whatever the clip wrote.
type Animation struct {
	// Name identifies the clip.
	Name string

	// Duration is the clip length in seconds.
	Duration float32

	// Channels are the per-bone keyframe tracks.
	Channels []AnimationChannel
}

// Pose samples the clip at time t and writes the resulting local transforms
// into the skeleton. Sampling clamps to the clip's ends; hosts that want
// looping wrap t against Duration before calling.
//
// Parameters:
//   - skel: the skeleton to pose
//   - t: the sample time in seconds
func (a *Animation) Pose(skel *skeleton.Skeleton, t float32) {
	for i := range a.Channels {
		ch := &a.Channels[i]
		if ch.Bone < 0 || int(ch.Bone) >= skel.BoneCount() {
			continue
		}

		local := skel.Bone(ch.Bone).Local
		if len(ch.PositionKeys) > 0 {
			local.Translation = sampleVectorKeys(ch.PositionKeys, t)
		}
		if len(ch.RotationKeys) > 0 {
			local.Rotation = sampleQuatKeys(ch.RotationKeys, t)
		}
		if len(ch.ScaleKeys) > 0 {
			local.Scale = sampleVectorKeys(ch.ScaleKeys, t)
		}
		skel.SetLocalTransform(ch.Bone, local)
	}
}

// PoseBlend samples the clip at time t and blends the result into the
// skeleton's current local transforms by weight. A weight of 0 leaves the pose
// untouched and a weight of 1 matches Pose; values between crossfade from
// whatever was last written, which is how the animator mixes two clips.
//
// Parameters:
//   - skel: the skeleton to pose
//   - t: the sample time in seconds
//   - weight: the blend factor in [0, 1]
func (a *Animation) PoseBlend(skel *skeleton.Skeleton, t, weight float32) {
	if weight <= 0 {
		return
	}
	if weight >= 1 {
		a.Pose(skel, t)
		return
	}

	for i := range a.Channels {
		ch := &a.Channels[i]
		if ch.Bone < 0 || int(ch.Bone) >= skel.BoneCount() {
			continue
		}

		local := skel.Bone(ch.Bone).Local
		if len(ch.PositionKeys) > 0 {
			local.Translation = local.Translation.Lerp(sampleVectorKeys(ch.PositionKeys, t), weight)
		}
		if len(ch.RotationKeys) > 0 {
			local.Rotation = local.Rotation.Nlerp(sampleQuatKeys(ch.RotationKeys, t), weight)
		}
		if len(ch.ScaleKeys) > 0 {
			local.Scale = local.Scale.Lerp(sampleVectorKeys(ch.ScaleKeys, t), weight)
		}
		skel.SetLocalTransform(ch.Bone, local)
	}
}

// sampleVectorKeys interpolates linearly between the two keys bracketing t,
// clamping outside the track.
func sampleVectorKeys(keys []VectorKey, t float32) common.Vec3 {
	if t <= keys[0].Time {
		return keys[0].Value
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return last.Value
	}

	hi := sort.Search(len(keys), func(i int) bool { return keys[i].Time >= t })
	a, b := keys[hi-1], keys[hi]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return a.Value.Lerp(b.Value, (t-a.Time)/span)
}

// sampleQuatKeys interpolates rotations with a normalized lerp between the
// two keys bracketing t, clamping outside the track.
func sampleQuatKeys(keys []QuatKey, t float32) common.Quat {
	if t <= keys[0].Time {
		return keys[0].Value
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return last.Value
	}

	hi := sort.Search(len(keys), func(i int) bool { return keys[i].Time >= t })
	a, b := keys[hi-1], keys[hi]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return a.Value.Nlerp(b.Value, (t-a.Time)/span)
}
