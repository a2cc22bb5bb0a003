package animator

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/loader"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

func twoBoneSkeleton(t *testing.T) *skeleton.Skeleton {
	t.Helper()
	root := skeleton.DefaultTransform()
	child := skeleton.DefaultTransform()
	child.Translation = common.Vec3{Y: -0.5}
	skel, err := skeleton.NewSkeleton([]skeleton.Bone{
		{Name: "root", ParentIndex: -1, Local: root},
		{Name: "child", ParentIndex: 0, Local: child},
	})
	if err != nil {
		t.Fatalf("NewSkeleton: %v", err)
	}
	return skel
}

// slideClip animates the child bone's local X linearly from 0 to reach over
// the clip duration, keeping Y at the rest offset.
func slideClip(name string, duration, reach float32) *loader.Animation {
	return &loader.Animation{
		Name:     name,
		Duration: duration,
		Channels: []loader.AnimationChannel{{
			Bone: 1,
			PositionKeys: []loader.VectorKey{
				{Time: 0, Value: common.Vec3{Y: -0.5}},
				{Time: duration, Value: common.Vec3{X: reach, Y: -0.5}},
			},
		}},
	}
}

// holdClip pins the child bone's local X at the given value for the whole clip.
func holdClip(name string, duration, x float32) *loader.Animation {
	return &loader.Animation{
		Name:     name,
		Duration: duration,
		Channels: []loader.AnimationChannel{{
			Bone: 1,
			PositionKeys: []loader.VectorKey{
				{Time: 0, Value: common.Vec3{X: x, Y: -0.5}},
			},
		}},
	}
}

func childX(skel *skeleton.Skeleton) float32 {
	return skel.Bone(1).Local.Translation.X
}

func nearf(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func TestUpdatePosesSkeleton(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel, WithClip(slideClip("slide", 1, 1), false))

	a.Update(0.5)

	if x := childX(skel); !nearf(x, 0.5, 1e-4) {
		t.Fatalf("child X = %v, want 0.5", x)
	}
	if !a.Playing() {
		t.Fatal("Playing = false, want true")
	}
	if got := a.Skeleton(); got != skel {
		t.Fatalf("Skeleton = %v, want the constructor skeleton", got)
	}
}

func TestLoopWrapsTime(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel)
	a.Play(slideClip("slide", 1, 1), true)

	a.Update(0.6)
	a.Update(0.6) // 1.2s wraps to 0.2s

	if got := a.Time(); !nearf(got, 0.2, 1e-4) {
		t.Fatalf("Time = %v, want 0.2", got)
	}
	if x := childX(skel); !nearf(x, 0.2, 1e-4) {
		t.Fatalf("child X = %v, want 0.2", x)
	}
	if a.Finished() {
		t.Fatal("Finished = true for a looping clip, want false")
	}
}

func TestNonLoopingClampsAtEnd(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel)
	a.Play(slideClip("slide", 1, 1), false)

	a.Update(2)

	if x := childX(skel); !nearf(x, 1, 1e-4) {
		t.Fatalf("child X = %v, want clamped at 1", x)
	}
	if !a.Finished() {
		t.Fatal("Finished = false, want true")
	}
}

func TestCrossFadeBlendsTowardTarget(t *testing.T) {
	skel := twoBoneSkeleton(t)
	from := holdClip("rest", 1, 0)
	to := holdClip("lean", 1, 2)

	a := NewAnimator(skel)
	a.Play(from, true)
	a.Update(0.1)

	a.CrossFade(to, 1.0, true)
	a.Update(0.5)

	if !a.IsBlending() {
		t.Fatal("IsBlending = false mid-fade, want true")
	}
	if got := a.BlendProgress(); !nearf(got, 0.5, 1e-4) {
		t.Fatalf("BlendProgress = %v, want 0.5", got)
	}
	if x := childX(skel); !nearf(x, 1, 1e-4) {
		t.Fatalf("child X = %v, want halfway blend at 1", x)
	}

	a.Update(0.6) // Pushes the fade past completion.

	if a.IsBlending() {
		t.Fatal("IsBlending = true after the fade completed, want false")
	}
	if got := a.Clip(); got != to {
		t.Fatalf("Clip = %v, want the fade target", got)
	}
	if x := childX(skel); !nearf(x, 2, 1e-4) {
		t.Fatalf("child X = %v, want the target pose at 2", x)
	}
}

func TestCrossFadeWithoutCurrentClipActsLikePlay(t *testing.T) {
	skel := twoBoneSkeleton(t)
	to := holdClip("lean", 1, 2)

	a := NewAnimator(skel)
	a.CrossFade(to, 1.0, false)

	if a.IsBlending() {
		t.Fatal("IsBlending = true, want immediate switch")
	}
	if got := a.Clip(); got != to {
		t.Fatalf("Clip = %v, want the target clip", got)
	}
	a.Update(0.1)
	if x := childX(skel); !nearf(x, 2, 1e-4) {
		t.Fatalf("child X = %v, want 2", x)
	}
}

func TestCancelBlendKeepsCurrentClip(t *testing.T) {
	skel := twoBoneSkeleton(t)
	from := holdClip("rest", 1, 0)
	to := holdClip("lean", 1, 2)

	a := NewAnimator(skel)
	a.Play(from, true)
	a.CrossFade(to, 1.0, true)
	a.Update(0.25)
	a.CancelBlend()
	a.Update(0.25)

	if a.IsBlending() {
		t.Fatal("IsBlending = true after cancel, want false")
	}
	if got := a.Clip(); got != from {
		t.Fatalf("Clip = %v, want the original clip", got)
	}
	if x := childX(skel); !nearf(x, 0, 1e-4) {
		t.Fatalf("child X = %v, want the original pose at 0", x)
	}
}

func TestPauseHoldsPlayback(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel, WithClip(slideClip("slide", 1, 1), false))

	a.Update(0.25)
	a.SetPaused(true)
	a.Update(0.5)

	if got := a.Time(); !nearf(got, 0.25, 1e-4) {
		t.Fatalf("Time while paused = %v, want 0.25", got)
	}
	if x := childX(skel); !nearf(x, 0.25, 1e-4) {
		t.Fatalf("child X while paused = %v, want 0.25", x)
	}
	if a.Playing() {
		t.Fatal("Playing = true while paused, want false")
	}
	if !a.Paused() {
		t.Fatal("Paused = false, want true")
	}

	a.SetPaused(false)
	a.Update(0.25)
	if got := a.Time(); !nearf(got, 0.5, 1e-4) {
		t.Fatalf("Time after resume = %v, want 0.5", got)
	}
}

func TestSpeedScalesPlayback(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel, WithSpeed(2), WithClip(slideClip("slide", 1, 1), false))

	a.Update(0.25)

	if got := a.Time(); !nearf(got, 0.5, 1e-4) {
		t.Fatalf("Time at double speed = %v, want 0.5", got)
	}
	if got := a.Speed(); got != 2 {
		t.Fatalf("Speed = %v, want 2", got)
	}
}

func TestStopKeepsLastPose(t *testing.T) {
	skel := twoBoneSkeleton(t)
	a := NewAnimator(skel, WithClip(slideClip("slide", 1, 1), false))

	a.Update(0.5)
	a.Stop()
	a.Update(0.5)

	if a.Playing() {
		t.Fatal("Playing = true after Stop, want false")
	}
	if a.Clip() != nil {
		t.Fatal("Clip != nil after Stop")
	}
	if x := childX(skel); !nearf(x, 0.5, 1e-4) {
		t.Fatalf("child X after Stop = %v, want held at 0.5", x)
	}
}
