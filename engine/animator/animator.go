// Package animator plays animation clips onto skeletons. An Animator owns the
// playback state for one skeleton: the active clip, its position and speed,
// and an optional crossfade toward a second clip. Hosts run Update at the
// start of each tick so chain simulators see the frame's target pose before
// they step.
package animator

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-chain/engine/loader"
	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// playbackState holds the CPU-side playback state for the active clip.
// It tracks time, speed, looping, and blend state that Update uses to pose
// the skeleton each frame.
type playbackState struct {
	clip *loader.Animation

	time, speed    float32
	loop, blending bool

	blendTo                     *loader.Animation
	blendToTime                 float32
	blendToLoop                 bool
	blendDuration, blendElapsed float32
}

// animator is the implementation of the Animator interface.
type animator struct {
	mu *sync.Mutex

	skel   *skeleton.Skeleton
	state  playbackState
	paused bool
}

// Animator plays one clip at a time onto a skeleton, crossfading on request.
// During a crossfade the outgoing clip keeps advancing while the incoming
// clip's pose is mixed in with growing weight; when the fade completes the
// incoming clip becomes the active one.
type Animator interface {
	// Skeleton returns the skeleton this animator poses.
	//
	// Returns:
	//   - *skeleton.Skeleton: the posed skeleton
	Skeleton() *skeleton.Skeleton

	// Play starts a clip from its beginning at normal speed, replacing
	// whatever was playing and cancelling any blend in progress.
	//
	// Parameters:
	//   - clip: the clip to play (nil stops playback)
	//   - loop: whether the clip should loop
	Play(clip *loader.Animation, loop bool)

	// CrossFade transitions from the current clip to the target over duration
	// seconds. With no current clip, a nil target, or a non-positive duration
	// this behaves like Play.
	//
	// Parameters:
	//   - clip: the clip to transition to
	//   - duration: the transition time in seconds
	//   - loop: whether the target clip should loop
	CrossFade(clip *loader.Animation, duration float32, loop bool)

	// Update advances playback by deltaTime and poses the skeleton from the
	// active clip, mixing in the blend target while a crossfade is running.
	// Paused or stopped animators leave the skeleton untouched.
	//
	// Parameters:
	//   - deltaTime: elapsed frame time in seconds
	Update(deltaTime float32)

	// Stop clears the active clip. The skeleton keeps its last written pose.
	Stop()

	// Playing reports whether a clip is active and playback is not paused.
	//
	// Returns:
	//   - bool: true if Update will advance playback
	Playing() bool

	// Clip returns the active clip.
	//
	// Returns:
	//   - *loader.Animation: the active clip, or nil when stopped
	Clip() *loader.Animation

	// SetPaused suspends or resumes playback without losing position.
	//
	// Parameters:
	//   - paused: true to suspend, false to resume
	SetPaused(paused bool)

	// Paused reports whether playback is suspended.
	//
	// Returns:
	//   - bool: true if paused
	Paused() bool

	// SetTime sets the playback position of the active clip.
	//
	// Parameters:
	//   - t: the playback time in seconds
	SetTime(t float32)

	// Time returns the playback position of the active clip.
	//
	// Returns:
	//   - float32: the playback time in seconds
	Time() float32

	// SetSpeed sets the playback speed multiplier.
	//
	// Parameters:
	//   - speed: the speed multiplier (1.0 = normal, 0.5 = half speed)
	SetSpeed(speed float32)

	// Speed returns the playback speed multiplier.
	//
	// Returns:
	//   - float32: the speed multiplier
	Speed() float32

	// Finished reports whether a non-looping clip has played past its end.
	// Looping clips never finish.
	//
	// Returns:
	//   - bool: true if playback reached the end of a non-looping clip
	Finished() bool

	// IsBlending reports whether a crossfade is in progress.
	//
	// Returns:
	//   - bool: true if blending between clips
	IsBlending() bool

	// BlendProgress returns the current crossfade progress.
	//
	// Returns:
	//   - float32: blend progress from 0.0 (start) to 1.0 (complete), or 0.0 if not blending
	BlendProgress() float32

	// CancelBlend stops an in-progress crossfade and keeps the current clip.
	CancelBlend()
}

var _ Animator = &animator{}

// NewAnimator creates a new Animator that poses the given skeleton.
// Options are applied directly to the animator via the option-builder pattern;
// use WithClip to start playback during construction.
//
// Parameters:
//   - skel: the skeleton to pose
//   - options: variadic list of AnimatorBuilderOption functions to configure the Animator
//
// Returns:
//   - Animator: a new Animator for the skeleton
func NewAnimator(skel *skeleton.Skeleton, options ...AnimatorBuilderOption) Animator {
	a := &animator{
		mu:   &sync.Mutex{},
		skel: skel,
	}
	a.state.speed = 1

	for _, opt := range options {
		opt(a)
	}

	return a
}

func (a *animator) Skeleton() *skeleton.Skeleton {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skel
}

func (a *animator) Play(clip *loader.Animation, loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = playbackState{clip: clip, speed: 1, loop: loop}
}

func (a *animator) CrossFade(clip *loader.Animation, duration float32, loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.clip == nil || clip == nil || duration <= 0 {
		a.state = playbackState{clip: clip, speed: 1, loop: loop}
		return
	}
	state := &a.state
	state.blending = true
	state.blendTo = clip
	state.blendToTime = 0
	state.blendToLoop = loop
	state.blendDuration = duration
	state.blendElapsed = 0
}

func (a *animator) Update(deltaTime float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := &a.state
	if a.paused || state.clip == nil || a.skel == nil {
		return
	}

	state.time += deltaTime * state.speed
	if state.loop && state.clip.Duration > 0 && state.time > state.clip.Duration {
		state.time = float32(math.Mod(float64(state.time), float64(state.clip.Duration)))
	}

	progress := float32(0)
	if state.blending {
		state.blendElapsed += deltaTime
		state.blendToTime += deltaTime * state.speed

		if state.blendToLoop && state.blendTo.Duration > 0 && state.blendToTime > state.blendTo.Duration {
			state.blendToTime = float32(math.Mod(float64(state.blendToTime), float64(state.blendTo.Duration)))
		}

		progress = state.blendElapsed / state.blendDuration
		if progress >= 1.0 {
			state.clip = state.blendTo
			state.time = state.blendToTime
			state.loop = state.blendToLoop
			state.blending = false
			state.blendTo = nil
			state.blendElapsed = 0
			progress = 0
		}
	}

	state.clip.Pose(a.skel, state.time)
	if state.blending {
		state.blendTo.PoseBlend(a.skel, state.blendToTime, progress)
	}
}

func (a *animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = playbackState{speed: 1}
}

func (a *animator) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.paused && a.state.clip != nil
}

func (a *animator) Clip() *loader.Animation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clip
}

func (a *animator) SetPaused(paused bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = paused
}

func (a *animator) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

func (a *animator) SetTime(t float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.time = t
}

func (a *animator) Time() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.time
}

func (a *animator) SetSpeed(speed float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.speed = speed
}

func (a *animator) Speed() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.speed
}

func (a *animator) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clip != nil && !a.state.loop && a.state.time >= a.state.clip.Duration
}

func (a *animator) IsBlending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.blending
}

func (a *animator) BlendProgress() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.blending {
		return 0
	}
	return a.state.blendElapsed / a.state.blendDuration
}

func (a *animator) CancelBlend() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.blending = false
	a.state.blendTo = nil
	a.state.blendElapsed = 0
}
