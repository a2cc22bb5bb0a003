package animator

import (
	"github.com/Carmen-Shannon/oxy-chain/engine/loader"
)

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithClip starts playback of a clip during construction, preserving any speed
// set by an earlier option.
//
// Parameters:
//   - clip: the clip to play
//   - loop: whether the clip should loop
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the clip option to an animator
func WithClip(clip *loader.Animation, loop bool) AnimatorBuilderOption {
	return func(a *animator) {
		speed := a.state.speed
		a.state = playbackState{clip: clip, speed: speed, loop: loop}
	}
}

// WithSpeed sets the playback speed multiplier during construction.
//
// Parameters:
//   - speed: the speed multiplier (1.0 = normal, 0.5 = half speed)
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the speed option to an animator
func WithSpeed(speed float32) AnimatorBuilderOption {
	return func(a *animator) {
		a.state.speed = speed
	}
}

// WithPaused constructs the animator with playback suspended.
//
// Parameters:
//   - paused: true to start suspended
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the paused option to an animator
func WithPaused(paused bool) AnimatorBuilderOption {
	return func(a *animator) {
		a.paused = paused
	}
}
