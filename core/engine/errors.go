package engine

import (
	"errors"
	"fmt"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrTrackExists   = errors.New("track already in mixer")
	// ErrStartCancelled is reported by Start when a stop or removal arrives
	// while the buffer is still loading.
	ErrStartCancelled = errors.New("start cancelled")
)

// PlaybackSetupError means the voice for a track could not be built or
// started. The attempt is abandoned and the track stays idle.
type PlaybackSetupError struct {
	Path string
	Err  error
}

func (e *PlaybackSetupError) Error() string {
	return fmt.Sprintf("playback setup for %s: %v", e.Path, e.Err)
}

func (e *PlaybackSetupError) Unwrap() error { return e.Err }
