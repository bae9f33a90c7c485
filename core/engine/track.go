package engine

import (
	"sync"

	"Soundscape/core/audio"
	"Soundscape/model"
)

// Track is one sound in the mix: its persisted parameters plus the
// runtime playback state the engine keeps for it. All fields are guarded
// by mu; every timer callback takes mu and then checks that the track is
// not removed and that it is still the timer stored in its slot.
type Track struct {
	mu     sync.Mutex
	params model.TrackParams

	voice  audio.Voice // sounding
	fading audio.Voice // fading out after stop

	loading bool
	playing bool
	removed bool
	gen     uint64 // bumped to orphan an in-flight load

	retrigger Timer // interval / random-interval replay
	volCycle  Timer
	panCycle  Timer
	spawn     Timer
	fadeStop  Timer

	// curves currently running; cycling swaps these, never params
	volCurve  model.VolumeAutomation
	panCurve  model.PanAutomation
	volStart  float64
	panStart  float64
	volActive bool
	panActive bool

	events []Event
}

func newTrack(p model.TrackParams) *Track {
	return &Track{params: p}
}

// Path is immutable, so it is read without the lock.
func (t *Track) Path() string { return t.params.SoundPath }

// Params returns a copy of the track's settings.
func (t *Track) Params() model.TrackParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *Track) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *Track) IsLoading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

func (t *Track) IsRemoved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removed
}

func (t *Track) emit(kind EventKind) *Event {
	t.events = append(t.events, Event{Kind: kind, SoundPath: t.params.SoundPath})
	return &t.events[len(t.events)-1]
}

func stopTimer(slot *Timer) {
	if *slot != nil {
		(*slot).Stop()
		*slot = nil
	}
}

func (t *Track) stopTimers() {
	stopTimer(&t.retrigger)
	stopTimer(&t.volCycle)
	stopTimer(&t.panCycle)
	stopTimer(&t.spawn)
}

// pendingTimers counts armed timers, fade included.
func (t *Track) pendingTimers() int {
	n := 0
	for _, tm := range []Timer{t.retrigger, t.volCycle, t.panCycle, t.spawn, t.fadeStop} {
		if tm != nil {
			n++
		}
	}
	return n
}
