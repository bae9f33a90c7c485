package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"Soundscape/core/audio"
	"Soundscape/logger"
	"Soundscape/model"
)

// Engine runs tracks on an audio Output: loading, starting, fading,
// loop-mode replays, automation and probabilistic spawning.
type Engine struct {
	out   audio.Output
	cache *BufferCache
	clock Clock
	rng   func() float64

	loadTimeout time.Duration
	observers   observers
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRand replaces the uniform [0,1) source used for random delays and
// spawn trials.
func WithRand(f func() float64) Option {
	return func(e *Engine) { e.rng = f }
}

func WithLoadTimeout(d time.Duration) Option {
	return func(e *Engine) { e.loadTimeout = d }
}

func NewEngine(out audio.Output, cache *BufferCache, opts ...Option) *Engine {
	e := &Engine{
		out:         out,
		cache:       cache,
		clock:       RealClock(),
		rng:         rand.Float64,
		loadTimeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Cache() *BufferCache { return e.cache }

// Subscribe registers fn for every playback event and returns a function
// that unregisters it. fn runs after the track lock is released.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.observers.subscribe(fn)
}

// unlock releases t.mu and then delivers the events queued while it was held.
func (e *Engine) unlock(t *Track) {
	evs := t.events
	t.events = nil
	t.mu.Unlock()
	e.observers.emit(evs...)
}

// arm stores a new timer in slot, replacing any previous one. fn runs with
// t.mu held, and only if the track is not removed and the timer is still
// the one in slot.
func (e *Engine) arm(t *Track, slot *Timer, d time.Duration, fn func()) {
	stopTimer(slot)
	var tm Timer
	tm = e.clock.AfterFunc(d, func() {
		t.mu.Lock()
		defer e.unlock(t)
		if t.removed || *slot != tm {
			return
		}
		*slot = nil
		fn()
	})
	*slot = tm
}

func reply(res chan<- error, err error) {
	if res != nil {
		res <- err
	}
}

// Start plays the track, loading its buffer first when needed. It does
// nothing if the track is removed, playing or loading. The returned channel
// receives the outcome of this attempt once.
func (e *Engine) Start(t *Track) <-chan error {
	res := make(chan error, 1)
	t.mu.Lock()
	defer e.unlock(t)
	if t.removed || t.playing || t.loading {
		res <- nil
		return res
	}
	e.startLocked(t, res)
	return res
}

func (e *Engine) startLocked(t *Track, res chan<- error) {
	if t.removed || t.playing || t.loading {
		reply(res, nil)
		return
	}
	path := t.params.SoundPath
	if buf, ok := e.cache.Get(path); ok {
		reply(res, e.playLocked(t, buf))
		return
	}

	t.loading = true
	gen := t.gen
	t.emit(EventLoading)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.loadTimeout)
		defer cancel()
		buf, err := e.cache.Load(ctx, path)

		t.mu.Lock()
		defer e.unlock(t)
		if t.removed || t.gen != gen {
			reply(res, ErrStartCancelled)
			return
		}
		t.loading = false
		if err != nil {
			t.emit(EventLoadFailed).Err = err
			reply(res, err)
			return
		}
		reply(res, e.playLocked(t, buf))
	}()
}

// playLocked builds the voice chain and starts it immediately.
func (e *Engine) playLocked(t *Track, buf *audio.Buffer) error {
	p := t.params
	e.haltFadeLocked(t)

	v, err := e.out.NewVoice(buf, p.LoopMode == model.LoopContinuous)
	if err != nil {
		return e.setupFailed(t, err)
	}

	now := e.out.Now()
	if p.FadeInEnabled && p.FadeInDuration > 0 {
		v.Gain().SetValueAtTime(0, now)
		v.Gain().LinearRampToValueAtTime(p.Volume, now+p.FadeInDuration)
	} else {
		v.Gain().SetValueAtTime(p.Volume, now)
	}
	v.Pan().SetValueAtTime(p.Pan, now)

	if err := v.Start(func() { e.naturalEnd(t, v) }); err != nil {
		v.Stop()
		return e.setupFailed(t, err)
	}

	t.voice = v
	t.playing = true
	stopTimer(&t.retrigger)
	t.emit(EventStarted)
	logger.Debug("track started",
		logger.Path(p.SoundPath),
		logger.String("loopMode", string(p.LoopMode)),
		logger.Float64("volume", p.Volume))

	t.volCurve = p.VolumeAutomation
	t.panCurve = p.PanAutomation
	if p.AutomationEnabled {
		e.applyVolumeAutomation(t)
		e.applyPanAutomation(t)
	}
	if p.ProbabilisticSpawn.Enabled && t.spawn == nil {
		e.scheduleSpawn(t)
	}
	return nil
}

func (e *Engine) setupFailed(t *Track, err error) error {
	t.playing = false
	serr := &PlaybackSetupError{Path: t.params.SoundPath, Err: err}
	t.emit(EventSetupFailed).Err = serr
	logger.Error("playback setup failed", logger.Path(t.params.SoundPath), logger.ErrorField(err))
	return serr
}

// naturalEnd runs when a non-looping voice runs out of frames.
func (e *Engine) naturalEnd(t *Track, v audio.Voice) {
	t.mu.Lock()
	defer e.unlock(t)
	if t.removed || t.voice != v {
		return
	}
	t.emit(EventEnded)

	switch p := t.params; p.LoopMode {
	case model.LoopInterval:
		e.releaseLocked(t)
		e.armRetrigger(t, seconds(p.IntervalSec))
	case model.LoopRandomInterval:
		e.releaseLocked(t)
		lo, hi := p.RandomIntervalBounds()
		e.armRetrigger(t, seconds(lo+e.rng()*(hi-lo)))
	default:
		// play-once, or a loop that was switched off mid-play
		e.stopLocked(t, true)
	}
}

// releaseLocked drops the ended voice and its automation but keeps the
// spawner running.
func (e *Engine) releaseLocked(t *Track) {
	if t.voice != nil {
		t.voice.Stop()
		t.voice = nil
	}
	t.playing = false
	stopTimer(&t.volCycle)
	stopTimer(&t.panCycle)
	t.volActive, t.panActive = false, false
}

func (e *Engine) armRetrigger(t *Track, d time.Duration) {
	t.emit(EventRetriggerArmed).Delay = d
	e.arm(t, &t.retrigger, d, func() {
		e.startLocked(t, nil)
	})
}

// Stop silences the track, fading out unless immediate is set or the
// track's fade-out is disabled. Every pending replay, automation and spawn
// timer is cancelled.
func (e *Engine) Stop(t *Track, immediate bool) {
	t.mu.Lock()
	defer e.unlock(t)
	e.stopLocked(t, immediate)
}

func (e *Engine) stopLocked(t *Track, immediate bool) {
	t.playing = false
	if t.loading {
		t.loading = false
		t.gen++
	}
	t.stopTimers()
	t.volActive, t.panActive = false, false

	if v := t.voice; v != nil {
		t.voice = nil
		p := t.params
		if immediate || !p.FadeOutEnabled || p.FadeOutDuration <= 0 {
			v.Stop()
		} else {
			e.haltFadeLocked(t)
			now := e.out.Now()
			g := v.Gain()
			cur := g.ValueAt(now)
			g.CancelScheduledValues(now)
			g.SetValueAtTime(cur, now)
			g.LinearRampToValueAtTime(0, now+p.FadeOutDuration)
			pan := v.Pan()
			held := pan.ValueAt(now)
			pan.CancelScheduledValues(now)
			pan.SetValueAtTime(held, now)

			t.fading = v
			var tm Timer
			tm = e.clock.AfterFunc(seconds(p.FadeOutDuration), func() {
				t.mu.Lock()
				defer e.unlock(t)
				if t.fadeStop != tm {
					return
				}
				t.fadeStop = nil
				if t.fading == v {
					v.Stop()
					t.fading = nil
				}
			})
			t.fadeStop = tm
		}
		t.emit(EventStopped)
		logger.Debug("track stopped", logger.Path(p.SoundPath), logger.Bool("immediate", immediate))
	}
	if immediate {
		e.haltFadeLocked(t)
	}
}

func (e *Engine) haltFadeLocked(t *Track) {
	stopTimer(&t.fadeStop)
	if t.fading != nil {
		t.fading.Stop()
		t.fading = nil
	}
}

// Remove stops the track immediately and marks it removed. Nothing is
// scheduled or started for it afterwards.
func (e *Engine) Remove(t *Track) {
	t.mu.Lock()
	defer e.unlock(t)
	if t.removed {
		return
	}
	e.stopLocked(t, true)
	t.removed = true
	t.emit(EventTrackRemoved)
}

// SetVolume changes the static volume. It is heard right away unless
// automation is driving the gain.
func (e *Engine) SetVolume(t *Track, v float64) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.Volume = v
	if t.voice != nil && !t.params.AutomationEnabled {
		now := e.out.Now()
		t.voice.Gain().CancelScheduledValues(now)
		t.voice.Gain().SetValueAtTime(v, now)
	}
}

// SetPan changes the static pan, heard right away unless pan automation
// is running.
func (e *Engine) SetPan(t *Track, pan float64) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.Pan = pan
	if t.voice != nil && !t.panAutomated() {
		now := e.out.Now()
		t.voice.Pan().CancelScheduledValues(now)
		t.voice.Pan().SetValueAtTime(pan, now)
	}
}

// LoopConfig is the loop mode with its interval settings.
type LoopConfig struct {
	Mode           model.LoopMode `json:"loopMode"`
	IntervalSec    float64        `json:"intervalSec"`
	MinIntervalSec float64        `json:"minIntervalSec"`
	MaxIntervalSec float64        `json:"maxIntervalSec"`
}

func (e *Engine) SetLoop(t *Track, c LoopConfig) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.LoopMode = c.Mode
	t.params.IntervalSec = c.IntervalSec
	t.params.MinIntervalSec = c.MinIntervalSec
	t.params.MaxIntervalSec = c.MaxIntervalSec
	if t.voice != nil {
		t.voice.SetLoop(c.Mode == model.LoopContinuous)
	}
	if c.Mode != model.LoopInterval && c.Mode != model.LoopRandomInterval {
		stopTimer(&t.retrigger)
	}
}

// FadeConfig applies to the next fade in or out.
type FadeConfig struct {
	FadeInEnabled   bool    `json:"fadeInEnabled"`
	FadeInDuration  float64 `json:"fadeInDuration"`
	FadeOutEnabled  bool    `json:"fadeOutEnabled"`
	FadeOutDuration float64 `json:"fadeOutDuration"`
}

func (e *Engine) SetFade(t *Track, c FadeConfig) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.FadeInEnabled = c.FadeInEnabled
	t.params.FadeInDuration = c.FadeInDuration
	t.params.FadeOutEnabled = c.FadeOutEnabled
	t.params.FadeOutDuration = c.FadeOutDuration
}

// TrackStatus is the live view of a track for UI feedback.
type TrackStatus struct {
	Params           model.TrackParams `json:"params"`
	Playing          bool              `json:"playing"`
	Loading          bool              `json:"loading"`
	FadingOut        bool              `json:"fadingOut"`
	AutomationActive bool              `json:"automationActive"`
	Volume           float64           `json:"currentVolume"`
	Pan              float64           `json:"currentPan"`
	PendingTimers    int               `json:"pendingTimers"`
}

func (e *Engine) Status(t *Track) TrackStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := e.out.Now()
	return TrackStatus{
		Params:           t.params,
		Playing:          t.playing,
		Loading:          t.loading,
		FadingOut:        t.fading != nil,
		AutomationActive: t.voice != nil && (t.volActive || t.panActive),
		Volume:           e.automatedVolumeLocked(t, now),
		Pan:              e.automatedPanLocked(t, now),
		PendingTimers:    t.pendingTimers(),
	}
}
