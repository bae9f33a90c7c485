package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"Soundscape/core/audio"
	"Soundscape/model"
)

// fakeClock is a virtual timer facility. Advance runs due callbacks in time
// order on the calling goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	c     *fakeClock
	at    time.Duration
	seq   int
	f     func()
	armed bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.now + d, seq: c.seq, f: f, armed: true}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if !t.armed {
		return false
	}
	t.armed = false
	t.c.removeLocked(t)
	return true
}

func (c *fakeClock) removeLocked(t *fakeTimer) {
	for i, o := range c.timers {
		if o == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.removeLocked(next)
		next.armed = false
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) Seconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Seconds()
}

// fakeOutput hands out voices whose clock is the fake clock. Natural ends
// are triggered by the test through End.
type fakeOutput struct {
	clock *fakeClock

	mu      sync.Mutex
	voices  []*fakeVoice
	failNew error
}

func (o *fakeOutput) Now() float64 { return o.clock.Seconds() }

func (o *fakeOutput) NewVoice(buf *audio.Buffer, loop bool) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNew != nil {
		return nil, o.failNew
	}
	v := &fakeVoice{loop: loop, gain: audio.NewParam(1), pan: audio.NewParam(0)}
	o.voices = append(o.voices, v)
	return v, nil
}

func (o *fakeOutput) last() *fakeVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.voices) == 0 {
		return nil
	}
	return o.voices[len(o.voices)-1]
}

// sounding counts started voices that have neither ended nor stopped.
func (o *fakeOutput) sounding() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, v := range o.voices {
		if v.isSounding() {
			n++
		}
	}
	return n
}

type fakeVoice struct {
	mu      sync.Mutex
	loop    bool
	started bool
	stopped bool
	ended   bool
	onEnded func()

	gain *audio.Param
	pan  *audio.Param
}

func (v *fakeVoice) Gain() *audio.Param { return v.gain }
func (v *fakeVoice) Pan() *audio.Param  { return v.pan }

func (v *fakeVoice) SetLoop(loop bool) {
	v.mu.Lock()
	v.loop = loop
	v.mu.Unlock()
}

func (v *fakeVoice) Start(onEnded func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started {
		return audio.ErrVoiceStarted
	}
	v.started = true
	v.onEnded = onEnded
	return nil
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

func (v *fakeVoice) isSounding() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started && !v.stopped && !v.ended
}

// End simulates the source running out of frames.
func (v *fakeVoice) End() {
	v.mu.Lock()
	if !v.started || v.stopped || v.ended || v.loop {
		v.mu.Unlock()
		return
	}
	v.ended = true
	cb := v.onEnded
	v.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type harness struct {
	clock  *fakeClock
	out    *fakeOutput
	cache  *BufferCache
	eng    *Engine
	mixer  *Mixer
	events *eventLog
}

type eventLog struct {
	mu  sync.Mutex
	evs []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.evs {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

var errNoLoader = errors.New("no loader in test")

func testBuffer() *audio.Buffer {
	return &audio.Buffer{SampleRate: 1000, Samples: make([][2]float64, 2000)}
}

// newHarness builds an engine on fakes with every path in cached preloaded.
func newHarness(rng func() float64, cached ...string) *harness {
	clock := &fakeClock{}
	out := &fakeOutput{clock: clock}
	cache := NewBufferCache(LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		return nil, errNoLoader
	}))
	for _, p := range cached {
		cache.Put(p, testBuffer())
	}
	if rng == nil {
		rng = func() float64 { return 0 }
	}
	eng := NewEngine(out, cache, WithClock(clock), WithRand(rng))
	h := &harness{clock: clock, out: out, cache: cache, eng: eng, mixer: NewMixer(eng), events: &eventLog{}}
	eng.Subscribe(h.events.add)
	return h
}

func params(path string, mut func(*model.TrackParams)) model.TrackParams {
	p := model.DefaultTrackParams(path)
	p.FadeInEnabled = false
	p.FadeOutEnabled = false
	if mut != nil {
		mut(&p)
	}
	return p
}
