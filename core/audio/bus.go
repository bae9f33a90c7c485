package audio

import (
	"errors"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

var (
	ErrVoiceStarted = errors.New("audio: voice already started")
	ErrEmptyBuffer  = errors.New("audio: empty buffer")
)

// Output is the audio facility the engine plays through.
type Output interface {
	// Now is the audio clock in seconds.
	Now() float64
	NewVoice(buf *Buffer, loop bool) (Voice, error)
}

// Voice is one source -> gain -> pan chain connected to an Output.
type Voice interface {
	Gain() *Param
	Pan() *Param
	SetLoop(loop bool)
	// Start begins playback now. onEnded runs once, on its own goroutine,
	// when a non-looping source runs out of frames. It never runs after Stop.
	Start(onEnded func()) error
	Stop()
}

// Bus mixes every started voice into one stereo stream and owns the audio
// clock, which advances by the number of frames rendered.
type Bus struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	frames int64
	voices []*voice

	gain []float64
	pan  []float64
}

func NewBus(rate beep.SampleRate) *Bus {
	return &Bus{rate: rate}
}

func (b *Bus) SampleRate() beep.SampleRate { return b.rate }

func (b *Bus) Now() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.frames) / float64(b.rate)
}

// Active returns the number of voices currently sounding.
func (b *Bus) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.voices)
}

func (b *Bus) NewVoice(buf *Buffer, loop bool) (Voice, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, ErrEmptyBuffer
	}
	return &voice{
		bus:  b,
		buf:  buf,
		loop: loop,
		gain: NewParam(1),
		pan:  NewParam(0),
	}, nil
}

// Stream implements beep.Streamer. The bus never drains; silence is
// rendered while no voice is active.
func (b *Bus) Stream(samples [][2]float64) (n int, ok bool) {
	b.mu.Lock()
	for i := range samples {
		samples[i] = [2]float64{}
	}
	if cap(b.gain) < len(samples) {
		b.gain = make([]float64, len(samples))
		b.pan = make([]float64, len(samples))
	}
	gain, pan := b.gain[:len(samples)], b.pan[:len(samples)]

	t0 := float64(b.frames) / float64(b.rate)
	dt := 1 / float64(b.rate)

	var ended []func()
	live := b.voices[:0]
	for _, v := range b.voices {
		v.gain.Fill(t0, dt, gain)
		v.pan.Fill(t0, dt, pan)
		if v.render(samples, gain, pan) {
			live = append(live, v)
			continue
		}
		v.state = voiceEnded
		if v.onEnded != nil {
			ended = append(ended, v.onEnded)
		}
	}
	for i := len(live); i < len(b.voices); i++ {
		b.voices[i] = nil
	}
	b.voices = live
	b.frames += int64(len(samples))
	b.mu.Unlock()

	for _, f := range ended {
		go f()
	}
	return len(samples), true
}

func (b *Bus) Err() error { return nil }

type voiceState int

const (
	voiceIdle voiceState = iota
	voicePlaying
	voiceEnded
	voiceStopped
)

type voice struct {
	bus     *Bus
	buf     *Buffer
	loop    bool
	pos     int
	state   voiceState
	onEnded func()

	gain *Param
	pan  *Param
}

func (v *voice) Gain() *Param { return v.gain }
func (v *voice) Pan() *Param  { return v.pan }

func (v *voice) SetLoop(loop bool) {
	v.bus.mu.Lock()
	v.loop = loop
	v.bus.mu.Unlock()
}

func (v *voice) Start(onEnded func()) error {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	if v.state != voiceIdle {
		return ErrVoiceStarted
	}
	v.state = voicePlaying
	v.onEnded = onEnded
	v.bus.voices = append(v.bus.voices, v)
	return nil
}

func (v *voice) Stop() {
	v.bus.mu.Lock()
	defer v.bus.mu.Unlock()
	if v.state != voicePlaying {
		v.state = voiceStopped
		return
	}
	v.state = voiceStopped
	for i, o := range v.bus.voices {
		if o == v {
			v.bus.voices = append(v.bus.voices[:i], v.bus.voices[i+1:]...)
			break
		}
	}
}

// render adds the voice into out and reports whether it is still sounding.
// Caller holds the bus lock.
func (v *voice) render(out [][2]float64, gain, pan []float64) bool {
	frames := v.buf.Samples
	for i := range out {
		if v.pos >= len(frames) {
			if !v.loop {
				return false
			}
			v.pos = 0
		}
		l, r := stereoPan(frames[v.pos][0], frames[v.pos][1], pan[i])
		out[i][0] += l * gain[i]
		out[i][1] += r * gain[i]
		v.pos++
	}
	return v.loop || v.pos < len(frames)
}

// stereoPan is the equal-power panner used for stereo input.
func stereoPan(l, r, pan float64) (float64, float64) {
	pan = math.Max(-1, math.Min(1, pan))
	if pan <= 0 {
		x := (pan + 1) * math.Pi / 2
		return l + r*math.Cos(x), r * math.Sin(x)
	}
	x := pan * math.Pi / 2
	return l * math.Cos(x), r + l*math.Sin(x)
}
