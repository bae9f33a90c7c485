package audio

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrNonPositiveTarget is returned by ExponentialRampToValueAtTime for targets <= 0.
var ErrNonPositiveTarget = errors.New("audio: exponential ramp target must be positive")

type eventKind int

const (
	setEvent eventKind = iota
	linearEvent
	exponentialEvent
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
}

// Param is an automatable value on the audio clock. Scheduled events are
// evaluated against the clock time requested by the renderer, so ramps keep
// moving whether or not anyone touches the param after scheduling them.
type Param struct {
	mu     sync.Mutex
	value  float64
	events []paramEvent
}

// NewParam returns a param holding v until something is scheduled.
func NewParam(v float64) *Param {
	return &Param{value: v}
}

// insert keeps events ordered by time; equal times keep call order.
func (p *Param) insert(e paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) SetValueAtTime(v, t float64) {
	p.mu.Lock()
	p.insert(paramEvent{kind: setEvent, time: t, value: v})
	p.mu.Unlock()
}

// LinearRampToValueAtTime ramps linearly from the previous event to v, arriving at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.mu.Lock()
	p.insert(paramEvent{kind: linearEvent, time: t, value: v})
	p.mu.Unlock()
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event to v.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) error {
	if v <= 0 {
		return ErrNonPositiveTarget
	}
	p.mu.Lock()
	p.insert(paramEvent{kind: exponentialEvent, time: t, value: v})
	p.mu.Unlock()
	return nil
}

// CancelScheduledValues drops every event at or after t. The value held
// before t is kept.
func (p *Param) CancelScheduledValues(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
}

// Pending reports the number of scheduled events.
func (p *Param) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// ValueAt evaluates the timeline at clock time t.
func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAtLocked(t)
}

// Fill writes the value at t0, t0+dt, ... into out and forgets events that
// can no longer influence times >= t0.
func (p *Param) Fill(t0, dt float64, out []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		for i := range out {
			out[i] = p.value
		}
		return
	}
	for i := range out {
		out[i] = p.valueAtLocked(t0 + float64(i)*dt)
	}
	p.pruneLocked(t0 + float64(len(out))*dt)
}

func (p *Param) pruneLocked(t float64) {
	// last event with time <= t stays as the anchor of whatever follows
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > t }) - 1
	if i <= 0 {
		return
	}
	p.value = p.events[i-1].value
	p.events = append(p.events[:0], p.events[i:]...)
}

func (p *Param) valueAtLocked(t float64) float64 {
	next := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > t })
	prevValue, prevTime := p.value, math.Inf(-1)
	if next > 0 {
		prevValue, prevTime = p.events[next-1].value, p.events[next-1].time
	}
	if next == len(p.events) {
		return prevValue
	}
	e := p.events[next]
	if e.kind == setEvent || math.IsInf(prevTime, -1) {
		return prevValue
	}
	frac := (t - prevTime) / (e.time - prevTime)
	switch e.kind {
	case linearEvent:
		return prevValue + (e.value-prevValue)*frac
	case exponentialEvent:
		if prevValue <= 0 {
			return prevValue
		}
		return prevValue * math.Pow(e.value/prevValue, frac)
	}
	return prevValue
}
