package engine

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventTrackAdded     EventKind = "track_added"
	EventTrackRemoved   EventKind = "track_removed"
	EventLoading        EventKind = "loading"
	EventStarted        EventKind = "started"
	EventEnded          EventKind = "ended"
	EventStopped        EventKind = "stopped"
	EventLoadFailed     EventKind = "load_failed"
	EventSetupFailed    EventKind = "setup_failed"
	EventRetriggerArmed EventKind = "retrigger_armed"
	EventSpawned        EventKind = "spawned"
	EventAutomation     EventKind = "automation_applied"
)

// Event is a playback transition delivered to subscribers.
type Event struct {
	Kind      EventKind     `json:"kind"`
	SoundPath string        `json:"soundPath"`
	Delay     time.Duration `json:"delay,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

type observers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Event)
}

func (o *observers) subscribe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Event))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.fns, id)
		o.mu.Unlock()
	}
}

func (o *observers) emit(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ev := range evs {
		if ev.Err != nil && ev.Error == "" {
			ev.Error = ev.Err.Error()
		}
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		for _, fn := range o.fns {
			fn(ev)
		}
	}
}
