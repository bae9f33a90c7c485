package engine

import (
	"context"
	"sync"
	"time"

	"Soundscape/logger"
	"Soundscape/model"
)

// Mixer is the ordered registry of tracks, at most one per sound path, and
// the aggregate play state.
type Mixer struct {
	eng *Engine

	mu      sync.RWMutex
	order   []*Track
	byPath  map[string]*Track
	playing bool
}

func NewMixer(eng *Engine) *Mixer {
	return &Mixer{eng: eng, byPath: make(map[string]*Track)}
}

func (m *Mixer) Engine() *Engine { return m.eng }

// AddTrack adds a track with default settings. It returns nil when path is
// already in the mix. While the mix is playing the new track starts at once.
func (m *Mixer) AddTrack(path string) *Track {
	return m.add(model.DefaultTrackParams(path))
}

// AddTrackWithParams is AddTrack with explicit settings.
func (m *Mixer) AddTrackWithParams(p model.TrackParams) *Track {
	return m.add(p)
}

func (m *Mixer) add(p model.TrackParams) *Track {
	m.mu.Lock()
	if _, ok := m.byPath[p.SoundPath]; ok {
		m.mu.Unlock()
		return nil
	}
	t := newTrack(p)
	m.order = append(m.order, t)
	m.byPath[p.SoundPath] = t
	playing := m.playing
	m.mu.Unlock()

	m.eng.observers.emit(Event{Kind: EventTrackAdded, SoundPath: p.SoundPath})
	logger.Info("track added", logger.Path(p.SoundPath), logger.Bool("lateJoin", playing))
	if playing {
		go m.report(t, m.eng.Start(t))
	}
	return t
}

func (m *Mixer) report(t *Track, res <-chan error) {
	if err := <-res; err != nil && err != ErrStartCancelled {
		logger.Warn("track failed to start", logger.Path(t.Path()), logger.ErrorField(err))
	}
}

// RemoveTrack stops the track immediately, cancels its timers and drops it.
func (m *Mixer) RemoveTrack(path string) error {
	m.mu.Lock()
	t, ok := m.byPath[path]
	if !ok {
		m.mu.Unlock()
		return ErrTrackNotFound
	}
	delete(m.byPath, path)
	for i, o := range m.order {
		if o == t {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.eng.Remove(t)
	logger.Info("track removed", logger.Path(path))
	return nil
}

// Track looks a track up by sound path.
func (m *Mixer) Track(path string) (*Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byPath[path]
	return t, ok
}

// Tracks returns the tracks in insertion order.
func (m *Mixer) Tracks() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Track, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Mixer) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playing
}

// PlayAll starts every track without an active source and waits for the
// attempts to settle. Failures are returned per sound path and do not
// affect the other tracks.
func (m *Mixer) PlayAll(ctx context.Context) map[string]error {
	m.mu.Lock()
	m.playing = true
	tracks := make([]*Track, len(m.order))
	copy(tracks, m.order)
	m.mu.Unlock()

	results := make(map[string]<-chan error, len(tracks))
	for _, t := range tracks {
		results[t.Path()] = m.eng.Start(t)
	}

	failed := make(map[string]error)
	for path, res := range results {
		select {
		case err := <-res:
			if err != nil && err != ErrStartCancelled {
				failed[path] = err
			}
		case <-ctx.Done():
			failed[path] = ctx.Err()
		}
	}
	logger.Info("mixer playing", logger.Int("tracks", len(tracks)), logger.Int("failed", len(failed)))
	return failed
}

// StopAll stops every track, honouring each one's fade-out.
func (m *Mixer) StopAll() {
	m.mu.Lock()
	m.playing = false
	tracks := make([]*Track, len(m.order))
	copy(tracks, m.order)
	m.mu.Unlock()

	for _, t := range tracks {
		m.eng.Stop(t, false)
	}
	logger.Info("mixer stopped", logger.Int("tracks", len(tracks)))
}

// ClearTracks stops everything immediately, marks every track removed and
// empties the registry.
func (m *Mixer) ClearTracks() {
	m.mu.Lock()
	m.playing = false
	tracks := m.order
	m.order = nil
	m.byPath = make(map[string]*Track)
	m.mu.Unlock()

	for _, t := range tracks {
		m.eng.Remove(t)
	}
	logger.Info("mixer cleared", logger.Int("tracks", len(tracks)))
}

// Snapshot captures the current mix under name.
func (m *Mixer) Snapshot(name string) *model.Mix {
	tracks := m.Tracks()
	mix := &model.Mix{
		Name:      name,
		Timestamp: time.Now().UTC(),
		Tracks:    make([]model.TrackParams, 0, len(tracks)),
	}
	for _, t := range tracks {
		mix.Tracks = append(mix.Tracks, t.Params())
	}
	return mix
}

// Restore replaces the mix with the given tracks and returns how many were
// added. The mixer is left stopped.
func (m *Mixer) Restore(tracks []model.TrackParams) int {
	m.ClearTracks()
	n := 0
	for _, p := range tracks {
		if m.add(p) != nil {
			n++
		}
	}
	return n
}

// Status reports every track in order.
func (m *Mixer) Status() []TrackStatus {
	tracks := m.Tracks()
	out := make([]TrackStatus, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, m.eng.Status(t))
	}
	return out
}

func (m *Mixer) lookup(path string) (*Track, error) {
	t, ok := m.Track(path)
	if !ok {
		return nil, ErrTrackNotFound
	}
	return t, nil
}

func (m *Mixer) SetVolume(path string, v float64) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetVolume(t, v)
	return nil
}

func (m *Mixer) SetPan(path string, pan float64) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetPan(t, pan)
	return nil
}

func (m *Mixer) SetLoop(path string, c LoopConfig) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetLoop(t, c)
	return nil
}

func (m *Mixer) SetFade(path string, c FadeConfig) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetFade(t, c)
	return nil
}

func (m *Mixer) SetAutomation(path string, c AutomationConfig) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetAutomation(t, c)
	return nil
}

func (m *Mixer) SetSpawn(path string, s model.ProbabilisticSpawn) error {
	t, err := m.lookup(path)
	if err != nil {
		return err
	}
	m.eng.SetSpawn(t, s)
	return nil
}
