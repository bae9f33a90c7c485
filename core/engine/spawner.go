package engine

import (
	"time"

	"Soundscape/logger"
	"Soundscape/model"
)

// minSpawnDelay bounds the trial rate when both intervals are zero.
const minSpawnDelay = 100 * time.Millisecond

// scheduleSpawn arms the next spawn trial after a uniform delay in
// [minInterval, maxInterval]. Each trial re-arms before acting, so exactly
// one spawn timer is pending while the spawner is enabled.
func (e *Engine) scheduleSpawn(t *Track) {
	stopTimer(&t.spawn)
	s := t.params.ProbabilisticSpawn
	if !s.Enabled || t.removed {
		return
	}
	lo, hi := s.MinInterval, s.MaxInterval
	if lo > hi {
		lo, hi = hi, lo
	}
	delay := max(seconds(lo+e.rng()*(hi-lo)), minSpawnDelay)
	e.arm(t, &t.spawn, delay, func() {
		s := t.params.ProbabilisticSpawn
		if !s.Enabled {
			return
		}
		e.scheduleSpawn(t)
		if e.rng() >= s.SpawnProbability {
			return
		}
		if t.voice != nil || t.loading {
			return
		}
		t.emit(EventSpawned)
		logger.Debug("probabilistic spawn", logger.Path(t.params.SoundPath))
		e.startLocked(t, nil)
	})
}

// SetSpawn replaces the spawner settings. Disabling cancels the pending
// trial; enabling on a sounding track (or changing an armed one) re-arms
// it with the new bounds.
func (e *Engine) SetSpawn(t *Track, s model.ProbabilisticSpawn) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.ProbabilisticSpawn = s
	if !s.Enabled {
		stopTimer(&t.spawn)
		return
	}
	if t.voice != nil || t.spawn != nil || t.retrigger != nil {
		e.scheduleSpawn(t)
	}
}
