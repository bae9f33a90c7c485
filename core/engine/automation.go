package engine

import (
	"math"

	"Soundscape/logger"
	"Soundscape/model"
)

const (
	// exponential ramps and sampled curves never go below this gain
	minGain = 0.01
	// sinusoidal curves are written as steps at this rate
	sinusoidSamplesPerSec = 100
	bounceSegments        = 10
)

// VolumeAt is the gain of curve c at elapsed fraction p in [0,1].
func VolumeAt(c model.VolumeAutomation, p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	switch c.Type {
	case model.CurveExponential:
		start, end := math.Max(c.StartVol, minGain), math.Max(c.EndVol, minGain)
		return start * math.Pow(end/start, p)
	case model.CurveSinusoidal:
		return c.StartVol + (c.EndVol-c.StartVol)*(math.Sin(2*math.Pi*p-math.Pi/2)+1)/2
	default:
		return c.StartVol + (c.EndVol-c.StartVol)*p
	}
}

// PanAt is the pan of sweep c after elapsed seconds.
func PanAt(c model.PanAutomation, elapsed float64) float64 {
	if c.Duration <= 0 {
		return 0
	}
	elapsed = math.Max(0, math.Min(c.Duration, elapsed))
	p := elapsed / c.Duration
	switch c.Direction {
	case model.PanRightLeft:
		return 1 - 2*p
	case model.PanBouncing:
		seg := c.Duration / bounceSegments
		i := int(math.Floor(elapsed / seg))
		if i >= bounceSegments {
			i = bounceSegments - 1
		}
		frac := (elapsed - float64(i)*seg) / seg
		from, to := -1.0, 1.0
		if i%2 == 1 {
			from, to = 1, -1
		}
		return from + (to-from)*frac
	default:
		return -1 + 2*p
	}
}

func (t *Track) panAutomated() bool {
	return t.params.AutomationEnabled && t.params.PanAutomation.Enabled
}

// applyVolumeAutomation writes t.volCurve onto the gain param starting now
// and arms the cycle timer when the curve cycles.
func (e *Engine) applyVolumeAutomation(t *Track) {
	v := t.voice
	if v == nil || !t.params.AutomationEnabled {
		return
	}
	c := t.volCurve
	now := e.out.Now()
	t.volStart = now
	t.volActive = true

	g := v.Gain()
	g.CancelScheduledValues(now)
	g.SetValueAtTime(c.StartVol, now)
	switch c.Type {
	case model.CurveLinear:
		g.LinearRampToValueAtTime(c.EndVol, now+c.Duration)
	case model.CurveExponential:
		start, end := math.Max(c.StartVol, minGain), math.Max(c.EndVol, minGain)
		g.SetValueAtTime(start, now)
		if err := g.ExponentialRampToValueAtTime(end, now+c.Duration); err != nil {
			logger.Warn("exponential ramp rejected", logger.Path(t.params.SoundPath), logger.ErrorField(err))
		}
	case model.CurveSinusoidal:
		steps := int(math.Ceil(c.Duration * sinusoidSamplesPerSec))
		for i := 0; i <= steps; i++ {
			p := float64(i) / float64(steps)
			g.SetValueAtTime(math.Max(minGain, VolumeAt(c, p)), now+p*c.Duration)
		}
	}
	t.emit(EventAutomation)

	stopTimer(&t.volCycle)
	if c.Cycle {
		e.arm(t, &t.volCycle, seconds(c.Duration), func() {
			if t.voice == nil || !t.params.AutomationEnabled {
				return
			}
			t.volCurve.StartVol, t.volCurve.EndVol = t.volCurve.EndVol, t.volCurve.StartVol
			e.applyVolumeAutomation(t)
		})
	}
}

// applyPanAutomation writes t.panCurve onto the pan param starting now.
func (e *Engine) applyPanAutomation(t *Track) {
	v := t.voice
	if v == nil || !t.panAutomated() {
		return
	}
	c := t.panCurve
	now := e.out.Now()
	t.panStart = now
	t.panActive = true

	pan := v.Pan()
	pan.CancelScheduledValues(now)
	switch c.Direction {
	case model.PanLeftRight:
		pan.SetValueAtTime(-1, now)
		pan.LinearRampToValueAtTime(1, now+c.Duration)
	case model.PanRightLeft:
		pan.SetValueAtTime(1, now)
		pan.LinearRampToValueAtTime(-1, now+c.Duration)
	case model.PanBouncing:
		seg := c.Duration / bounceSegments
		for i := 0; i < bounceSegments; i++ {
			from, to := -1.0, 1.0
			if i%2 == 1 {
				from, to = 1, -1
			}
			at := now + float64(i)*seg
			pan.SetValueAtTime(from, at)
			pan.LinearRampToValueAtTime(to, at+seg)
		}
	}

	stopTimer(&t.panCycle)
	if c.Cycle {
		e.arm(t, &t.panCycle, seconds(c.Duration), func() {
			if t.voice == nil || !t.panAutomated() {
				return
			}
			t.panCurve.Direction = t.panCurve.Direction.Flip()
			e.applyPanAutomation(t)
		})
	}
}

// cancelAutomationLocked stops both curves and their cycle timers and puts
// the static volume and pan back on a sounding voice.
func (e *Engine) cancelAutomationLocked(t *Track, volume, pan bool) {
	now := e.out.Now()
	if volume {
		stopTimer(&t.volCycle)
		if t.volActive && t.voice != nil {
			t.voice.Gain().CancelScheduledValues(now)
			t.voice.Gain().SetValueAtTime(t.params.Volume, now)
		}
		t.volActive = false
	}
	if pan {
		stopTimer(&t.panCycle)
		if t.panActive && t.voice != nil {
			t.voice.Pan().CancelScheduledValues(now)
			t.voice.Pan().SetValueAtTime(t.params.Pan, now)
		}
		t.panActive = false
	}
}

// AutomationConfig is the automation gate with both curves.
type AutomationConfig struct {
	Enabled bool                   `json:"automationEnabled"`
	Volume  model.VolumeAutomation `json:"volumeAutomation"`
	Pan     model.PanAutomation    `json:"panAutomation"`
}

// SetAutomation replaces the automation settings. A sounding track picks
// up the new curves from the current moment; turning automation off puts
// the static volume and pan back.
func (e *Engine) SetAutomation(t *Track, c AutomationConfig) {
	t.mu.Lock()
	defer e.unlock(t)
	t.params.AutomationEnabled = c.Enabled
	t.params.VolumeAutomation = c.Volume
	t.params.PanAutomation = c.Pan
	t.volCurve = c.Volume
	t.panCurve = c.Pan

	if t.voice == nil {
		return
	}
	if !c.Enabled {
		e.cancelAutomationLocked(t, true, true)
		return
	}
	e.applyVolumeAutomation(t)
	if c.Pan.Enabled {
		e.applyPanAutomation(t)
	} else {
		e.cancelAutomationLocked(t, false, true)
	}
}

// AutomatedVolume is the gain the track is producing now.
func (e *Engine) AutomatedVolume(t *Track) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return e.automatedVolumeLocked(t, e.out.Now())
}

// AutomatedPan is the pan the track is producing now.
func (e *Engine) AutomatedPan(t *Track) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return e.automatedPanLocked(t, e.out.Now())
}

func (e *Engine) automatedVolumeLocked(t *Track, now float64) float64 {
	if !t.params.AutomationEnabled || !t.volActive || t.volCurve.Duration <= 0 {
		if t.voice != nil {
			return t.voice.Gain().ValueAt(now)
		}
		return t.params.Volume
	}
	return VolumeAt(t.volCurve, (now-t.volStart)/t.volCurve.Duration)
}

func (e *Engine) automatedPanLocked(t *Track, now float64) float64 {
	if !t.panAutomated() || !t.panActive {
		if t.voice != nil {
			return t.voice.Pan().ValueAt(now)
		}
		return t.params.Pan
	}
	return PanAt(t.panCurve, now-t.panStart)
}
