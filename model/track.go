package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// LoopMode decides what happens when a track's source runs out.
type LoopMode string

const (
	LoopContinuous     LoopMode = "loop"
	LoopInterval       LoopMode = "interval"
	LoopRandomInterval LoopMode = "random-interval"
	LoopPlayOnce       LoopMode = "play-once"
)

func (m LoopMode) Valid() bool {
	switch m {
	case LoopContinuous, LoopInterval, LoopRandomInterval, LoopPlayOnce:
		return true
	}
	return false
}

// VolumeCurve is the shape of a volume automation.
type VolumeCurve string

const (
	CurveLinear      VolumeCurve = "linear"
	CurveExponential VolumeCurve = "exponential"
	CurveSinusoidal  VolumeCurve = "sinusoidal"
)

func (c VolumeCurve) Valid() bool {
	return c == CurveLinear || c == CurveExponential || c == CurveSinusoidal
}

// PanDirection is the sweep of a pan automation.
type PanDirection string

const (
	PanLeftRight PanDirection = "left-right"
	PanRightLeft PanDirection = "right-left"
	PanBouncing  PanDirection = "bouncing"
)

func (d PanDirection) Valid() bool {
	return d == PanLeftRight || d == PanRightLeft || d == PanBouncing
}

// Flip returns the opposite sweep. Bouncing has no opposite.
func (d PanDirection) Flip() PanDirection {
	switch d {
	case PanLeftRight:
		return PanRightLeft
	case PanRightLeft:
		return PanLeftRight
	}
	return d
}

type VolumeAutomation struct {
	Type     VolumeCurve `json:"type"`
	Duration float64     `json:"duration"` // seconds
	StartVol float64     `json:"startVol"`
	EndVol   float64     `json:"endVol"`
	Cycle    bool        `json:"cycle"`
}

type PanAutomation struct {
	Enabled   bool         `json:"enabled"`
	Duration  float64      `json:"duration"` // seconds
	Direction PanDirection `json:"direction"`
	Cycle     bool         `json:"cycle"`
}

type ProbabilisticSpawn struct {
	Enabled          bool    `json:"enabled"`
	MinInterval      float64 `json:"minInterval"` // seconds
	MaxInterval      float64 `json:"maxInterval"` // seconds
	SpawnProbability float64 `json:"spawnProbability"`
}

// TrackParams is everything about a mixer track that gets persisted.
type TrackParams struct {
	SoundPath string   `json:"soundPath"`
	Volume    float64  `json:"volume"`
	Pan       float64  `json:"pan"`
	LoopMode  LoopMode `json:"loopMode"`

	IntervalSec    float64 `json:"intervalSec"`
	MinIntervalSec float64 `json:"minIntervalSec"`
	MaxIntervalSec float64 `json:"maxIntervalSec"`

	FadeInDuration  float64 `json:"fadeInDuration"`
	FadeOutDuration float64 `json:"fadeOutDuration"`
	FadeInEnabled   bool    `json:"fadeInEnabled"`
	FadeOutEnabled  bool    `json:"fadeOutEnabled"`

	AutomationEnabled  bool               `json:"automationEnabled"`
	VolumeAutomation   VolumeAutomation   `json:"volumeAutomation"`
	PanAutomation      PanAutomation      `json:"panAutomation"`
	ProbabilisticSpawn ProbabilisticSpawn `json:"probabilisticSpawn"`
}

func DefaultVolumeAutomation() VolumeAutomation {
	return VolumeAutomation{Type: CurveLinear, Duration: 10, StartVol: 0.0, EndVol: 0.8}
}

func DefaultPanAutomation() PanAutomation {
	return PanAutomation{Duration: 10, Direction: PanLeftRight}
}

func DefaultProbabilisticSpawn() ProbabilisticSpawn {
	return ProbabilisticSpawn{MinInterval: 10, MaxInterval: 30, SpawnProbability: 0.3}
}

// DefaultTrackParams returns the settings a freshly added track starts with.
func DefaultTrackParams(soundPath string) TrackParams {
	return TrackParams{
		SoundPath:          soundPath,
		Volume:             0.5,
		Pan:                0,
		LoopMode:           LoopContinuous,
		IntervalSec:        30,
		MinIntervalSec:     15,
		MaxIntervalSec:     45,
		FadeInDuration:     1.0,
		FadeOutDuration:    1.0,
		FadeInEnabled:      true,
		FadeOutEnabled:     true,
		AutomationEnabled:  false,
		VolumeAutomation:   DefaultVolumeAutomation(),
		PanAutomation:      DefaultPanAutomation(),
		ProbabilisticSpawn: DefaultProbabilisticSpawn(),
	}
}

// RandomIntervalBounds returns the random-interval range with min and max
// swapped when stored inverted.
func (p TrackParams) RandomIntervalBounds() (lo, hi float64) {
	return math.Min(p.MinIntervalSec, p.MaxIntervalSec), math.Max(p.MinIntervalSec, p.MaxIntervalSec)
}

// Validate rejects values an API caller must not be allowed to set.
func (p TrackParams) Validate() error {
	switch {
	case p.SoundPath == "":
		return fmt.Errorf("soundPath is required")
	case p.Volume < 0 || p.Volume > 1:
		return fmt.Errorf("volume %v out of range [0,1]", p.Volume)
	case p.Pan < -1 || p.Pan > 1:
		return fmt.Errorf("pan %v out of range [-1,1]", p.Pan)
	case !p.LoopMode.Valid():
		return fmt.Errorf("unknown loopMode %q", p.LoopMode)
	case p.IntervalSec < 0 || p.MinIntervalSec < 0 || p.MaxIntervalSec < 0:
		return fmt.Errorf("intervals must not be negative")
	case p.FadeInDuration < 0 || p.FadeOutDuration < 0:
		return fmt.Errorf("fade durations must not be negative")
	}
	if err := p.VolumeAutomation.Validate(); err != nil {
		return err
	}
	if err := p.PanAutomation.Validate(); err != nil {
		return err
	}
	return p.ProbabilisticSpawn.Validate()
}

func (a VolumeAutomation) Validate() error {
	switch {
	case !a.Type.Valid():
		return fmt.Errorf("unknown volume automation type %q", a.Type)
	case a.Duration <= 0:
		return fmt.Errorf("volume automation duration must be positive")
	case a.StartVol < 0 || a.StartVol > 1 || a.EndVol < 0 || a.EndVol > 1:
		return fmt.Errorf("volume automation levels must be within [0,1]")
	}
	return nil
}

func (a PanAutomation) Validate() error {
	switch {
	case !a.Direction.Valid():
		return fmt.Errorf("unknown pan direction %q", a.Direction)
	case a.Duration <= 0:
		return fmt.Errorf("pan automation duration must be positive")
	}
	return nil
}

func (s ProbabilisticSpawn) Validate() error {
	switch {
	case s.MinInterval < 0 || s.MaxInterval < 0:
		return fmt.Errorf("spawn intervals must not be negative")
	case s.MinInterval > s.MaxInterval:
		return fmt.Errorf("spawn minInterval %v exceeds maxInterval %v", s.MinInterval, s.MaxInterval)
	case s.Enabled && s.MaxInterval <= 0:
		return fmt.Errorf("spawn maxInterval must be positive")
	case s.SpawnProbability < 0 || s.SpawnProbability > 1:
		return fmt.Errorf("spawnProbability %v out of range [0,1]", s.SpawnProbability)
	}
	return nil
}

// fields is a decoded JSON object whose members are read one at a time, so
// one bad member never spoils its siblings.
type fields map[string]json.RawMessage

func objectFields(raw json.RawMessage) (fields, bool) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil, false
	}
	return f, true
}

func (f fields) number(key string, def float64) float64 {
	var v float64
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &v) == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return def
}

func (f fields) boolean(key string, def bool) bool {
	var v bool
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &v) == nil {
		return v
	}
	return def
}

func (f fields) str(key string, def string) string {
	var v string
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &v) == nil && v != "" {
		return v
	}
	return def
}

func (f fields) object(key string) fields {
	if raw, ok := f[key]; ok {
		if sub, ok := objectFields(raw); ok {
			return sub
		}
	}
	return fields{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func nonNegative(v, def float64) float64 {
	if v < 0 {
		return def
	}
	return v
}

func positive(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// NormalizeTrack turns one stored track record into TrackParams. Every
// field that is missing, of the wrong type or out of range takes its
// default; records written by older versions load the same way. It
// reports false when the record has no usable soundPath.
func NormalizeTrack(raw json.RawMessage) (TrackParams, bool) {
	f, ok := objectFields(raw)
	if !ok {
		return TrackParams{}, false
	}
	path := f.str("soundPath", "")
	if path == "" {
		return TrackParams{}, false
	}

	d := DefaultTrackParams(path)
	p := TrackParams{
		SoundPath:       path,
		Volume:          clamp(f.number("volume", d.Volume), 0, 1),
		Pan:             clamp(f.number("pan", d.Pan), -1, 1),
		LoopMode:        LoopMode(f.str("loopMode", string(d.LoopMode))),
		IntervalSec:     nonNegative(f.number("intervalSec", d.IntervalSec), d.IntervalSec),
		MinIntervalSec:  nonNegative(f.number("minIntervalSec", d.MinIntervalSec), d.MinIntervalSec),
		MaxIntervalSec:  nonNegative(f.number("maxIntervalSec", d.MaxIntervalSec), d.MaxIntervalSec),
		FadeInDuration:  nonNegative(f.number("fadeInDuration", d.FadeInDuration), d.FadeInDuration),
		FadeOutDuration: nonNegative(f.number("fadeOutDuration", d.FadeOutDuration), d.FadeOutDuration),
		FadeInEnabled:   f.boolean("fadeInEnabled", d.FadeInEnabled),
		FadeOutEnabled:  f.boolean("fadeOutEnabled", d.FadeOutEnabled),

		AutomationEnabled: f.boolean("automationEnabled", d.AutomationEnabled),
	}
	if !p.LoopMode.Valid() {
		p.LoopMode = d.LoopMode
	}

	va := f.object("volumeAutomation")
	p.VolumeAutomation = VolumeAutomation{
		Type:     VolumeCurve(va.str("type", string(d.VolumeAutomation.Type))),
		Duration: positive(va.number("duration", d.VolumeAutomation.Duration), d.VolumeAutomation.Duration),
		StartVol: clamp(va.number("startVol", d.VolumeAutomation.StartVol), 0, 1),
		EndVol:   clamp(va.number("endVol", d.VolumeAutomation.EndVol), 0, 1),
		Cycle:    va.boolean("cycle", d.VolumeAutomation.Cycle),
	}
	if !p.VolumeAutomation.Type.Valid() {
		p.VolumeAutomation.Type = d.VolumeAutomation.Type
	}

	pa := f.object("panAutomation")
	p.PanAutomation = PanAutomation{
		Enabled:   pa.boolean("enabled", d.PanAutomation.Enabled),
		Duration:  positive(pa.number("duration", d.PanAutomation.Duration), d.PanAutomation.Duration),
		Direction: PanDirection(pa.str("direction", string(d.PanAutomation.Direction))),
		Cycle:     pa.boolean("cycle", d.PanAutomation.Cycle),
	}
	if !p.PanAutomation.Direction.Valid() {
		p.PanAutomation.Direction = d.PanAutomation.Direction
	}

	ps := f.object("probabilisticSpawn")
	p.ProbabilisticSpawn = ProbabilisticSpawn{
		Enabled:          ps.boolean("enabled", d.ProbabilisticSpawn.Enabled),
		MinInterval:      nonNegative(ps.number("minInterval", d.ProbabilisticSpawn.MinInterval), d.ProbabilisticSpawn.MinInterval),
		MaxInterval:      nonNegative(ps.number("maxInterval", d.ProbabilisticSpawn.MaxInterval), d.ProbabilisticSpawn.MaxInterval),
		SpawnProbability: clamp(ps.number("spawnProbability", d.ProbabilisticSpawn.SpawnProbability), 0, 1),
	}
	if p.ProbabilisticSpawn.MinInterval > p.ProbabilisticSpawn.MaxInterval {
		p.ProbabilisticSpawn.MinInterval, p.ProbabilisticSpawn.MaxInterval =
			p.ProbabilisticSpawn.MaxInterval, p.ProbabilisticSpawn.MinInterval
	}
	if p.ProbabilisticSpawn.MaxInterval == 0 {
		p.ProbabilisticSpawn.MinInterval = d.ProbabilisticSpawn.MinInterval
		p.ProbabilisticSpawn.MaxInterval = d.ProbabilisticSpawn.MaxInterval
	}
	return p, true
}
