package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mix is a named snapshot of every track in the mixer.
type Mix struct {
	Name      string        `json:"name"`
	Timestamp time.Time     `json:"timestamp"`
	Tracks    []TrackParams `json:"tracks"`
}

// MixSummary is what mix listings show.
type MixSummary struct {
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	TrackCount int       `json:"trackCount"`
}

func (m *Mix) Summary() MixSummary {
	return MixSummary{Name: m.Name, Timestamp: m.Timestamp, TrackCount: len(m.Tracks)}
}

var (
	ErrNotJSONObject = errors.New("record is not a JSON object")
	ErrMixName       = errors.New("mix has no name")
	ErrMixTracks     = errors.New("mix has no tracks array")
)

// DecodeMix parses a stored mix record. The record itself must be an object
// with a non-empty string name and a tracks array; each track goes through
// NormalizeTrack, and track records without a soundPath are dropped.
func DecodeMix(data []byte) (*Mix, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSONObject
	}
	var raw struct {
		Name      json.RawMessage   `json:"name"`
		Timestamp json.RawMessage   `json:"timestamp"`
		Tracks    []json.RawMessage `json:"tracks"`
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "tracks" {
			return nil, ErrMixTracks
		}
		return nil, fmt.Errorf("parse mix: %w", err)
	}

	var name string
	if json.Unmarshal(raw.Name, &name) != nil || name == "" {
		return nil, ErrMixName
	}
	if raw.Tracks == nil {
		return nil, ErrMixTracks
	}

	mix := &Mix{Name: name, Tracks: make([]TrackParams, 0, len(raw.Tracks))}
	var ts string
	if json.Unmarshal(raw.Timestamp, &ts) == nil {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			mix.Timestamp = t
		}
	}

	seen := make(map[string]bool, len(raw.Tracks))
	for _, rt := range raw.Tracks {
		p, ok := NormalizeTrack(rt)
		if !ok || seen[p.SoundPath] {
			continue
		}
		seen[p.SoundPath] = true
		mix.Tracks = append(mix.Tracks, p)
	}
	return mix, nil
}
