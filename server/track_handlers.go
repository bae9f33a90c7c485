package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"Soundscape/catalog"
	"Soundscape/core/engine"
	"Soundscape/logger"
	"Soundscape/model"
)

type mixerStatus struct {
	Playing bool                 `json:"playing"`
	Tracks  []engine.TrackStatus `json:"tracks"`
}

func (h *APIHandler) currentStatus() mixerStatus {
	return mixerStatus{Playing: h.mixer.IsPlaying(), Tracks: h.mixer.Status()}
}

// GetSoundsHandler lists the catalog grouped by category, or one category
// with ?category=.
func (h *APIHandler) GetSoundsHandler(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("category"); name != "" {
		sounds, err := h.sounds.ByCategory(r.Context(), name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(sounds) == 0 {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown category " + name})
			return
		}
		writeJSON(w, http.StatusOK, model.GroupByCategory(sounds)[0])
		return
	}
	cats, err := catalog.Categories(r.Context(), h.sounds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// GetTracksHandler reports every track with its live state.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentStatus())
}

// AddTrackHandler adds a track. Only soundPath is required; any other
// TrackParams field present in the body overrides its default.
func (h *APIHandler) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, r, err)
		return
	}
	p, ok := model.NormalizeTrack(raw)
	if !ok {
		writeError(w, r, invalid("soundPath is required"))
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, invalid("%v", err))
		return
	}
	t := h.mixer.AddTrackWithParams(p)
	if t == nil {
		writeError(w, r, engine.ErrTrackExists)
		return
	}
	writeJSON(w, http.StatusCreated, h.mixer.Engine().Status(t))
}

type trackRef struct {
	SoundPath string `json:"soundPath"`
}

// RemoveTrackHandler removes the track named in the body.
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req trackRef
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.mixer.RemoveTrack(req.SoundPath); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type volumeRequest struct {
	SoundPath string  `json:"soundPath"`
	Volume    float64 `json:"volume"`
}

type panRequest struct {
	SoundPath string  `json:"soundPath"`
	Pan       float64 `json:"pan"`
}

type loopRequest struct {
	SoundPath string `json:"soundPath"`
	engine.LoopConfig
}

type fadeRequest struct {
	SoundPath string `json:"soundPath"`
	engine.FadeConfig
}

type automationRequest struct {
	SoundPath string `json:"soundPath"`
	engine.AutomationConfig
}

type spawnRequest struct {
	SoundPath string `json:"soundPath"`
	model.ProbabilisticSpawn
}

// UpdateTrackHandler changes one group of settings on a track. The body
// names the track and carries the new values; omitted values keep their
// current setting.
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, r, err)
		return
	}
	var ref trackRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		writeError(w, r, invalid("request body: %v", err))
		return
	}
	t, ok := h.mixer.Track(ref.SoundPath)
	if !ok {
		writeError(w, r, engine.ErrTrackNotFound)
		return
	}
	cur := t.Params()
	next := cur

	setting := mux.Vars(r)["setting"]
	var apply func() error
	switch setting {
	case "volume":
		req := volumeRequest{Volume: cur.Volume}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.Volume = req.Volume
		apply = func() error { return h.mixer.SetVolume(ref.SoundPath, req.Volume) }
	case "pan":
		req := panRequest{Pan: cur.Pan}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.Pan = req.Pan
		apply = func() error { return h.mixer.SetPan(ref.SoundPath, req.Pan) }
	case "loop":
		req := loopRequest{LoopConfig: engine.LoopConfig{
			Mode:           cur.LoopMode,
			IntervalSec:    cur.IntervalSec,
			MinIntervalSec: cur.MinIntervalSec,
			MaxIntervalSec: cur.MaxIntervalSec,
		}}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.LoopMode = req.Mode
		next.IntervalSec = req.IntervalSec
		next.MinIntervalSec = req.MinIntervalSec
		next.MaxIntervalSec = req.MaxIntervalSec
		apply = func() error { return h.mixer.SetLoop(ref.SoundPath, req.LoopConfig) }
	case "fade":
		req := fadeRequest{FadeConfig: engine.FadeConfig{
			FadeInEnabled:   cur.FadeInEnabled,
			FadeInDuration:  cur.FadeInDuration,
			FadeOutEnabled:  cur.FadeOutEnabled,
			FadeOutDuration: cur.FadeOutDuration,
		}}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.FadeInEnabled = req.FadeInEnabled
		next.FadeInDuration = req.FadeInDuration
		next.FadeOutEnabled = req.FadeOutEnabled
		next.FadeOutDuration = req.FadeOutDuration
		apply = func() error { return h.mixer.SetFade(ref.SoundPath, req.FadeConfig) }
	case "automation":
		req := automationRequest{AutomationConfig: engine.AutomationConfig{
			Enabled: cur.AutomationEnabled,
			Volume:  cur.VolumeAutomation,
			Pan:     cur.PanAutomation,
		}}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.AutomationEnabled = req.Enabled
		next.VolumeAutomation = req.Volume
		next.PanAutomation = req.Pan
		apply = func() error { return h.mixer.SetAutomation(ref.SoundPath, req.AutomationConfig) }
	case "spawn":
		req := spawnRequest{ProbabilisticSpawn: cur.ProbabilisticSpawn}
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, r, invalid("%v", err))
			return
		}
		next.ProbabilisticSpawn = req.ProbabilisticSpawn
		apply = func() error { return h.mixer.SetSpawn(ref.SoundPath, req.ProbabilisticSpawn) }
	default:
		writeError(w, r, invalid("unknown setting %q", setting))
		return
	}

	if err := next.Validate(); err != nil {
		writeError(w, r, invalid("%v", err))
		return
	}
	if err := apply(); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Debug("Track updated",
		logger.Path(ref.SoundPath),
		logger.String("setting", setting),
		logger.String("user", usernameFrom(r.Context())))
	writeJSON(w, http.StatusOK, h.mixer.Engine().Status(t))
}

// PlayHandler starts every track and reports the ones that failed.
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	failed := h.mixer.PlayAll(r.Context())
	resp := struct {
		mixerStatus
		Failed map[string]string `json:"failed,omitempty"`
	}{mixerStatus: h.currentStatus()}
	if len(failed) > 0 {
		resp.Failed = make(map[string]string, len(failed))
		for path, err := range failed {
			resp.Failed[path] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	h.mixer.StopAll()
	writeJSON(w, http.StatusOK, h.currentStatus())
}

func (h *APIHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	h.mixer.ClearTracks()
	w.WriteHeader(http.StatusNoContent)
}
