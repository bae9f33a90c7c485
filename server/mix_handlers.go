package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"Soundscape/logger"
)

// ListMixesHandler lists saved mixes.
func (h *APIHandler) ListMixesHandler(w http.ResponseWriter, r *http.Request) {
	mixes, err := h.mixes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mixes)
}

// SaveMixHandler saves the current tracks under the given name.
func (h *APIHandler) SaveMixHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mix := h.mixer.Snapshot(req.Name)
	if err := h.mixes.Save(r.Context(), mix); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mix.Summary())
}

// LoadMixHandler replaces the current tracks with a saved mix. With
// ?play=true the mix starts right away.
func (h *APIHandler) LoadMixHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	mix, err := h.mixes.Load(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n := h.mixer.Restore(mix.Tracks)
	logger.Info("Mix loaded", logger.String("name", name), logger.Int("tracks", n))

	resp := struct {
		Name   string            `json:"name"`
		Loaded int               `json:"loaded"`
		Failed map[string]string `json:"failed,omitempty"`
	}{Name: name, Loaded: n}

	if play, _ := strconv.ParseBool(r.URL.Query().Get("play")); play && n > 0 {
		failed := h.mixer.PlayAll(r.Context())
		if len(failed) > 0 {
			resp.Failed = make(map[string]string, len(failed))
			for path, err := range failed {
				resp.Failed[path] = err.Error()
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) DeleteMixHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.mixes.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
