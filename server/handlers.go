package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"Soundscape/core/auth"
	"Soundscape/core/engine"
	"Soundscape/logger"
	"Soundscape/model"
	"Soundscape/repository"
)

// errInvalidInput marks request bodies and values the API rejects.
var errInvalidInput = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}

// APIHandler serves the mixer API.
type APIHandler struct {
	mixer     *engine.Mixer
	mixes     *repository.MixRepository
	sounds    repository.SoundRepository
	issuer    *auth.Issuer
	adminHash string
}

// NewAPIHandler creates the handler set. A nil issuer disables
// authentication.
func NewAPIHandler(
	mixer *engine.Mixer,
	mixes *repository.MixRepository,
	sounds repository.SoundRepository,
	issuer *auth.Issuer,
	adminHash string,
) *APIHandler {
	return &APIHandler{
		mixer:     mixer,
		mixes:     mixes,
		sounds:    sounds,
		issuer:    issuer,
		adminHash: adminHash,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Write response failed", logger.ErrorField(err))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var persistErr *repository.PersistenceError
	switch {
	case errors.Is(err, errInvalidInput),
		errors.Is(err, repository.ErrInvalidMixName),
		errors.Is(err, repository.ErrEmptyMix):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrTrackNotFound),
		errors.Is(err, repository.ErrMixNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTrackExists):
		return http.StatusConflict
	case errors.As(err, &persistErr) && isMalformed(persistErr.Err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrReadOnlyCatalog):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.Is(err, model.ErrNotJSONObject) ||
		errors.Is(err, model.ErrMixName) ||
		errors.Is(err, model.ErrMixTracks) ||
		errors.As(err, &syntaxErr)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
	} else {
		logger.Debug("Request rejected",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.ErrorField(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

const maxBody = 1 << 20

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return invalid("request body: %v", err)
	}
	return nil
}
