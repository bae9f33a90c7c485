package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"Soundscape/config"
	"Soundscape/core/auth"
	"Soundscape/logger"
)

const tokenTTL = 24 * time.Hour

// corsMiddleware lets a browser UI on another origin drive the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags each request and logs it once served.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP request",
			logger.String("requestId", id),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("took", time.Since(start)))
	})
}

// NewRouter wires the API and the live feed.
func NewRouter(h *APIHandler, hub *LiveHub) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware, requestIDMiddleware)

	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.AuthMiddleware)

	api.HandleFunc("/sounds", h.GetSoundsHandler).Methods(http.MethodGet)

	api.HandleFunc("/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks", h.AddTrackHandler).Methods(http.MethodPost)
	api.HandleFunc("/tracks", h.RemoveTrackHandler).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{setting}", h.UpdateTrackHandler).Methods(http.MethodPut)

	api.HandleFunc("/mixer/play", h.PlayHandler).Methods(http.MethodPost)
	api.HandleFunc("/mixer/stop", h.StopHandler).Methods(http.MethodPost)
	api.HandleFunc("/mixer/clear", h.ClearHandler).Methods(http.MethodPost)

	api.HandleFunc("/mixes", h.ListMixesHandler).Methods(http.MethodGet)
	api.HandleFunc("/mixes", h.SaveMixHandler).Methods(http.MethodPost)
	api.HandleFunc("/mixes/{name}/load", h.LoadMixHandler).Methods(http.MethodPost)
	api.HandleFunc("/mixes/{name}", h.DeleteMixHandler).Methods(http.MethodDelete)

	router.Handle("/ws/live", h.AuthMiddleware(http.HandlerFunc(hub.ServeWS))).Methods(http.MethodGet)

	// preflight for any path; corsMiddleware answers it
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	return router
}

// Start runs the mixer daemon until ctx is cancelled, then shuts the HTTP
// server down gracefully and stops every track.
func Start(ctx context.Context, cfg *config.Config) error {
	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var issuer *auth.Issuer
	if cfg.AuthSecret != "" {
		issuer = auth.NewIssuer(cfg.AuthSecret, tokenTTL)
		if cfg.AdminPasswordHash == "" {
			logger.Warn("AUTH_SECRET is set but ADMIN_PASSWORD_HASH is empty; nobody can log in")
		}
	} else {
		logger.Warn("Authentication disabled; set AUTH_SECRET to enable it")
	}

	api := NewAPIHandler(rt.Mixer, rt.Mixes, rt.Sounds, issuer, cfg.AdminPasswordHash)
	hub := NewLiveHub(api)
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewRouter(api, hub),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
