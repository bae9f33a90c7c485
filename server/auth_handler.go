package server

import (
	"context"
	"net/http"
	"strings"

	"Soundscape/core/auth"
	"Soundscape/logger"
)

// adminUser is the only account; its password hash comes from config.
const adminUser = "admin"

type ctxKey string

const usernameKey ctxKey = "username"

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler exchanges the admin password for a token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "authentication is disabled"})
		return
	}
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, invalid("username and password are required"))
		return
	}
	if req.Username != adminUser || h.adminHash == "" || !auth.CheckPasswordHash(req.Password, h.adminHash) {
		logger.Warn("[Login] rejected", logger.String("username", req.Username))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid username or password"})
		return
	}
	token, err := h.issuer.GenerateToken(req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Login] ok", logger.String("username", req.Username))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// AuthMiddleware requires a valid token when authentication is enabled.
// The token is read from the Authorization header, or from the token query
// parameter for WebSocket clients that cannot set headers.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.issuer == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid authorization header format"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization header is required"})
			return
		}
		claims, err := h.issuer.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// usernameFrom returns the authenticated user, or "" when auth is off.
func usernameFrom(ctx context.Context) string {
	name, _ := ctx.Value(usernameKey).(string)
	return name
}
