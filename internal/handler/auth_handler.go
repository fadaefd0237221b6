package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/internal/auth"
)

// AuthHandler issues player tokens. Accounts live in an upstream lobby;
// this server only mints tokens for local development.
type AuthHandler struct {
	jwtMgr  *auth.JWTManager
	devMode bool
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwtMgr *auth.JWTManager, devMode bool) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr, devMode: devMode}
}

// DevLogin handles POST /auth/dev?name=... and returns a token whose user
// id is derived from the name. Only available in dev mode.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	userID := fmt.Sprintf("dev-%s", strings.ToLower(name))
	token, err := h.jwtMgr.Issue(userID, name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to issue dev token")
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"user_id":      userID,
		"expires_in":   h.jwtMgr.ExpiresIn(),
	})
}
