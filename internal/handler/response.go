package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/internal/scenario"
	"github.com/freeeve/warbands/internal/service"
	"github.com/freeeve/warbands/pkg/conquest"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error to a status and user-facing message.
func writeServiceError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeError(w, status, userMessage(err))
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// userMessage is the text a client sees for err. Rule violations carry
// their own detail; the rest map to fixed phrases.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrEndTurnFailed):
		return "failed to end turn"
	case errors.Is(err, service.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, service.ErrNotSeated):
		return "not seated in this session"
	case errors.Is(err, service.ErrNotYourTurn):
		return "not your turn"
	case errors.Is(err, service.ErrNotInBattle):
		return "not part of this battle"
	case errors.Is(err, service.ErrNoPendingBattle):
		return "no battle is waiting for a choice"
	case errors.Is(err, service.ErrBattlePending):
		return "a battle must be resolved first"
	case errors.Is(err, service.ErrGameOver):
		return "game is over"
	case errors.Is(err, ErrUnknownMessage),
		errors.Is(err, errMalformedData),
		errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, conquest.ErrInvalidAction),
		errors.Is(err, conquest.ErrNotYourArmy),
		errors.Is(err, conquest.ErrInvalidTactic),
		errors.Is(err, conquest.ErrInsufficientGold):
		return err.Error()
	}
	return "internal error"
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotSeated):
		return http.StatusForbidden
	case errors.Is(err, service.ErrGameOver), errors.Is(err, service.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrEndTurnFailed):
		return http.StatusBadGateway
	case userMessage(err) != "internal error":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
