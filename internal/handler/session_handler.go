package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/freeeve/warbands/internal/auth"
	"github.com/freeeve/warbands/internal/model"
	"github.com/freeeve/warbands/internal/scenario"
	"github.com/freeeve/warbands/internal/service"
	"github.com/freeeve/warbands/pkg/conquest"
)

// SessionHandler handles the session lobby and restore endpoints.
type SessionHandler struct {
	svc       *service.TurnService
	scenarios map[string]*scenario.Scenario
}

// NewSessionHandler creates a SessionHandler. scenarios may be empty, in
// which case sessions can only be created from inline definitions.
func NewSessionHandler(svc *service.TurnService, scenarios map[string]*scenario.Scenario) *SessionHandler {
	if scenarios == nil {
		scenarios = map[string]*scenario.Scenario{}
	}
	return &SessionHandler{svc: svc, scenarios: scenarios}
}

// createSessionRequest names a bundled scenario or carries one inline as
// YAML or JSON text. Without seats the caller takes the first human faction;
// the other unseated factions are played by the computer each full round.
type createSessionRequest struct {
	Scenario   string                      `json:"scenario"`
	Definition string                      `json:"definition,omitempty"`
	Seats      map[conquest.Faction]string `json:"seats,omitempty"`
	AIFaction  *conquest.Faction           `json:"ai_faction,omitempty"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sc, err := h.resolveScenario(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ai := sc.Computer
	if req.AIFaction != nil {
		ai = *req.AIFaction
	}
	seats := req.Seats
	if len(seats) == 0 {
		for _, f := range sc.Humans() {
			if f != ai {
				seats = map[conquest.Faction]string{f: userID}
				break
			}
		}
	}

	view, err := h.svc.CreateSession(r.Context(), service.NewSession{
		Scenario:  sc.Name,
		State:     sc.State(),
		Seats:     seats,
		AIFaction: ai,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionHandler) resolveScenario(req createSessionRequest) (*scenario.Scenario, error) {
	if req.Definition != "" {
		sc, err := scenario.Parse([]byte(req.Definition))
		if err != nil {
			return nil, err
		}
		if sc.Name == "" {
			sc.Name = req.Scenario
		}
		if sc.Name == "" {
			sc.Name = "custom"
		}
		return sc, nil
	}
	sc, ok := h.scenarios[req.Scenario]
	if !ok {
		return nil, errUnknownScenario(req.Scenario)
	}
	return sc, nil
}

func errUnknownScenario(name string) error {
	return fmt.Errorf("%w: unknown scenario %q", scenario.ErrInvalidScenario, name)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	codes := h.svc.Registry().Codes()
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": codes})
}

// ListScenarios handles GET /api/v1/scenarios
func (h *SessionHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	type summary struct {
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		Factions    []conquest.Faction `json:"factions"`
		Computer    conquest.Faction   `json:"computer,omitempty"`
	}
	out := make([]summary, 0, len(h.scenarios))
	for _, name := range scenario.Names(h.scenarios) {
		sc := h.scenarios[name]
		factions := make([]conquest.Faction, 0, len(sc.Factions))
		for f := range sc.Factions {
			factions = append(factions, f)
		}
		sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })
		out = append(out, summary{Name: sc.Name, Description: sc.Description, Factions: factions, Computer: sc.Computer})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /api/v1/sessions/{code}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetHistory handles GET /api/v1/sessions/{code}/history
func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	rec, battles, err := h.svc.History(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if battles == nil {
		battles = []model.BattleRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": rec, "battles": battles})
}

// RestoreSession handles POST /api/v1/sessions/{code}/restore
func (h *SessionHandler) RestoreSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	code := r.PathValue("code")
	var req service.RestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Restore(r.Context(), code, userID, req); err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := h.svc.View(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// TransferSeat handles POST /api/v1/sessions/{code}/seats/{faction}/transfer
func (h *SessionHandler) TransferSeat(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f := conquest.Faction(r.PathValue("faction"))
	if err := h.svc.TransferSeat(r.Context(), r.PathValue("code"), userID, f, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
