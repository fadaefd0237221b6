package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/warbands/internal/scenario"
	"github.com/freeeve/warbands/internal/service"
	"github.com/freeeve/warbands/pkg/conquest"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"code": "AB12CD34"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type=application/json, got %s", ct)
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["code"] != "AB12CD34" {
		t.Errorf("unexpected body: %v", result)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "missing field")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["error"] != "missing field" {
		t.Errorf("expected error=missing field, got %s", result["error"])
	}
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tactic":"siege","siege_cost":60}`))
	var data combatChoiceData
	if err := decodeJSON(req, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Tactic != "siege" || data.SiegeCost != 60 {
		t.Errorf("decoded %+v", data)
	}
}

func TestDecodeJSONInvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	var data struct{}
	if err := decodeJSON(req, &data); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err     error
		message string
		status  int
	}{
		{fmt.Errorf("%w: %w", service.ErrEndTurnFailed, service.ErrNotYourTurn), "failed to end turn", http.StatusBadGateway},
		{service.ErrSessionNotFound, "session not found", http.StatusNotFound},
		{service.ErrNotSeated, "not seated in this session", http.StatusForbidden},
		{service.ErrNotYourTurn, "not your turn", http.StatusBadRequest},
		{service.ErrNotInBattle, "not part of this battle", http.StatusBadRequest},
		{service.ErrNoPendingBattle, "no battle is waiting for a choice", http.StatusBadRequest},
		{service.ErrBattlePending, "a battle must be resolved first", http.StatusBadRequest},
		{service.ErrGameOver, "game is over", http.StatusConflict},
		{fmt.Errorf("%w: \"dance\"", ErrUnknownMessage), `unknown message type: "dance"`, http.StatusBadRequest},
		{fmt.Errorf("%w: recruiting 5 costs 10", conquest.ErrInsufficientGold), conquest.ErrInsufficientGold.Error() + ": recruiting 5 costs 10", http.StatusBadRequest},
		{scenario.ErrInvalidScenario, scenario.ErrInvalidScenario.Error(), http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), "internal error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := userMessage(tt.err); got != tt.message {
			t.Errorf("userMessage(%v) = %q, want %q", tt.err, got, tt.message)
		}
		if got := httpStatus(tt.err); got != tt.status {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}
