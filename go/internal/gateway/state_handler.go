package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/rs/zerolog/log"
)

const maxIntentBodySize = 4 << 10

// GameController is the part of the clock coordinator the gateway drives
type GameController interface {
	Snapshot() gameclock.Snapshot
	Apply(in gameclock.Intent) (gameclock.Snapshot, error)
	Subscribe() (<-chan gameclock.Snapshot, func())
	Rules() gameclock.Rules
}

// StateHandler handles HTTP requests for game state and intents
type StateHandler struct {
	controller GameController
}

// NewStateHandler creates a new state handler
func NewStateHandler(controller GameController) *StateHandler {
	return &StateHandler{
		controller: controller,
	}
}

// HandleGetState handles GET /api/game/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// HandleGetRules handles GET /api/game/rules. Control panels build their
// penalty preset and time nudge buttons from it.
func (h *StateHandler) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.controller.Rules())
}

// HandlePostIntent handles POST /api/game/intents
func (h *StateHandler) HandlePostIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIntentBodySize))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errMalformedIntent, err))
		return
	}

	in, err := decodeIntent(body)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.controller.Apply(in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/game/state", h.HandleGetState)
	mux.HandleFunc("/api/game/rules", h.HandleGetRules)
	mux.HandleFunc("/api/game/intents", h.HandlePostIntent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	msg := errorMessage(err)
	writeJSON(w, msg.Code, msg)
}
