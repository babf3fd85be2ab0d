package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/engine"
	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// adminPinHeader carries the plain admin PIN on mutating requests. The
// gateway hashes it and checks it against the match document; it is never
// stored server-side beyond the request.
const adminPinHeader = "X-Admin-Pin"

// MatchHandler serves the match HTTP API.
type MatchHandler struct {
	service *Service
}

// NewMatchHandler creates the HTTP handler for match operations.
func NewMatchHandler(service *Service) *MatchHandler {
	return &MatchHandler{service: service}
}

// RegisterRoutes wires the match API onto a mux.
func (h *MatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/matches", h.handleCreateMatch)
	mux.HandleFunc("/api/matches/", h.handleMatchSubtree)
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/ws/stats", h.handleConnectionStats)
}

// handleCreateMatch handles POST /api/matches.
func (h *MatchHandler) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	matchID, err := h.service.CreateMatch(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to create match")
		http.Error(w, "failed to create match", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"match_id": matchID})
}

// handleMatchSubtree dispatches /api/matches/{id}/... by hand, the
// suffix deciding the operation.
func (h *MatchHandler) handleMatchSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/matches/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "match id required", http.StatusBadRequest)
		return
	}

	matchID := strings.ToUpper(parts[0])
	if !ValidMatchID(matchID) {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	rest := parts[1:]
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		h.handleCreateWithID(w, r, matchID)
	case len(rest) == 1 && rest[0] == "state" && r.Method == http.MethodGet:
		h.handleState(w, r, matchID)
	case len(rest) == 1 && rest[0] == "setup" && r.Method == http.MethodPost:
		h.handleSetup(w, r, matchID)
	case len(rest) == 1 && rest[0] == "start" && r.Method == http.MethodPost:
		h.handleClockOp(w, r, matchID, func(eng *engine.Engine) error {
			return eng.Start(r.Context())
		})
	case len(rest) == 1 && rest[0] == "pause" && r.Method == http.MethodPost:
		h.handleClockOp(w, r, matchID, func(eng *engine.Engine) error {
			return eng.Pause(r.Context())
		})
	case len(rest) == 1 && rest[0] == "reset-quarter" && r.Method == http.MethodPost:
		h.handleClockOp(w, r, matchID, func(eng *engine.Engine) error {
			return eng.ResetQuarter(r.Context())
		})
	case len(rest) == 1 && rest[0] == "quarter" && r.Method == http.MethodPut:
		h.handleSetQuarter(w, r, matchID)
	case len(rest) == 1 && rest[0] == "duration" && r.Method == http.MethodPut:
		h.handleSetDuration(w, r, matchID)
	case len(rest) == 1 && rest[0] == "goals" && r.Method == http.MethodPost:
		h.handleAddGoal(w, r, matchID)
	case len(rest) == 2 && rest[0] == "goals" && r.Method == http.MethodDelete:
		h.handleRemoveGoal(w, r, matchID, rest[1])
	case len(rest) == 1 && rest[0] == "events" && r.Method == http.MethodPost:
		h.handleRaiseEvent(w, r, matchID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleCreateWithID handles POST /api/matches/{id}: bootstrap of an id
// shared out of band. Posting an existing id attaches to it instead.
func (h *MatchHandler) handleCreateWithID(w http.ResponseWriter, r *http.Request, matchID string) {
	created, err := h.service.CreateMatchWithID(r.Context(), matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"match_id": matchID})
}

// handleState handles GET /api/matches/{id}/state.
func (h *MatchHandler) handleState(w http.ResponseWriter, r *http.Request, matchID string) {
	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	view, ok := rt.engine.View()
	if !ok {
		http.Error(w, "match state not available", http.StatusServiceUnavailable)
		return
	}
	// Capability belongs to the caller, not the server-side engine.
	view.Capability = false
	if pin := r.Header.Get(adminPinHeader); pin != "" {
		view.Capability = rt.engine.Authorize(pin)
	}
	writeJSON(w, http.StatusOK, view)
}

type setupRequest struct {
	Teams       models.Teams `json:"teams"`
	SponsorLogo string       `json:"sponsor_logo"`
	AdminPin    string       `json:"admin_pin"`
}

// handleSetup handles POST /api/matches/{id}/setup. The first setup on an
// unprovisioned match requires no PIN header; it establishes the PIN.
func (h *MatchHandler) handleSetup(w http.ResponseWriter, r *http.Request, matchID string) {
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AdminPin == "" {
		http.Error(w, "admin_pin is required", http.StatusBadRequest)
		return
	}

	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	err = rt.asAdmin(r.Header.Get(adminPinHeader), func(eng *engine.Engine) error {
		if err := eng.Setup(r.Context(), engine.SetupRequest{
			Teams:        req.Teams,
			SponsorLogo:  req.SponsorLogo,
			AdminPinHash: engine.HashPIN(req.AdminPin),
		}); err != nil {
			return err
		}
		// The PIN just provisioned is the one the ticking engine needs
		// for automatic quarter-end from here on.
		eng.SetSecret(req.AdminPin)
		return nil
	})
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

// handleClockOp runs a body-less admin mutation.
func (h *MatchHandler) handleClockOp(w http.ResponseWriter, r *http.Request, matchID string, op func(*engine.Engine) error) {
	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	if err := rt.asAdmin(r.Header.Get(adminPinHeader), op); err != nil {
		writeError(w, matchID, err)
		return
	}

	view, _ := rt.engine.View()
	view.Capability = true // the op just proved it
	writeJSON(w, http.StatusOK, view)
}

// handleSetQuarter handles PUT /api/matches/{id}/quarter.
func (h *MatchHandler) handleSetQuarter(w http.ResponseWriter, r *http.Request, matchID string) {
	var req struct {
		Quarter int `json:"quarter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.handleClockOp(w, r, matchID, func(eng *engine.Engine) error {
		return eng.SetQuarter(r.Context(), req.Quarter)
	})
}

// handleSetDuration handles PUT /api/matches/{id}/duration.
func (h *MatchHandler) handleSetDuration(w http.ResponseWriter, r *http.Request, matchID string) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.handleClockOp(w, r, matchID, func(eng *engine.Engine) error {
		return eng.SetQuarterDuration(r.Context(), req.Minutes)
	})
}

type goalRequest struct {
	Team       models.TeamSide `json:"team"`
	PlayerID   string          `json:"player_id"`
	PlayerName string          `json:"player_name"`
	Number     string          `json:"number"`
}

// handleAddGoal handles POST /api/matches/{id}/goals.
func (h *MatchHandler) handleAddGoal(w http.ResponseWriter, r *http.Request, matchID string) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	var goal models.GoalRecord
	err = rt.asAdmin(r.Header.Get(adminPinHeader), func(eng *engine.Engine) error {
		var opErr error
		goal, opErr = eng.AppendGoal(r.Context(), req.Team, engine.Scorer{
			PlayerID: req.PlayerID,
			Name:     req.PlayerName,
			Number:   req.Number,
		})
		return opErr
	})
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// handleRemoveGoal handles DELETE /api/matches/{id}/goals/{goalID}.
func (h *MatchHandler) handleRemoveGoal(w http.ResponseWriter, r *http.Request, matchID, goalID string) {
	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	err = rt.asAdmin(r.Header.Get(adminPinHeader), func(eng *engine.Engine) error {
		return eng.RemoveGoal(r.Context(), goalID)
	})
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventRequest struct {
	Type models.EventKind `json:"type"`
	Team models.TeamSide  `json:"team"`
}

// handleRaiseEvent handles POST /api/matches/{id}/events.
func (h *MatchHandler) handleRaiseEvent(w http.ResponseWriter, r *http.Request, matchID string) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rt, err := h.service.runtime(matchID)
	if err != nil {
		writeError(w, matchID, err)
		return
	}

	err = rt.asAdmin(r.Header.Get(adminPinHeader), func(eng *engine.Engine) error {
		return eng.Raise(r.Context(), req.Type, req.Team)
	})
	if err != nil {
		writeError(w, matchID, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleWebSocket handles GET /ws?match_id={id}.
func (h *MatchHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID := strings.ToUpper(r.URL.Query().Get("match_id"))
	if matchID == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	if !ValidMatchID(matchID) {
		http.Error(w, "invalid match_id format", http.StatusBadRequest)
		return
	}

	// Starting the runtime first means the subscriber's initial snapshot
	// frame has an engine behind it.
	if _, err := h.service.runtime(matchID); err != nil {
		writeError(w, matchID, err)
		return
	}

	if err := h.service.connectionManager.UpgradeConnection(w, r, matchID); err != nil {
		log.Error().
			Err(err).
			Str("match_id", matchID).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// handleConnectionStats handles GET /ws/stats.
func (h *MatchHandler) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.connectionManager.GetConnectionStats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps engine and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, matchID string, err error) {
	switch {
	case errors.Is(err, matchstore.ErrNotFound):
		http.Error(w, "match not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrPermissionDenied):
		http.Error(w, "admin pin required or incorrect", http.StatusForbidden)
	case errors.Is(err, engine.ErrNoSnapshot):
		http.Error(w, "match state not available", http.StatusServiceUnavailable)
	case errors.Is(err, engine.ErrUnknownTeam),
		errors.Is(err, engine.ErrInvalidQuarter),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, engine.ErrPinRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Str("match_id", matchID).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
