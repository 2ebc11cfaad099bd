package handler

import (
	"net/http"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/service"
	"github.com/go-chi/chi/v5"
)

// TeamHandler handles team and membership endpoints. Every call goes to
// the platform with the caller's stored token.
type TeamHandler struct {
	syncService *service.SyncService
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(syncService *service.SyncService) *TeamHandler {
	return &TeamHandler{syncService: syncService}
}

// Create creates a team.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	team, err := h.syncService.CreateTeam(r.Context(), principal(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, team)
}

// List lists every team on the platform.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	teams, err := h.syncService.ListTeams(r.Context(), principal(r))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, teams)
}

// AddMember adds a user to the team.
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req domain.AddTeamMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	membership, err := h.syncService.AddUser(r.Context(), principal(r), chi.URLParam(r, "team"), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, membership)
}

// RemoveMember removes a user from the team.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")
	username := chi.URLParam(r, "username")

	if err := h.syncService.RemoveUser(r.Context(), principal(r), team, username); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
