package handler

import (
	"net/http"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/service"
)

// MappingHandler handles course mapping endpoints.
type MappingHandler struct {
	syncService *service.SyncService
}

// NewMappingHandler creates a new MappingHandler.
func NewMappingHandler(syncService *service.SyncService) *MappingHandler {
	return &MappingHandler{syncService: syncService}
}

// Create registers a course for recurring sync.
func (h *MappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCourseMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	mapping, err := h.syncService.AddMapping(r.Context(), principal(r), req.Course)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, mapping)
}

// List lists the registered course mappings, oldest first.
func (h *MappingHandler) List(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.syncService.ListMappings(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, mappings)
}

// Delete unregisters the course named by the course query parameter.
// Course specs contain spaces and arrows, so they do not travel in the path.
func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	course := r.URL.Query().Get("course")
	if course == "" {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "course is required")
		return
	}

	if err := h.syncService.RemoveMapping(r.Context(), course); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
