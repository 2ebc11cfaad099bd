package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/teamsync/internal/auth"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/storage"
	"github.com/bcnelson/teamsync/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIKeyHandler handles API key endpoints.
type APIKeyHandler struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store storage.Storage, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{store: store, logger: logger}
}

// Create creates a new API key. The key's name is the principal it
// authenticates as, so it also selects the stored platform token and
// decides admin rights.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validation.ValidateAPIKeyName(req.Name); err != nil {
		respondValidationError(w, "name", req.Name, err.Error())
		return
	}
	if strings.EqualFold(req.Name, auth.BootstrapPrincipal) {
		respondValidationError(w, "name", req.Name, "name is reserved")
		return
	}

	key, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to generate API key")
		return
	}

	apiKey := &domain.APIKey{
		ID:        uuid.New().String(),
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedBy: principal(r),
		CreatedAt: time.Now(),
	}

	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		handleError(w, err)
		return
	}
	h.logger.Info("api key created",
		zap.String("name", apiKey.Name),
		zap.String("prefix", apiKey.KeyPrefix),
		zap.String("by", principal(r)))

	resp := &domain.CreateAPIKeyResponse{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       key, // Only returned on creation
		KeyPrefix: apiKey.KeyPrefix,
		CreatedAt: apiKey.CreatedAt,
	}

	respondJSON(w, http.StatusCreated, resp)
}

// List lists all API keys (without the actual key values).
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, keys)
}

// Delete deletes an API key.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "id is required")
		return
	}

	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}
	h.logger.Info("api key deleted", zap.String("id", id), zap.String("by", principal(r)))

	w.WriteHeader(http.StatusNoContent)
}
