package handler

import (
	"net/http"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/service"
)

// TokenHandler handles the caller's encrypted platform token.
type TokenHandler struct {
	syncService *service.SyncService
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(syncService *service.SyncService) *TokenHandler {
	return &TokenHandler{syncService: syncService}
}

// Put stores the caller's encrypted token, replacing any previous one.
func (h *TokenHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req domain.SetTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.EncryptedToken == "" {
		respondValidationError(w, "encrypted_token", "", "encrypted_token is required")
		return
	}

	if err := h.syncService.SetToken(r.Context(), principal(r), req.EncryptedToken); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get returns the caller's stored encrypted token.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	token, err := h.syncService.GetToken(r.Context(), principal(r))
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, token)
}

// List lists every stored encrypted token.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.syncService.ListTokens(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}
