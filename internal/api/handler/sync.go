package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/service"
	"go.uber.org/zap"
)

// SyncHandler handles ad-hoc sync endpoints.
type SyncHandler struct {
	syncService *service.SyncService
	logger      *zap.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService *service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncService: syncService, logger: logger}
}

// Sync runs a sync and streams its progress as newline-delimited JSON, one
// event per line, flushed as it happens. Malformed input is rejected with
// a plain error response before the stream starts.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	events, err := h.syncService.Sync(r.Context(), principal(r), req.Course, req.Once)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// The client went away; cancellation of r.Context() ends the sync.
			h.logger.Debug("sync stream write failed", zap.Error(err))
			continue
		}
		_ = rc.Flush()
	}
}

// ListRuns lists recorded course runs, newest first.
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "offset must be a non-negative integer")
		return
	}

	runs, err := h.syncService.ListSyncRuns(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}
