package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/service"
)

// SchedulerHandler handles the automatic sync schedule.
type SchedulerHandler struct {
	scheduler       *service.Scheduler
	defaultInterval time.Duration
}

// NewSchedulerHandler creates a new SchedulerHandler.
func NewSchedulerHandler(scheduler *service.Scheduler, defaultInterval time.Duration) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, defaultInterval: defaultInterval}
}

// StartSchedulerRequest is the optional body of a start request.
type StartSchedulerRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// Status reports whether the schedule runs and how its last pass went.
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Status())
}

// Start starts or restarts the schedule. An empty body uses the configured
// frequency.
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSchedulerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	interval := h.defaultInterval
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}

	if err := h.scheduler.Start(interval); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.scheduler.Status())
}

// Stop stops the schedule.
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	respondJSON(w, http.StatusOK, h.scheduler.Status())
}
