package api

import (
	"net/http"
	"time"

	"github.com/bcnelson/teamsync/internal/api/handler"
	"github.com/bcnelson/teamsync/internal/api/middleware"
	"github.com/bcnelson/teamsync/internal/auth"
	"github.com/bcnelson/teamsync/internal/service"
	"github.com/bcnelson/teamsync/internal/storage"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the components the HTTP API serves.
type Deps struct {
	Store         storage.Storage
	SyncService   *service.SyncService
	Scheduler     *service.Scheduler
	Authenticator *auth.Authenticator
	Metrics       *telemetry.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer      prometheus.Gatherer
	SyncFrequency time.Duration
	Logger        *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(d.Metrics))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(d.Authenticator))

		// Sync
		syncHandler := handler.NewSyncHandler(d.SyncService, logger)
		r.Post("/sync", syncHandler.Sync)
		r.Get("/sync/runs", syncHandler.ListRuns)

		// Own token
		tokenHandler := handler.NewTokenHandler(d.SyncService)
		r.Put("/token", tokenHandler.Put)
		r.Get("/token", tokenHandler.Get)

		// Course mappings
		mappingHandler := handler.NewMappingHandler(d.SyncService)
		r.Get("/mappings", mappingHandler.List)

		// Teams
		teamHandler := handler.NewTeamHandler(d.SyncService)
		r.Get("/teams", teamHandler.List)

		// Scheduler
		schedulerHandler := handler.NewSchedulerHandler(d.Scheduler, d.SyncFrequency)
		r.Get("/scheduler", schedulerHandler.Status)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/tokens", tokenHandler.List)

			r.Post("/mappings", mappingHandler.Create)
			r.Delete("/mappings", mappingHandler.Delete)

			r.Post("/teams", teamHandler.Create)
			r.Post("/teams/{team}/members", teamHandler.AddMember)
			r.Delete("/teams/{team}/members/{username}", teamHandler.RemoveMember)

			r.Post("/scheduler/start", schedulerHandler.Start)
			r.Post("/scheduler/stop", schedulerHandler.Stop)

			// API Keys
			keyHandler := handler.NewAPIKeyHandler(d.Store, logger)
			r.Post("/keys", keyHandler.Create)
			r.Get("/keys", keyHandler.List)
			r.Delete("/keys/{id}", keyHandler.Delete)
		})
	})

	return r
}
