package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/bcnelson/teamsync/internal/config"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	authn, err := a.Authenticator(ctx)
	if err != nil {
		return fmt.Errorf("initializing authentication: %w", err)
	}

	if cfg.Sync.AutoStart && cfg.SchedulerConfigured() {
		if err := a.Scheduler.Start(cfg.Sync.Frequency); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else if !cfg.SchedulerConfigured() {
		logger.Info("automatic sync disabled, set MM_ENCRYPTED_ACCESS_TOKEN to enable it")
	}

	// WriteTimeout stays zero: sync progress streams for as long as the
	// sync runs.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.Router(authn),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting teamsync", zap.String("addr", "http://"+cfg.Server.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Scheduler.Stop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
