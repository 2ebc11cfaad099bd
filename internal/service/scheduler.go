package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"go.uber.org/zap"
)

// Refresher runs one scheduled pass.
type Refresher interface {
	Refresh(ctx context.Context) error
	SchedulerConfigured() bool
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval_ns"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Runs      int           `json:"runs"`
}

// Scheduler calls Refresh every interval on a background goroutine. The
// first pass runs one interval after Start. Passes never overlap.
type Scheduler struct {
	refresher Refresher
	logger    *zap.Logger

	ctl      sync.Mutex // serializes Start and Stop
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	lastRun  *time.Time
	lastErr  error
	runs     int
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(refresher Refresher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{refresher: refresher, logger: logger}
}

// Start begins periodic syncing, replacing any running schedule. It fails
// with domain.ErrSchedulerUnconfigured when no scheduled token is set.
func (s *Scheduler) Start(interval time.Duration) error {
	if !s.refresher.SchedulerConfigured() {
		return fmt.Errorf("%w: I need MM_ENCRYPTED_ACCESS_TOKEN in the configuration to be set in order to use scheduled sync", domain.ErrSchedulerUnconfigured)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", domain.ErrInvalidInput)
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done, s.interval = cancel, done, interval
	s.mu.Unlock()
	go s.loop(ctx, interval, done)
	s.logger.Info("automatic sync started", zap.Duration("interval", interval))
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to return.
func (s *Scheduler) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("automatic sync stopped")
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{Running: s.cancel != nil, Interval: s.interval, LastRun: s.lastRun, Runs: s.runs}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.runOnce(ctx)
			now := time.Now()
			s.mu.Lock()
			s.lastRun, s.lastErr = &now, err
			s.runs++
			s.mu.Unlock()
		}
	}
}

// runOnce runs one pass, turning a panic into an error so the schedule
// survives it.
func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in scheduled sync", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("scheduled sync panicked: %v", r)
		}
	}()
	start := time.Now()
	s.logger.Info("scheduled sync starting")
	if err := s.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
		return err
	}
	s.logger.Info("scheduled sync finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}
