package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/i474232898/weather-ai/internal/trigger"
)

// Dispatcher starts a background run.
type Dispatcher interface {
	Dispatch(ctx context.Context) (uuid.UUID, error)
}

// Scheduler periodically dispatches pipeline runs.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	dispatcher Dispatcher
	interval   time.Duration
	logger     *slog.Logger
}

// New creates a new Scheduler. An interval <= 0 disables it.
func New(dispatcher Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:  s,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("Scheduler disabled; runs start only on request")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.tick)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) tick() {
	id, err := s.dispatcher.Dispatch(context.Background())
	switch {
	case errors.Is(err, trigger.ErrRunInFlight):
		s.logger.Warn("Scheduled run skipped, previous run still active")
	case err != nil:
		s.logger.Error("Scheduled run failed to start", "error", err)
	default:
		s.logger.Info("Scheduled run started", "run_id", id)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}
