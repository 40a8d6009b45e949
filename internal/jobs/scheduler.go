package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/models"
)

// Scheduler queues recurring job runs from cron expressions. Both schedules
// are off by default; the usual deployment drives cmd/pricewatch and
// cmd/discover from an OS timer and never starts the scheduler.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	logger  *slog.Logger
}

func NewScheduler(manager *Manager, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		logger:  logger.With("component", "scheduler"),
	}
}

// Register wires the configured schedules. An empty expression disables that
// job; an invalid one is a configuration error.
func (s *Scheduler) Register(cfg config.JobsConfig) error {
	if cfg.RefreshSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.RefreshSchedule, func() {
			s.enqueue(models.JobTypeRefresh)
		}); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshSchedule, err)
		}
		s.logger.Info("refresh schedule registered", "cron", cfg.RefreshSchedule)
	}

	if cfg.DiscoverySchedule != "" {
		if _, err := s.cron.AddFunc(cfg.DiscoverySchedule, func() {
			s.enqueue(models.JobTypeDiscovery)
		}); err != nil {
			return fmt.Errorf("invalid discovery schedule %q: %w", cfg.DiscoverySchedule, err)
		}
		s.logger.Info("discovery schedule registered", "cron", cfg.DiscoverySchedule)
	}

	return nil
}

func (s *Scheduler) enqueue(jobType string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.manager.EnqueueRun(ctx, jobType); err != nil {
		s.logger.Error("failed to queue scheduled run", "type", jobType, "error", err)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and returns a context that is done once in-flight
// trigger callbacks finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
