/**
 * @description
 * Cron scheduler setup for the recurring jobs. The cron entries are the
 * external triggers that drive the persisted deletion state machine; the
 * durable state lives in Postgres, so a restart resumes where the timers
 * left off rather than restarting any sleep.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/flashpg/provision-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.DeletionJobSchedule, s.jobs.ProcessDueDeletions); err != nil {
		s.logger.Error("failed to schedule deletion job", "error", err)
	} else {
		s.logger.Info("scheduled deletion job", "schedule", s.config.DeletionJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.StaleSweepSchedule, s.jobs.SweepStaleDatabases); err != nil {
		s.logger.Error("failed to schedule stale sweep job", "error", err)
	} else {
		s.logger.Info("scheduled stale sweep job", "schedule", s.config.StaleSweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
