/**
 * @description
 * Scheduled job implementations for the provision-service.
 *
 * ProcessDueDeletions is the wake-up half of the durable deletion workflow:
 * schedule rows are the timers, this job claims the ones whose delete_at has
 * passed and issues the idempotent provider delete, with bounded backoff
 * retries and an escalating failure state when retries exhaust.
 *
 * SweepStaleDatabases is the safety net: it lists everything live at the
 * provider and deletes anything older than the maximum TTL, so even a lost or
 * corrupted schedule row bounds a leaked database's lifetime to one sweep
 * interval beyond the maximum TTL.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/internal/domain"
)

const deletionBatchSize = 50

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	ClaimDueDeletions(ctx context.Context, limit int) ([]domain.DeletionSchedule, error)
	MarkScheduleDone(ctx context.Context, databaseID string) error
	RescheduleRetry(ctx context.Context, databaseID string, nextAttemptAt time.Time, lastError string) error
	MarkScheduleFailed(ctx context.Context, databaseID, lastError string) error
}

// SweepProvider is the slice of the provisioning API used by the jobs.
type SweepProvider interface {
	DeleteDatabase(ctx context.Context, id string) error
	ListDatabases(ctx context.Context, cursor string, limit int) (*domain.DatabasePage, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo     JobsRepository
	provider SweepProvider
	logger   *slog.Logger
	config   config.Config
	now      func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, provider SweepProvider, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:     repo,
		provider: provider,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// ProcessDueDeletions claims and executes deletion schedules whose TTL has
// elapsed. Each schedule is handled independently so one failure never blocks
// the rest of the batch.
func (j *Jobs) ProcessDueDeletions() {
	ctx := context.Background()

	for {
		batch, err := j.repo.ClaimDueDeletions(ctx, deletionBatchSize)
		if err != nil {
			j.logger.Error("failed to claim due deletions", "error", err)
			return
		}
		if len(batch) == 0 {
			return
		}

		for _, schedule := range batch {
			j.deleteScheduled(ctx, schedule)
		}

		if len(batch) < deletionBatchSize {
			return
		}
	}
}

// deleteScheduled issues one idempotent delete. An already-gone or
// already-transferred database is success by contract of the provider client.
func (j *Jobs) deleteScheduled(ctx context.Context, schedule domain.DeletionSchedule) {
	err := j.provider.DeleteDatabase(ctx, schedule.DatabaseID)
	if err == nil {
		if markErr := j.repo.MarkScheduleDone(ctx, schedule.DatabaseID); markErr != nil {
			j.logger.Error("deleted database but failed to mark schedule done", "database_id", schedule.DatabaseID, "error", markErr)
		} else {
			j.logger.Info("scheduled deletion completed", "database_id", schedule.DatabaseID, "attempts", schedule.Attempts)
		}
		return
	}

	if schedule.Attempts >= j.maxDeletionAttempts() {
		// Exhausted retries leave an orphaned billable database. This must be
		// visible to operators, never silently dropped.
		j.logger.Error("deletion retries exhausted, database is leaked",
			"database_id", schedule.DatabaseID, "attempts", schedule.Attempts, "error", err)
		if markErr := j.repo.MarkScheduleFailed(ctx, schedule.DatabaseID, err.Error()); markErr != nil {
			j.logger.Error("failed to mark schedule failed", "database_id", schedule.DatabaseID, "error", markErr)
		}
		return
	}

	nextAttempt := j.now().Add(backoffDelay(schedule.Attempts))
	j.logger.Warn("delete attempt failed, rescheduling",
		"database_id", schedule.DatabaseID, "attempts", schedule.Attempts, "next_attempt_at", nextAttempt, "error", err)
	if markErr := j.repo.RescheduleRetry(ctx, schedule.DatabaseID, nextAttempt, err.Error()); markErr != nil {
		j.logger.Error("failed to reschedule deletion retry", "database_id", schedule.DatabaseID, "error", markErr)
	}
}

func (j *Jobs) maxDeletionAttempts() int {
	if j.config.DeletionMaxAttempts > 0 {
		return j.config.DeletionMaxAttempts
	}
	return 5
}

// backoffDelay doubles per attempt from one minute, capped at 30 minutes.
func backoffDelay(attempts int) time.Duration {
	delay := time.Minute
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return delay
}

// SweepStaleDatabases deletes every live database older than the global
// maximum TTL, independent of its individually requested lifetime.
func (j *Jobs) SweepStaleDatabases() {
	j.logger.Info("starting stale database sweep")
	ctx := context.Background()

	maxAge := time.Duration(j.config.MaxTTLMs) * time.Millisecond
	if maxAge <= 0 {
		maxAge = time.Duration(domain.MaxTTLMs) * time.Millisecond
	}
	pageSize := j.config.SweepPageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var swept, failed int
	cursor := ""
	for {
		page, err := j.provider.ListDatabases(ctx, cursor, pageSize)
		if err != nil {
			j.logger.Error("failed to list databases for sweep", "error", err)
			return
		}

		for _, db := range page.Databases {
			if j.now().Sub(db.CreatedAt) <= maxAge {
				continue
			}
			if err := j.provider.DeleteDatabase(ctx, db.ID); err != nil {
				// One database's failure must not block the rest of the sweep.
				failed++
				j.logger.Error("failed to sweep stale database", "database_id", db.ID, "created_at", db.CreatedAt, "error", err)
				continue
			}
			swept++
			if err := j.repo.MarkScheduleDone(ctx, db.ID); err != nil {
				j.logger.Warn("swept database but failed to mark schedule done", "database_id", db.ID, "error", err)
			}
			j.logger.Info("swept stale database", "database_id", db.ID, "created_at", db.CreatedAt)
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	j.logger.Info("stale database sweep finished", "swept", swept, "failed", failed)
}
