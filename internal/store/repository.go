/**
 * @description
 * This file implements the data access layer for the provision-service.
 * The deletion_schedules table is the durable timer backing the deletion
 * workflow: one row per database in the temporary pool, claimed by the cron
 * poller with FOR UPDATE SKIP LOCKED so concurrent instances never double-fire.
 * The claim_events table is a best-effort analytics side channel.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashpg/provision-service/internal/domain"
)

// ErrScheduleNotFound is returned when no schedule row exists for a database.
var ErrScheduleNotFound = errors.New("deletion schedule not found")

// Repository handles database operations for the provision-service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateDeletionSchedule persists the deletion timer for a newly provisioned
// database. Enqueueing this row is part of creation's logical scope: a
// database must never exist without one. The TTL bounds are re-applied here so
// a caller that bypassed the API-level clamp still cannot enqueue a timer
// beyond the allowed lifetime.
func (r *Repository) CreateDeletionSchedule(ctx context.Context, databaseID, region string, ttlMs int64, deleteAt time.Time) error {
	ttlMs, deleteAt = normalizeSchedule(ttlMs, deleteAt, time.Now())
	query := `
        INSERT INTO deletion_schedules (database_id, region, ttl_ms, delete_at, status, attempts, next_attempt_at)
        VALUES ($1, $2, $3, $4, 'scheduled', 0, NOW())
    `
	_, err := r.db.Exec(ctx, query, databaseID, region, ttlMs, deleteAt)
	return err
}

// normalizeSchedule clamps the TTL into the allowed range and bounds the
// wake-up time by it. A zero or over-long delete_at collapses to now plus the
// clamped TTL, never beyond.
func normalizeSchedule(ttlMs int64, deleteAt, now time.Time) (int64, time.Time) {
	clamped := domain.ClampTTL(ttlMs)
	ceiling := now.Add(time.Duration(clamped) * time.Millisecond)
	if deleteAt.IsZero() || deleteAt.After(ceiling) {
		deleteAt = ceiling
	}
	return clamped, deleteAt
}

// deletingLeaseInterval is how long a claimed 'deleting' row stays reserved
// for the poller that claimed it. A poller that crashes mid-delete releases
// its rows implicitly: once the lease lapses, the next claim picks them up
// again. The interval comfortably exceeds the provider client's call timeout,
// so a healthy in-flight delete is never double-claimed.
const deletingLeaseInterval = "5 minutes"

// ClaimDueDeletions atomically claims up to limit schedules whose wake-up time
// has passed, moving them to 'deleting' and incrementing their attempt count.
// Rows stuck in 'deleting' past the lease are reclaimed too, so a crash
// between the claim and the terminal status write resumes on the next poll
// instead of waiting for the stale sweeper.
func (r *Repository) ClaimDueDeletions(ctx context.Context, limit int) ([]domain.DeletionSchedule, error) {
	query := `
        UPDATE deletion_schedules ds
        SET status = 'deleting',
            attempts = ds.attempts + 1,
            updated_at = NOW()
        FROM (
            SELECT database_id
            FROM deletion_schedules
            WHERE (status = 'scheduled'
                   AND delete_at <= NOW()
                   AND next_attempt_at <= NOW())
               OR (status = 'deleting'
                   AND updated_at < NOW() - INTERVAL '` + deletingLeaseInterval + `')
            ORDER BY delete_at
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        ) due
        WHERE ds.database_id = due.database_id
        RETURNING ds.database_id, ds.region, ds.ttl_ms, ds.delete_at, ds.status,
                  ds.attempts, ds.next_attempt_at, COALESCE(ds.last_error, ''), ds.created_at
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.DeletionSchedule
	for rows.Next() {
		var s domain.DeletionSchedule
		if err := rows.Scan(&s.DatabaseID, &s.Region, &s.TTLMs, &s.DeleteAt, &s.Status,
			&s.Attempts, &s.NextAttemptAt, &s.LastError, &s.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// MarkScheduleDone records a completed deletion (including idempotent
// "already gone" outcomes).
func (r *Repository) MarkScheduleDone(ctx context.Context, databaseID string) error {
	query := `
        UPDATE deletion_schedules
        SET status = 'done', updated_at = NOW()
        WHERE database_id = $1 AND status NOT IN ('done', 'canceled')
    `
	_, err := r.db.Exec(ctx, query, databaseID)
	return err
}

// MarkScheduleCanceled cancels a pending deletion after a successful claim.
// Terminal states are never moved backwards.
func (r *Repository) MarkScheduleCanceled(ctx context.Context, databaseID string) error {
	query := `
        UPDATE deletion_schedules
        SET status = 'canceled', updated_at = NOW()
        WHERE database_id = $1 AND status IN ('scheduled', 'deleting')
    `
	_, err := r.db.Exec(ctx, query, databaseID)
	return err
}

// RescheduleRetry puts a schedule back in line after a transient delete
// failure, with the next attempt pushed out by the caller's backoff.
func (r *Repository) RescheduleRetry(ctx context.Context, databaseID string, nextAttemptAt time.Time, lastError string) error {
	query := `
        UPDATE deletion_schedules
        SET status = 'scheduled', next_attempt_at = $2, last_error = $3, updated_at = NOW()
        WHERE database_id = $1 AND status = 'deleting'
    `
	_, err := r.db.Exec(ctx, query, databaseID, nextAttemptAt, lastError)
	return err
}

// MarkScheduleFailed records an exhausted deletion. A failed schedule is a
// real resource leak and is escalated by the caller, never silently dropped.
func (r *Repository) MarkScheduleFailed(ctx context.Context, databaseID, lastError string) error {
	query := `
        UPDATE deletion_schedules
        SET status = 'failed', last_error = $2, updated_at = NOW()
        WHERE database_id = $1
    `
	_, err := r.db.Exec(ctx, query, databaseID, lastError)
	return err
}

// GetSchedule fetches one schedule row.
func (r *Repository) GetSchedule(ctx context.Context, databaseID string) (*domain.DeletionSchedule, error) {
	query := `
        SELECT database_id, region, ttl_ms, delete_at, status, attempts,
               next_attempt_at, COALESCE(last_error, ''), created_at
        FROM deletion_schedules
        WHERE database_id = $1
    `
	var s domain.DeletionSchedule
	err := r.db.QueryRow(ctx, query, databaseID).Scan(&s.DatabaseID, &s.Region, &s.TTLMs,
		&s.DeleteAt, &s.Status, &s.Attempts, &s.NextAttemptAt, &s.LastError, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordClaimEvent writes a claim outcome to the analytics side channel.
// Callers treat failures here as best-effort: they are logged, never surfaced.
func (r *Repository) RecordClaimEvent(ctx context.Context, databaseID, outcome, detail string) error {
	query := `
        INSERT INTO claim_events (database_id, outcome, detail)
        VALUES ($1, $2, $3)
    `
	_, err := r.db.Exec(ctx, query, databaseID, outcome, detail)
	return err
}
