/**
 * @description
 * Durable deletion schedule model. One row exists per database in the
 * temporary pool; the row is the durable timer that survives restarts.
 */
package domain

import "time"

// ScheduleStatus is the state of a deletion schedule.
type ScheduleStatus string

const (
	// ScheduleScheduled means the deletion is pending its delete_at wake-up.
	ScheduleScheduled ScheduleStatus = "scheduled"
	// ScheduleDeleting means a poller has claimed the row and is issuing the delete.
	ScheduleDeleting ScheduleStatus = "deleting"
	// ScheduleDone means the database was deleted, or was already gone when the
	// delete fired (idempotent success).
	ScheduleDone ScheduleStatus = "done"
	// ScheduleCanceled means a successful claim transferred the database out of
	// the temporary pool before the timer fired.
	ScheduleCanceled ScheduleStatus = "canceled"
	// ScheduleFailed means delete retries were exhausted. This leaves an
	// orphaned billable database and must be visible operationally.
	ScheduleFailed ScheduleStatus = "failed"
)

// DeletionSchedule is a persisted, cancellable deletion timer for one database.
type DeletionSchedule struct {
	DatabaseID    string
	Region        string
	TTLMs         int64
	DeleteAt      time.Time
	Status        ScheduleStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}
