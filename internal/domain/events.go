/**
 * @description
 * Analytics event definitions published to the message broker. Events are
 * best-effort: a publish failure never fails the operation that produced it.
 */
package domain

import "time"

// Analytics event names. The routing key is the event name with ':' replaced
// by '.' so topic bindings like "create_db.*" work.
const (
	EventDatabaseCreated        = "create_db:database_created"
	EventDatabaseCreationFailed = "create_db:database_creation_failed"
	EventClaimSuccessful        = "create_db:claim_successful"
	EventClaimFailed            = "create_db:claim_failed"
)

// AnalyticsEvent is the envelope published for every event.
type AnalyticsEvent struct {
	Event      string         `json:"event"`
	DatabaseID string         `json:"database_id"`
	Properties map[string]any `json:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
