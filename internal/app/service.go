/**
 * @description
 * Core business logic for provisioning ephemeral databases. The service
 * orchestrates the global rate check, TTL clamping, the provider create call,
 * and the durable deletion schedule that every new database must have.
 *
 * @notes
 * - Handlers stay thin; everything that matters lives here behind small
 *   interfaces so it can be exercised with stubs.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/internal/domain"
)

// ErrInvalidTTL is returned when a caller supplies a TTL that does not parse
// or falls outside the allowed range.
var ErrInvalidTTL = errors.New("ttl must be between 30m and 24h")

// ProviderClient is the slice of the provisioning API used by the service.
type ProviderClient interface {
	CreateDatabase(ctx context.Context, req domain.CreateDatabaseRequest) (*domain.DatabaseHandle, error)
	DeleteDatabase(ctx context.Context, id string) error
	ListRegions(ctx context.Context) ([]domain.Region, error)
}

// ScheduleWriter persists deletion timers.
type ScheduleWriter interface {
	CreateDeletionSchedule(ctx context.Context, databaseID, region string, ttlMs int64, deleteAt time.Time) error
}

// Publisher is the interface implemented by the analytics event producer.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// ProvisionService provides methods for creating ephemeral databases.
type ProvisionService struct {
	provider  ProviderClient
	schedules ScheduleWriter
	limiter   RateLimiter
	producer  Publisher
	logger    *slog.Logger
	config    config.Config
	now       func() time.Time
}

// NewProvisionService creates a new instance of ProvisionService.
func NewProvisionService(provider ProviderClient, schedules ScheduleWriter, limiter RateLimiter, producer Publisher, logger *slog.Logger, cfg config.Config) *ProvisionService {
	return &ProvisionService{
		provider:  provider,
		schedules: schedules,
		limiter:   limiter,
		producer:  producer,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// CreateDatabaseInput defines the required input for creating a database.
type CreateDatabaseInput struct {
	Region string
	Name   string
	TTL    string
}

// CreateDatabaseOutput is the result of a successful creation.
type CreateDatabaseOutput struct {
	Handle    domain.DatabaseHandle
	TTLMs     int64
	ExpiresAt time.Time
	ClaimURL  string
}

// CreateDatabase provisions a database and durably schedules its deletion.
func (s *ProvisionService) CreateDatabase(ctx context.Context, input CreateDatabaseInput) (*CreateDatabaseOutput, error) {
	// 1. Global rate check guarding the provisioning backend. Store errors
	// fail open: losing Redis must not take creation down with it.
	allowed, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "create", "global",
		s.config.CreateRateLimit, time.Duration(s.config.CreateRateWindowSeconds)*time.Second)
	if err != nil {
		s.logger.Warn("rate limit store unavailable, failing open", "error", err)
		allowed = true
	}
	if !allowed {
		return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
	}

	// 2. Normalize the requested TTL against the configured bounds. An explicit
	// but unparseable TTL is a caller mistake; an absent one defaults to the
	// maximum via the clamp.
	var requestedMs int64
	if strings.TrimSpace(input.TTL) != "" {
		ms, ok := domain.ParseTTLBounded(input.TTL, s.config.MinTTLMs, s.config.MaxTTLMs)
		if !ok {
			return nil, ErrInvalidTTL
		}
		requestedMs = ms
	}
	ttlMs := domain.ClampTTLBounded(requestedMs, s.config.MinTTLMs, s.config.MaxTTLMs)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "ephemeral-" + uuid.NewString()[:8]
	}

	// 3. Provision on the remote API. No retry on failure: amplifying load
	// during an upstream overload is worse than surfacing the error.
	handle, err := s.provider.CreateDatabase(ctx, domain.CreateDatabaseRequest{
		Region: input.Region,
		Name:   name,
		TTLMs:  ttlMs,
	})
	if err != nil {
		s.publishEvent(domain.EventDatabaseCreationFailed, "", map[string]any{
			"region": input.Region,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("failed to provision database: %w", err)
	}

	// 4. Enqueue the durable deletion timer. A database must never exist
	// without one, so a schedule failure rolls the creation back; the stale
	// sweeper is the backstop if even the rollback fails.
	deleteAt := s.now().Add(time.Duration(ttlMs) * time.Millisecond)
	if err := s.schedules.CreateDeletionSchedule(ctx, handle.ID, handle.Region, ttlMs, deleteAt); err != nil {
		s.logger.Error("failed to schedule deletion, rolling back creation", "database_id", handle.ID, "error", err)
		if delErr := s.provider.DeleteDatabase(ctx, handle.ID); delErr != nil {
			s.logger.Error("rollback delete failed, stale sweeper will reclaim", "database_id", handle.ID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to schedule deletion: %w", err)
	}

	s.publishEvent(domain.EventDatabaseCreated, handle.ID, map[string]any{
		"region": handle.Region,
		"ttl_ms": ttlMs,
	})
	s.logger.Info("database provisioned", "database_id", handle.ID, "region", handle.Region, "ttl_ms", ttlMs)

	return &CreateDatabaseOutput{
		Handle:    *handle,
		TTLMs:     ttlMs,
		ExpiresAt: deleteAt,
		ClaimURL:  fmt.Sprintf("%s/claim/start?databaseId=%s", strings.TrimSuffix(s.config.PublicBaseURL, "/"), handle.ID),
	}, nil
}

// ListRegions proxies the provider's region listing.
func (s *ProvisionService) ListRegions(ctx context.Context) ([]domain.Region, error) {
	return s.provider.ListRegions(ctx)
}

// publishEvent emits an analytics event, best-effort with a bounded wait.
func (s *ProvisionService) publishEvent(event, databaseID string, props map[string]any) {
	publishAnalyticsEvent(s.producer, s.logger, s.config.AnalyticsExchange, event, databaseID, props)
}

// publishAnalyticsEvent is shared by the provisioning and claim services.
// Publish failures are logged and swallowed: analytics never fails the caller.
func publishAnalyticsEvent(producer Publisher, logger *slog.Logger, exchange, event, databaseID string, props map[string]any) {
	if producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := domain.AnalyticsEvent{
		Event:      event,
		DatabaseID: databaseID,
		Properties: props,
		OccurredAt: time.Now().UTC(),
	}
	if err := producer.Publish(ctx, exchange, routingKeyFor(event), payload); err != nil {
		logger.Warn("failed to publish analytics event", "event", event, "error", err)
	}
}

func routingKeyFor(event string) string {
	return strings.ReplaceAll(event, ":", ".")
}
