/**
 * @description
 * This is the main entry point for the provision-service. Its responsibility
 * is to initialize all components and run both halves of the service: the
 * HTTP API (creation and claim endpoints) and the cron scheduler driving the
 * durable deletion timers and the stale sweep.
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Establishes and manages a connection pool to PostgreSQL.
 * - Connects to Redis for the shared rate-limit counters, falling back to the
 *   in-process limiter when no Redis is configured.
 * - Connects to RabbitMQ for analytics events, falling back to a logging
 *   no-op producer when the broker is unavailable.
 * - Starts the cron scheduler and HTTP server, and shuts both down gracefully.
 *
 * @dependencies
 * - The service's internal packages for config, app logic, storage, and API.
 * - pgxpool for database connections, godotenv for local config, go-redis,
 *   robfig/cron (via internal/app) and the rabbitmq producer.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/flashpg/provision-service/internal/api"
	"github.com/flashpg/provision-service/internal/app"
	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/internal/store"
	"github.com/flashpg/provision-service/pkg/oauthclient"
	"github.com/flashpg/provision-service/pkg/providerclient"
	"github.com/flashpg/provision-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection pool.
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	dbConfig.MaxConns = 20
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Shared rate-limit counters. Without Redis the in-process fixed window
	// serves single-instance deployments.
	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		limiter = app.NewRedisRateLimiter(redis.NewClient(opts), "flashpg:rate_limit")
		logger.Info("using redis-backed rate limiter")
	} else {
		limiter = app.NewMemoryRateLimiter()
		logger.Warn("REDIS_URL not set, using in-process rate limiter")
	}

	// Analytics producer, best-effort by design.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, analytics events will be dropped", "error", err)
			producer = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			producer = p
		}
	} else {
		logger.Warn("RABBITMQ_URL not set, analytics events will be dropped")
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	defer producer.Close()

	// Set up dependencies.
	repository := store.NewRepository(dbpool)
	provider := providerclient.NewClient(cfg.ProviderAPIBaseURL, cfg.ProviderAPIKey)
	oauth := oauthclient.NewClient(cfg.OAuthTokenURL, cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL)

	provisionService := app.NewProvisionService(provider, repository, limiter, producer, logger, *cfg)
	claimService := app.NewClaimService(oauth, provider, repository, producer, logger, *cfg)
	jobs := app.NewJobs(repository, provider, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)

	dbHandler := api.NewDatabaseHandler(provisionService, logger)
	claimHandler := api.NewClaimHandler(claimService, logger)
	router := api.NewRouter(cfg, dbHandler, claimHandler, limiter, logger)

	// Start the cron scheduler in the background.
	scheduler.Start()
	logger.Info("scheduler started")

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for in-flight jobs to finish.
	logger.Info("scheduler stopped gracefully")
}
