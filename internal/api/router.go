/**
 * @description
 * This file sets up the HTTP router for the provision-service using the `chi`
 * routing library. It defines all the API routes and applies the per-route
 * rate-limit middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - The service's internal packages for handlers and middleware.
 */
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flashpg/provision-service/internal/app"
	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/pkg/middleware"
)

// NewRouter creates and configures a new HTTP router.
func NewRouter(cfg *config.Config, dbHandler *DatabaseHandler, claimHandler *ClaimHandler, limiter app.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Everything else sits behind the per-route fixed-window limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, cfg.RouteRateLimit, cfg.RouteRateWindowSeconds, logger))

		r.Post("/databases", dbHandler.CreateDatabase)
		r.Get("/regions", dbHandler.ListRegions)

		r.Route("/claim", func(r chi.Router) {
			r.Get("/start", claimHandler.StartClaim)
			r.Get("/callback", claimHandler.Callback)
		})
	})

	return r
}
