/**
 * @description
 * Per-route rate limiting middleware. Each endpoint is guarded by a
 * fixed-window counter keyed by method, client IP and path, backed by the
 * shared limiter store. A limiter store outage fails open: the guard exists
 * to blunt abuse, not to become its own denial of service.
 */
package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flashpg/provision-service/internal/app"
)

// RateLimit creates a middleware that admits or rejects requests using the
// shared fixed-window limiter.
func RateLimit(limiter app.RateLimiter, limit, windowSeconds int, logger *slog.Logger) func(http.Handler) http.Handler {
	window := time.Duration(windowSeconds) * time.Second

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := r.Method + ":" + clientIP(r) + ":" + r.URL.Path

			allowed, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "route", subject, limit, window)
			if err != nil {
				logger.Warn("rate limit store unavailable, failing open", "subject", subject, "error", err)
				allowed = true
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
