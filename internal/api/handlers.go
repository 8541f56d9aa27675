/**
 * @description
 * This file defines the HTTP handlers for the provision-service's API
 * endpoints. Handlers are responsible for parsing requests, calling the
 * appropriate service method, and mapping domain errors onto status codes.
 *
 * @dependencies
 * - Standard Go libraries for HTTP and JSON.
 * - The service's internal app package for business logic.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flashpg/provision-service/internal/app"
	"github.com/flashpg/provision-service/pkg/providerclient"
)

// DatabaseHandler holds the dependencies for database-related handlers.
type DatabaseHandler struct {
	service *app.ProvisionService
	logger  *slog.Logger
}

// NewDatabaseHandler creates a new DatabaseHandler.
func NewDatabaseHandler(service *app.ProvisionService, logger *slog.Logger) *DatabaseHandler {
	return &DatabaseHandler{service: service, logger: logger}
}

// CreateDatabaseRequest defines the expected JSON body for creating a database.
type CreateDatabaseRequest struct {
	Region string `json:"region"`
	Name   string `json:"name"`
	TTL    string `json:"ttl"`
}

// CreateDatabaseResponse is returned on successful creation.
type CreateDatabaseResponse struct {
	ID               string    `json:"id"`
	ConnectionString string    `json:"connection_string,omitempty"`
	Region           string    `json:"region"`
	Name             string    `json:"name"`
	TTLMs            int64     `json:"ttl_ms"`
	ExpiresAt        time.Time `json:"expires_at"`
	ClaimURL         string    `json:"claim_url"`
}

// CreateDatabase handles the creation of a new ephemeral database.
func (h *DatabaseHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req CreateDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid Request", "The request body is not valid JSON.")
		return
	}
	if req.Region == "" {
		writeError(w, http.StatusBadRequest, "Missing Parameter", "The region field is required.")
		return
	}

	out, err := h.service.CreateDatabase(r.Context(), app.CreateDatabaseInput{
		Region: req.Region,
		Name:   req.Name,
		TTL:    req.TTL,
	})
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateDatabaseResponse{
		ID:               out.Handle.ID,
		ConnectionString: out.Handle.ConnectionString,
		Region:           out.Handle.Region,
		Name:             out.Handle.Name,
		TTLMs:            out.TTLMs,
		ExpiresAt:        out.ExpiresAt,
		ClaimURL:         out.ClaimURL,
	})
}

// writeCreateError maps creation failures onto the error taxonomy: input
// errors are 400, rate limits 429, upstream faults 502, the rest 500.
func (h *DatabaseHandler) writeCreateError(w http.ResponseWriter, err error) {
	var limited *app.RateLimitedError
	switch {
	case errors.As(err, &limited):
		if limited.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		}
		writeError(w, http.StatusTooManyRequests, "Rate Limit Exceeded", "Too many databases created recently. Please try again later.")
	case errors.Is(err, app.ErrInvalidTTL):
		writeError(w, http.StatusBadRequest, "Invalid TTL", "The ttl must be a duration like 30m or 24h, between 30 minutes and 24 hours.")
	case errors.Is(err, providerclient.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate Limit Exceeded", "The provisioning backend is saturated. Please try again later.")
	default:
		h.logger.Error("database creation failed", "error", err)
		writeError(w, http.StatusBadGateway, "Creation Failed", "The database could not be provisioned. Please try again.")
	}
}

// ListRegions handles listing the provider regions available for provisioning.
func (h *DatabaseHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.service.ListRegions(r.Context())
	if err != nil {
		h.logger.Error("failed to list regions", "error", err)
		writeError(w, http.StatusBadGateway, "Regions Unavailable", "The provider region list could not be fetched.")
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

// errorBody is the structured error shape every failure responds with.
type errorBody struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, errorBody{Title: title, Message: message})
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}
