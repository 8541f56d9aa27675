/**
 * @description
 * HTTP handlers for the claim flow. StartClaim turns a claim link into the
 * identity provider's authorize redirect, minting the signed state token on
 * the way out. Callback feeds the OAuth redirect into the claim state machine
 * and sends the browser wherever it decided.
 */
package api

import (
	"log/slog"
	"net/http"

	"github.com/flashpg/provision-service/internal/app"
)

// ClaimHandler holds the dependencies for claim-related handlers.
type ClaimHandler struct {
	claims *app.ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(claims *app.ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, logger: logger}
}

// StartClaim begins the OAuth handshake for a database.
func (h *ClaimHandler) StartClaim(w http.ResponseWriter, r *http.Request) {
	databaseID := r.URL.Query().Get("databaseId")
	if databaseID == "" {
		writeError(w, http.StatusBadRequest, "Missing Parameter", "The databaseId query parameter is required.")
		return
	}

	state, err := h.claims.MintState(databaseID)
	if err != nil {
		h.logger.Error("failed to mint claim state", "database_id", databaseID, "error", err)
		writeError(w, http.StatusInternalServerError, "Claim Unavailable", "The claim link could not be prepared. Please try again.")
		return
	}

	authorizeURL, err := h.claims.AuthorizeURL(state)
	if err != nil {
		h.logger.Error("failed to build authorize URL", "error", err)
		writeError(w, http.StatusInternalServerError, "Claim Unavailable", "The claim link could not be prepared. Please try again.")
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// Callback receives the identity provider's redirect and runs the claim.
func (h *ClaimHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome := h.claims.HandleCallback(r.Context(), q.Get("code"), q.Get("state"), q.Get("databaseId"))
	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}
