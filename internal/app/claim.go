/**
 * @description
 * The claim protocol: a linear, request-scoped state machine driven by the
 * OAuth redirect. It validates input, verifies the signed anti-CSRF state,
 * exchanges the authorization code for the user's access token, confirms the
 * database still exists, and transfers ownership. A successful claim cancels
 * the pending deletion schedule; the race with an in-flight delete is still
 * resolved by the provider's idempotent delete semantics, not by locking.
 *
 * Every failure produces a structured, user-facing redirect (title + message +
 * details) and a claim_failed analytics event carrying the upstream status.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/internal/domain"
	"github.com/flashpg/provision-service/pkg/oauthclient"
	"github.com/flashpg/provision-service/pkg/providerclient"
)

// stateTokenTTL bounds how long a claim link stays valid once issued.
const stateTokenTTL = 15 * time.Minute

// TokenExchanger exchanges an authorization code for an access token.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// TransferProvider is the slice of the provisioning API used by the claim flow.
type TransferProvider interface {
	GetDatabase(ctx context.Context, id string) (*domain.ProviderDatabase, error)
	TransferDatabase(ctx context.Context, id, recipientAccessToken string) (*domain.TransferResult, error)
}

// ClaimStore persists claim outcomes and cancels pending deletions.
type ClaimStore interface {
	MarkScheduleCanceled(ctx context.Context, databaseID string) error
	RecordClaimEvent(ctx context.Context, databaseID, outcome, detail string) error
}

// ClaimService runs the ownership-transfer handshake.
type ClaimService struct {
	oauth    TokenExchanger
	provider TransferProvider
	store    ClaimStore
	producer Publisher
	logger   *slog.Logger
	config   config.Config
}

// NewClaimService creates a new ClaimService.
func NewClaimService(oauth TokenExchanger, provider TransferProvider, store ClaimStore, producer Publisher, logger *slog.Logger, cfg config.Config) *ClaimService {
	return &ClaimService{
		oauth:    oauth,
		provider: provider,
		store:    store,
		producer: producer,
		logger:   logger,
		config:   cfg,
	}
}

// ClaimOutcome is where the user's browser is sent after the handshake.
type ClaimOutcome struct {
	RedirectURL string
	Claimed     bool
}

// MintState issues the signed anti-CSRF state token embedded in claim links.
func (s *ClaimService) MintState(databaseID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   databaseID,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(stateTokenTTL)),
		"nonce": uuid.NewString(),
	})
	return token.SignedString([]byte(s.config.StateSigningSecret))
}

// verifyState checks the state token's signature, expiry, and that it was
// minted for this database.
func (s *ClaimService) verifyState(state, databaseID string) error {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.StateSigningSecret), nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("unexpected state claims")
	}
	if sub, _ := claims["sub"].(string); sub != databaseID {
		return errors.New("state token was minted for a different database")
	}
	return nil
}

// AuthorizeURL builds the identity provider redirect that starts a claim.
func (s *ClaimService) AuthorizeURL(state string) (string, error) {
	u, err := url.Parse(s.config.OAuthAuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL: %w", err)
	}
	q := u.Query()
	q.Set("client_id", s.config.OAuthClientID)
	q.Set("redirect_uri", s.config.OAuthRedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", s.config.OAuthScope)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback runs the claim state machine for one inbound OAuth redirect.
// It always returns a redirect destination; it never panics a user onto a
// stack trace.
func (s *ClaimService) HandleCallback(ctx context.Context, code, state, databaseID string) ClaimOutcome {
	// 1. Input validation: terminal failures, no network calls made.
	if state == "" {
		return s.fail(ctx, databaseID, "Missing Parameter", "The state parameter is required to claim a database.", "missing state parameter", 0)
	}
	if databaseID == "" {
		return s.fail(ctx, databaseID, "Missing Parameter", "The databaseId parameter is required to claim a database.", "missing databaseId parameter", 0)
	}
	if err := s.verifyState(state, databaseID); err != nil {
		return s.fail(ctx, databaseID, "Invalid Claim Link", "This claim link is invalid or has expired. Create a new database to get a fresh link.", err.Error(), 0)
	}
	if code == "" {
		return s.fail(ctx, databaseID, "Missing Parameter", "The authorization code parameter is missing from the sign-in response.", "missing code parameter", 0)
	}

	// 2. Token exchange with the identity provider.
	accessToken, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		status, detail := upstreamStatus(err)
		return s.fail(ctx, databaseID, "Sign-In Failed", "We could not complete the sign-in with your identity provider. Please try again.", detail, status)
	}

	// 3. Confirm the database still exists in the temporary pool, using the
	// service credential rather than the user's token.
	if _, err := s.provider.GetDatabase(ctx, databaseID); err != nil {
		status, detail := upstreamStatus(err)
		var apiErr *providerclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return s.fail(ctx, databaseID, "Database Unavailable", "This database no longer exists. It may have expired and been deleted.", detail, status)
		}
		return s.fail(ctx, databaseID, "Claim Failed", "We could not verify the database before transferring it. Please try again.", detail, status)
	}

	// 4. Transfer ownership to the user's account.
	result, err := s.provider.TransferDatabase(ctx, databaseID, accessToken)
	if err != nil {
		status, detail := upstreamStatus(err)
		return s.fail(ctx, databaseID, "Claim Failed", "The ownership transfer was rejected by the provider.", detail, status)
	}

	// 5. Cancel the pending deletion. Even if this write is lost, the delete
	// that eventually fires is a no-op against the transferred database.
	if err := s.store.MarkScheduleCanceled(ctx, databaseID); err != nil {
		s.logger.Warn("failed to cancel deletion schedule after claim", "database_id", databaseID, "error", err)
	}

	publishAnalyticsEvent(s.producer, s.logger, s.config.AnalyticsExchange, domain.EventClaimSuccessful, databaseID, map[string]any{
		"workspace_id": result.WorkspaceID,
	})
	if err := s.store.RecordClaimEvent(ctx, databaseID, "claim_successful", ""); err != nil {
		s.logger.Warn("failed to record claim event", "database_id", databaseID, "error", err)
	}
	s.logger.Info("database claimed", "database_id", databaseID, "workspace_id", result.WorkspaceID)

	return ClaimOutcome{RedirectURL: s.successRedirect(result), Claimed: true}
}

// fail emits the claim_failed analytics event, records the side-channel audit
// row, and builds the user-facing error redirect.
func (s *ClaimService) fail(ctx context.Context, databaseID, title, message, detail string, upstreamStatus int) ClaimOutcome {
	props := map[string]any{"reason": detail}
	if upstreamStatus != 0 {
		props["status"] = upstreamStatus
	}
	publishAnalyticsEvent(s.producer, s.logger, s.config.AnalyticsExchange, domain.EventClaimFailed, databaseID, props)

	if databaseID != "" {
		if err := s.store.RecordClaimEvent(ctx, databaseID, "claim_failed", detail); err != nil {
			s.logger.Warn("failed to record claim event", "database_id", databaseID, "error", err)
		}
	}
	s.logger.Warn("claim failed", "database_id", databaseID, "reason", detail, "status", upstreamStatus)

	return ClaimOutcome{RedirectURL: s.errorRedirect(title, message, detail)}
}

func (s *ClaimService) successRedirect(result *domain.TransferResult) string {
	u, err := url.Parse(s.config.ClaimSuccessURL)
	if err != nil {
		return s.config.ClaimSuccessURL
	}
	q := u.Query()
	q.Set("databaseId", result.DatabaseID)
	if result.WorkspaceID != "" {
		q.Set("workspaceId", result.WorkspaceID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *ClaimService) errorRedirect(title, message, details string) string {
	u, err := url.Parse(s.config.ClaimErrorURL)
	if err != nil {
		return s.config.ClaimErrorURL
	}
	q := u.Query()
	q.Set("title", title)
	q.Set("message", message)
	if details != "" {
		q.Set("details", details)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// upstreamStatus extracts the captured status and body from a provider or
// identity-provider error for analytics and debugging redirects.
func upstreamStatus(err error) (int, string) {
	var apiErr *providerclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Body
	}
	var tokenErr *oauthclient.TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr.Status, tokenErr.Body
	}
	return 0, err.Error()
}
