package app

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/flashpg/provision-service/internal/config"
	"github.com/flashpg/provision-service/internal/domain"
	"github.com/flashpg/provision-service/pkg/oauthclient"
	"github.com/flashpg/provision-service/pkg/providerclient"
)

type oauthStub struct {
	token string
	err   error
	calls int
}

func (o *oauthStub) ExchangeCode(ctx context.Context, code string) (string, error) {
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	return o.token, nil
}

type transferProviderStub struct {
	getErr        error
	transferErr   error
	result        *domain.TransferResult
	getCalls      int
	transferCalls int
	lastToken     string
}

func (p *transferProviderStub) GetDatabase(ctx context.Context, id string) (*domain.ProviderDatabase, error) {
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return &domain.ProviderDatabase{ID: id}, nil
}

func (p *transferProviderStub) TransferDatabase(ctx context.Context, id, token string) (*domain.TransferResult, error) {
	p.transferCalls++
	p.lastToken = token
	if p.transferErr != nil {
		return nil, p.transferErr
	}
	if p.result != nil {
		return p.result, nil
	}
	return &domain.TransferResult{DatabaseID: id, WorkspaceID: "ws_1"}, nil
}

type claimStoreStub struct {
	canceled []string
	events   []string
}

func (c *claimStoreStub) MarkScheduleCanceled(ctx context.Context, databaseID string) error {
	c.canceled = append(c.canceled, databaseID)
	return nil
}

func (c *claimStoreStub) RecordClaimEvent(ctx context.Context, databaseID, outcome, detail string) error {
	c.events = append(c.events, outcome)
	return nil
}

func claimTestConfig() config.Config {
	return config.Config{
		StateSigningSecret: "test-signing-secret",
		OAuthAuthorizeURL:  "https://id.test/authorize",
		OAuthClientID:      "cid",
		OAuthRedirectURL:   "https://db.flashpg.test/claim/callback",
		OAuthScope:         "openid",
		ClaimSuccessURL:    "https://app.flashpg.test/claimed",
		ClaimErrorURL:      "https://app.flashpg.test/claim-error",
		AnalyticsExchange:  "flashpg.events",
	}
}

func newClaimHarness() (*ClaimService, *oauthStub, *transferProviderStub, *claimStoreStub, *publisherStub) {
	oauth := &oauthStub{token: "user-token"}
	provider := &transferProviderStub{}
	store := &claimStoreStub{}
	producer := &publisherStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewClaimService(oauth, provider, store, producer, logger, claimTestConfig())
	return svc, oauth, provider, store, producer
}

func redirectQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("redirect URL does not parse: %v", err)
	}
	return u.Query()
}

func TestHandleCallback_MissingStateMakesNoOutboundCalls(t *testing.T) {
	svc, oauth, provider, _, producer := newClaimHarness()

	outcome := svc.HandleCallback(context.Background(), "code", "", "proj_1")

	if outcome.Claimed {
		t.Fatal("claim must not succeed without state")
	}
	if oauth.calls != 0 || provider.getCalls != 0 || provider.transferCalls != 0 {
		t.Fatal("no outbound calls expected when state is missing")
	}
	q := redirectQuery(t, outcome.RedirectURL)
	if !strings.Contains(q.Get("details"), "state parameter") {
		t.Errorf("details = %q, want mention of state parameter", q.Get("details"))
	}
	if !strings.HasPrefix(outcome.RedirectURL, "https://app.flashpg.test/claim-error") {
		t.Errorf("redirect = %q, want error destination", outcome.RedirectURL)
	}
	if names := producer.eventNames(); len(names) != 1 || names[0] != domain.EventClaimFailed {
		t.Errorf("events = %v", names)
	}
}

func TestHandleCallback_MissingDatabaseIDFailsLocally(t *testing.T) {
	svc, oauth, _, _, _ := newClaimHarness()

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "code", state, "")
	if oauth.calls != 0 {
		t.Fatal("no token exchange expected without databaseId")
	}
	q := redirectQuery(t, outcome.RedirectURL)
	if !strings.Contains(q.Get("details"), "databaseId parameter") {
		t.Errorf("details = %q", q.Get("details"))
	}
}

func TestHandleCallback_TamperedStateRejected(t *testing.T) {
	svc, oauth, _, _, _ := newClaimHarness()

	state, err := svc.MintState("proj_other")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "code", state, "proj_1")
	if outcome.Claimed {
		t.Fatal("state minted for another database must be rejected")
	}
	if oauth.calls != 0 {
		t.Fatal("no token exchange expected for a tampered state")
	}
}

func TestHandleCallback_SuccessfulClaim(t *testing.T) {
	svc, _, provider, store, producer := newClaimHarness()

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "authcode", state, "proj_1")

	if !outcome.Claimed {
		t.Fatalf("expected successful claim, redirect=%s", outcome.RedirectURL)
	}
	if provider.lastToken != "user-token" {
		t.Errorf("transfer used token %q, want the exchanged user token", provider.lastToken)
	}
	if len(store.canceled) != 1 || store.canceled[0] != "proj_1" {
		t.Errorf("expected deletion schedule canceled for proj_1, got %v", store.canceled)
	}
	q := redirectQuery(t, outcome.RedirectURL)
	if q.Get("databaseId") != "proj_1" || q.Get("workspaceId") != "ws_1" {
		t.Errorf("success redirect query = %v", q)
	}
	if names := producer.eventNames(); len(names) != 1 || names[0] != domain.EventClaimSuccessful {
		t.Errorf("events = %v", names)
	}
}

func TestHandleCallback_TransferForbiddenEmitsFailureWithStatus(t *testing.T) {
	svc, _, provider, _, producer := newClaimHarness()
	provider.transferErr = &providerclient.APIError{Status: 403, Body: "transfer not permitted for this account"}

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "authcode", state, "proj_1")

	if outcome.Claimed {
		t.Fatal("claim must fail when the transfer is rejected")
	}
	if len(producer.events) != 1 || producer.events[0].Event != domain.EventClaimFailed {
		t.Fatalf("events = %v", producer.eventNames())
	}
	if got := producer.events[0].Properties["status"]; got != 403 {
		t.Errorf("event status = %v, want 403", got)
	}
	q := redirectQuery(t, outcome.RedirectURL)
	if !strings.Contains(q.Get("details"), "transfer not permitted") {
		t.Errorf("details = %q, want upstream error text", q.Get("details"))
	}
}

func TestHandleCallback_TokenExchangeFailure(t *testing.T) {
	svc, oauth, provider, _, producer := newClaimHarness()
	oauth.err = &oauthclient.TokenError{Status: 400, Body: `{"error":"invalid_grant"}`}

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "expired-code", state, "proj_1")

	if outcome.Claimed {
		t.Fatal("claim must fail when token exchange fails")
	}
	if provider.transferCalls != 0 {
		t.Fatal("no transfer expected after a failed token exchange")
	}
	if got := producer.events[0].Properties["status"]; got != 400 {
		t.Errorf("event status = %v, want 400", got)
	}
}

func TestHandleCallback_ExpiredDatabase(t *testing.T) {
	svc, _, provider, _, _ := newClaimHarness()
	provider.getErr = &providerclient.APIError{Status: 404, Body: "not found"}

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	outcome := svc.HandleCallback(context.Background(), "authcode", state, "proj_1")

	if outcome.Claimed {
		t.Fatal("claim must fail for a deleted database")
	}
	if provider.transferCalls != 0 {
		t.Fatal("no transfer expected when the database is gone")
	}
	q := redirectQuery(t, outcome.RedirectURL)
	if q.Get("title") != "Database Unavailable" {
		t.Errorf("title = %q", q.Get("title"))
	}
}

func TestAuthorizeURL_CarriesOAuthParameters(t *testing.T) {
	svc, _, _, _, _ := newClaimHarness()

	state, err := svc.MintState("proj_1")
	if err != nil {
		t.Fatalf("MintState: %v", err)
	}
	raw, err := svc.AuthorizeURL(state)
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	q := redirectQuery(t, raw)
	if q.Get("client_id") != "cid" || q.Get("response_type") != "code" || q.Get("state") != state {
		t.Errorf("authorize query = %v", q)
	}
}
