/**
 * @description
 * This package provides a client for the remote database provisioning API.
 * It encapsulates authenticated HTTP access to the provider's endpoints:
 * creating a database, deleting it, listing live databases, listing regions,
 * and transferring ownership to a permanent account.
 *
 * Key behaviors:
 * - Normalizes the provider's two create-response shapes into one DatabaseHandle.
 * - Maps HTTP 429 to ErrRateLimited without retrying; retry policy belongs to callers.
 * - Treats a delete against an already-gone or already-transferred database as
 *   success, which is what makes the deletion timer safe to race against a claim.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, net/url, time: standard libraries.
 * - The service's internal domain package for wire models.
 */
package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flashpg/provision-service/internal/domain"
)

// ErrRateLimited is returned when the provider answers 429. Creation is never
// retried automatically to avoid amplifying load during an upstream overload.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// APIError is an explicit error payload or non-success status from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider API error: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider API error: status %d, body: %s", e.Status, e.Body)
}

// InvalidResponseError is returned when the provider answers with a body that
// does not parse as JSON in any known shape. The raw body is kept for diagnostics.
type InvalidResponseError struct {
	Body string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid provider response: %s", e.Body)
}

// Client is a client for the provisioning API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new provisioning API client. The timeout bounds every
// outbound call; it is deliberately short and unrelated to any TTL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateDatabase provisions a new database and normalizes the response.
func (c *Client) CreateDatabase(ctx context.Context, req domain.CreateDatabaseRequest) (*domain.DatabaseHandle, error) {
	status, body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/create", c.baseURL), req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}

	var resp domain.CreateDatabaseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	if resp.Error != nil {
		return nil, &APIError{Status: status, Code: resp.Error.Code, Message: resp.Error.Message, Body: string(body)}
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}

	handle, err := normalizeCreateResponse(&resp)
	if err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	return handle, nil
}

// normalizeCreateResponse collapses the provider's two success shapes into the
// canonical handle.
func normalizeCreateResponse(resp *domain.CreateDatabaseResponse) (*domain.DatabaseHandle, error) {
	switch {
	case resp.Project != nil:
		handle := &domain.DatabaseHandle{
			ID:     resp.Project.ID,
			Region: resp.Project.Region,
			Name:   resp.Project.Name,
		}
		if resp.Database != nil {
			handle.ConnectionString = resp.Database.ConnectionString
		}
		if handle.ID == "" {
			return nil, errors.New("project bundle missing id")
		}
		return handle, nil
	case len(resp.Data) > 0:
		first := resp.Data[0]
		if first.ID == "" {
			return nil, errors.New("flat response missing id")
		}
		return &domain.DatabaseHandle{
			ID:               first.ID,
			ConnectionString: first.ConnectionString,
			Region:           first.Region,
			Name:             first.Name,
		}, nil
	default:
		return nil, errors.New("unrecognized create response shape")
	}
}

// DeleteDatabase deletes a database. Not-found and already-transferred
// responses are mapped to success: by the time the timer fires, the database
// may have been claimed or swept, and that is the expected outcome, not a fault.
func (c *Client) DeleteDatabase(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/projects/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound, status == http.StatusConflict, status == http.StatusGone:
		return nil
	default:
		return &APIError{Status: status, Body: string(body)}
	}
}

// GetDatabase fetches one database, used by the claim flow to confirm the
// target still exists before transferring it.
func (c *Client) GetDatabase(ctx context.Context, id string) (*domain.ProviderDatabase, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/projects/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}

	var db domain.ProviderDatabase
	if err := json.Unmarshal(body, &db); err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	return &db, nil
}

// ListDatabases fetches one page of live databases for the stale sweeper.
func (c *Client) ListDatabases(ctx context.Context, cursor string, limit int) (*domain.DatabasePage, error) {
	endpoint := fmt.Sprintf("%s/projects?limit=%d", c.baseURL, limit)
	if cursor != "" {
		endpoint += "&cursor=" + url.QueryEscape(cursor)
	}

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}

	var resp domain.ListDatabasesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	return &domain.DatabasePage{
		Databases:  resp.Data,
		NextCursor: resp.Pagination.NextCursor,
	}, nil
}

// ListRegions fetches the provider regions available for provisioning.
func (c *Client) ListRegions(ctx context.Context) ([]domain.Region, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/regions", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}

	var regions []domain.Region
	if err := json.Unmarshal(body, &regions); err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	return regions, nil
}

// TransferDatabase transfers ownership of a database to the account behind the
// recipient access token. The service authenticates itself with its API key;
// the recipient token travels in the body.
func (c *Client) TransferDatabase(ctx context.Context, id, recipientAccessToken string) (*domain.TransferResult, error) {
	req := domain.TransferDatabaseRequest{RecipientAccessToken: recipientAccessToken}
	status, body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/projects/%s/transfer", c.baseURL, url.PathEscape(id)), req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}

	var result domain.TransferResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &InvalidResponseError{Body: string(body)}
	}
	if result.DatabaseID == "" {
		result.DatabaseID = id
	}
	return &result, nil
}

// do makes an authenticated HTTP request and returns the status and raw body.
// Status mapping is left to each operation because the idempotency rules differ.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
