/**
 * @description
 * This package provides a minimal OAuth client for the identity provider's
 * token endpoint. The claim flow uses it to exchange the authorization code
 * from the redirect for the user's access token, which then becomes the
 * recipient credential in the ownership transfer.
 *
 * @dependencies
 * - context, net/http, net/url, encoding/json, io, fmt, time: standard libraries.
 */
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenError is a non-2xx answer from the token endpoint. The claim flow
// surfaces the captured status and body in its failure analytics event.
type TokenError struct {
	Status int
	Body   string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d, body: %s", e.Status, e.Body)
}

// Client exchanges authorization codes for access tokens.
type Client struct {
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
}

// NewClient creates a new token-endpoint client.
func NewClient(tokenURL, clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ExchangeCode performs the authorization_code grant and returns the access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TokenError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", &TokenError{Status: resp.StatusCode, Body: string(body)}
	}
	return payload.AccessToken, nil
}
