package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

// Endpoint holds process-wide provider endpoints and client credentials.
// Client credentials are never per-company.
type Endpoint struct {
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	ClientID     string
	ClientSecret string
}

// ProviderClient encapsulates outbound HTTP calls to the OAuth provider.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, ep Endpoint, code, codeVerifier, redirectURI string) (*domain.TokenResponse, error)
	RefreshToken(ctx context.Context, ep Endpoint, refreshToken string) (*domain.TokenResponse, error)
	RevokeToken(ctx context.Context, ep Endpoint, token string) error
}

// ProviderError carries the provider's non-2xx diagnostics. The body is kept
// for operator logs only and is never surfaced to end users.
type ProviderError struct {
	Status int
	Code   string
	Body   string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error: status=%d code=%s", e.Status, e.Code)
	}
	return fmt.Sprintf("provider error: status=%d", e.Status)
}

// HTTPProviderClient is the default HTTP implementation. All calls are bound
// by the client timeout so a hung upstream cannot stall the request path.
type HTTPProviderClient struct {
	httpClient *http.Client
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client, timeout time.Duration) *HTTPProviderClient {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode swaps an authorization code for the initial token bundle.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, ep Endpoint, code, codeVerifier, redirectURI string) (*domain.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", ep.ClientID)
	data.Set("client_secret", ep.ClientSecret)
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}
	return c.postTokenRequest(ctx, ep.TokenURL, data)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, ep Endpoint, refreshToken string) (*domain.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", ep.ClientID)
	data.Set("client_secret", ep.ClientSecret)
	return c.postTokenRequest(ctx, ep.TokenURL, data)
}

// RevokeToken tells the provider to invalidate a token. Best effort; callers
// treat failures as non-fatal.
func (c *HTTPProviderClient) RevokeToken(ctx context.Context, ep Endpoint, token string) error {
	if strings.TrimSpace(ep.RevokeURL) == "" {
		return nil
	}
	data := url.Values{}
	data.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return newProviderError(resp.StatusCode, body)
	}
	return nil
}

func (c *HTTPProviderClient) postTokenRequest(ctx context.Context, tokenURL string, data url.Values) (*domain.TokenResponse, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, newProviderError(resp.StatusCode, body)
	}

	var token domain.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}

func newProviderError(status int, body []byte) *ProviderError {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	return &ProviderError{Status: status, Code: payload.Error, Body: string(body)}
}
