// Package crm talks to the CRM's REST surface: a three-step OAuth login
// followed by session-token requests against the entity endpoints.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
)

const (
	requestTimeout = 120 * time.Second
	authTimeout    = 30 * time.Second

	maxAttempts  = 3
	retryBase    = 500 * time.Millisecond
	retryCeiling = 10 * time.Second
)

// Entity is one CRM record stream.
type Entity string

const (
	EntityConsultants Entity = "consultants"
	EntityCandidates  Entity = "candidates"
	EntityPositions   Entity = "positions"
)

// Entities lists every stream in sync order.
func Entities() []Entity {
	return []Entity{EntityConsultants, EntityCandidates, EntityPositions}
}

func (e Entity) endpoint() (string, error) {
	switch e {
	case EntityConsultants:
		return "/api/v1/consultants", nil
	case EntityCandidates:
		return "/api/v1/candidates", nil
	case EntityPositions:
		return "/api/v1/job-orders", nil
	default:
		return "", fmt.Errorf("unknown CRM entity %q", e)
	}
}

// StatusError is a non-2xx CRM response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm returned status %d: %s", e.Code, e.Body)
}

// Client holds CRM credentials and the lazily acquired session token. Safe
// for concurrent use; entity streams share one session.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	username     string
	password     string

	httpClient *http.Client
	authClient *http.Client
	logger     zerolog.Logger

	mu           sync.Mutex
	sessionToken string
}

func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.CRMBaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("CRM base URL is required")
	}

	return &Client{
		baseURL:      base,
		clientID:     cfg.CRMClientID,
		clientSecret: cfg.CRMClientSecret,
		username:     cfg.CRMUsername,
		password:     cfg.CRMPassword,
		httpClient:   &http.Client{Timeout: requestTimeout},
		authClient:   &http.Client{Timeout: authTimeout},
		logger:       logger.With().Str("component", "crm-client").Logger(),
	}, nil
}

// authenticate runs the full three-step flow and stores the session token:
// authorization code, then access token, then the REST session login.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.logger.Info().Msg("starting CRM authentication flow")

	authQuery := url.Values{
		"client_id":     {c.clientID},
		"username":      {c.username},
		"password":      {c.password},
		"response_type": {"code"},
		"action":        {"Login"},
	}
	var authBody struct {
		Code string `json:"code"`
	}
	if err := c.doAuthStep(ctx, http.MethodGet, "/oauth/authorize", authQuery, nil, &authBody); err != nil {
		return "", fmt.Errorf("request authorization code: %w", err)
	}
	if authBody.Code == "" {
		return "", fmt.Errorf("authorization response carried no code")
	}

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authBody.Code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	var tokenBody struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doAuthStep(ctx, http.MethodPost, "/oauth/token", nil, tokenForm, &tokenBody); err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if tokenBody.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}

	loginQuery := url.Values{
		"version":      {"*"},
		"access_token": {tokenBody.AccessToken},
	}
	var loginBody struct {
		BhRestToken      string `json:"BhRestToken"`
		BhRestTokenLower string `json:"bhRestToken"`
	}
	if err := c.doAuthStep(ctx, http.MethodPost, "/rest-services/login", loginQuery, nil, &loginBody); err != nil {
		return "", fmt.Errorf("rest session login: %w", err)
	}

	token := loginBody.BhRestToken
	if token == "" {
		token = loginBody.BhRestTokenLower
	}
	if token == "" {
		return "", fmt.Errorf("login response carried no session token")
	}

	c.logger.Info().Msg("CRM session token obtained")
	return token, nil
}

func (c *Client) doAuthStep(ctx context.Context, method, path string, query url.Values, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.authClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: truncateBody(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}

func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionToken != "" {
		return c.sessionToken, nil
	}
	token, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.sessionToken = token
	return token, nil
}

// refreshSession discards a stale token and authenticates again. The stale
// argument guards against a concurrent refresh having already replaced it.
func (c *Client) refreshSession(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionToken != "" && c.sessionToken != stale {
		return c.sessionToken, nil
	}
	token, err := c.authenticate(ctx)
	if err != nil {
		c.sessionToken = ""
		return "", err
	}
	c.sessionToken = token
	return token, nil
}

// doAuthenticated issues one session-token request. A 401 triggers exactly one
// re-authentication and one replay; that replay is not part of any retry
// budget.
func (c *Client) doAuthenticated(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	token, err := c.session(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire CRM session: %w", err)
	}

	raw, status, err := c.doOnce(ctx, path, query, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn().Str("path", path).Msg("session token rejected, re-authenticating")
		token, err = c.refreshSession(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("re-authenticate after 401: %w", err)
		}
		raw, status, err = c.doOnce(ctx, path, query, token)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status, Body: truncateBody(raw)}
	}
	return raw, nil
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values, token string) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build CRM request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("BhRestToken", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("crm request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read CRM response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// isTransient reports whether an error is worth another attempt. Server-side
// failures and transport errors qualify; client errors and cancellations do
// not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	// Transport-level failure.
	msg := err.Error()
	return strings.Contains(msg, "request failed") || strings.Contains(msg, "read CRM response")
}

func backoffDelay(attempt int) time.Duration {
	delay := retryBase << attempt
	if delay > retryCeiling {
		delay = retryCeiling
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateBody(raw []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
