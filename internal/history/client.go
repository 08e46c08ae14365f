// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// Configuration constants for the REST client.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts for idempotent requests.
	DefaultMaxRetries = 3

	// DefaultRequestsPerSecond is the default sustained request rate.
	DefaultRequestsPerSecond = 5

	// defaultBurst is the token bucket size.
	defaultBurst = 10

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "helix-cli/1.0"
)

// CredentialSource supplies the bearer credential.
type CredentialSource interface {
	Token() string
}

// Client is a client for the Helix REST API.
type Client struct {
	baseURL     string
	credentials CredentialSource
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryBase   time.Duration
	logger      *zap.Logger
}

// NewClient creates a client for baseURL. credentials may be nil for the
// unauthenticated calls (Login, Health).
func NewClient(baseURL string, credentials CredentialSource) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		credentials: credentials,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), defaultBurst),
		maxRetries:  DefaultMaxRetries,
		retryBase:   retryBaseDelay,
		logger:      zap.NewNop(),
	}
}

// WithHTTPClient sets the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithMaxRetries sets the maximum number of attempts for idempotent requests.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	c.maxRetries = maxRetries
	return c
}

// WithRateLimit sets the sustained request rate. A non-positive rate
// disables limiting.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithLogger sets the diagnostic logger.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Compile-time check that Client is a Store.
var _ Store = (*Client)(nil)

// =============================================================================
// CHATS
// =============================================================================

// GetChat fetches a chat and its ordered messages.
func (c *Client) GetChat(ctx context.Context, id model.ChatID) (*Chat, error) {
	var resp chatDetailResponse
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(id.String()), nil, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	if resp.Chat.ID.IsZero() {
		resp.Chat.ID = id
	}
	return &Chat{ChatSummary: resp.Chat, Messages: resp.Messages}, nil
}

// ListChats lists the chats of tab, most recently updated first. An empty
// tab lists every chat.
func (c *Client) ListChats(ctx context.Context, tab string) ([]ChatSummary, error) {
	var query url.Values
	if tab != "" {
		query = url.Values{"tab": []string{tab}}
	}
	var resp chatListResponse
	if err := c.do(ctx, http.MethodGet, "/api/chats", query, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return resp.Chats, nil
}

// CreateChat creates an empty chat in tab.
func (c *Client) CreateChat(ctx context.Context, tab string) (*ChatSummary, error) {
	query := url.Values{"tab": []string{tab}}
	var chat ChatSummary
	if err := c.do(ctx, http.MethodPost, "/api/chats", query, nil, true, &chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &chat, nil
}

// UpdateTitle renames a chat.
func (c *Client) UpdateTitle(ctx context.Context, id model.ChatID, title string) error {
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPut, "/api/chats/"+url.PathEscape(id.String())+"/title", nil, body, true, nil); err != nil {
		return fmt.Errorf("update title of %s: %w", id, err)
	}
	return nil
}

// SetContextMode changes how much history the service includes for a chat.
func (c *Client) SetContextMode(ctx context.Context, id model.ChatID, mode string) error {
	if !IsContextMode(mode) {
		return fmt.Errorf("set context mode of %s: %w: %q", id, ErrInvalidContextMode, mode)
	}
	body := map[string]string{"mode": mode}
	if err := c.do(ctx, http.MethodPut, "/api/chats/"+url.PathEscape(id.String())+"/mode", nil, body, true, nil); err != nil {
		return fmt.Errorf("set context mode of %s: %w", id, err)
	}
	return nil
}

// DeleteChat deletes a chat and its messages.
func (c *Client) DeleteChat(ctx context.Context, id model.ChatID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(id.String()), nil, nil, true, nil); err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Login exchanges a PIN for a bearer credential. It is never retried: the
// service locks out repeated failures.
func (c *Client) Login(ctx context.Context, pin string) (*LoginResult, error) {
	body := map[string]string{"pin": pin}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, false, &result); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if result.Token == "" {
		return nil, errors.New("login: response carried no token")
	}
	return &result, nil
}

// Verify checks the current credential.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", nil, nil, true, &result); err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	return &result, nil
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var result HealthResult
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, false, &result); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &result, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do performs one API call. Idempotent methods are retried on rate limiting
// and server errors. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, auth bool, out any) error {
	token := ""
	if auth {
		if c.credentials != nil {
			token = c.credentials.Token()
		}
		if token == "" {
			return ErrNoCredential
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempts := 1
	if method != http.MethodPost {
		attempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doOnce(ctx, method, endpoint, payload, token, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, payload []byte, token string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// calculateBackoff returns the delay before the next attempt. A Retry-After
// hint from the service wins when it is shorter than retryMaxDelay.
func (c *Client) calculateBackoff(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 && apiErr.RetryAfter <= retryMaxDelay {
		return apiErr.RetryAfter
	}
	delay := c.retryBase * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
