// Package session manages the lifecycle of an admin session: talking to the
// auth endpoints, persisting the grant, refreshing it before it expires and
// exposing the resulting state to the CLI.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
	"github.com/felixgeelhaar/tirecode/internal/telemetry"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
	"github.com/felixgeelhaar/tirecode/internal/version"
)

// Auth endpoint paths.
const (
	LoginPath   = "/api/v1/admin/auth/login"
	RefreshPath = "/api/v1/admin/auth/refresh"
	LogoutPath  = "/api/v1/admin/auth/logout"
)

// DefaultTimeout bounds every auth call.
const DefaultTimeout = 10 * time.Second

// Grant is the session material returned by login and refresh.
type Grant struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresIn    int64           `json:"expiresIn"`
	User         tokenstore.User `json:"user"`
}

// Client performs the three auth calls and maps every outcome onto the
// AUTH-* error codes. It does not persist or schedule anything.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientMetrics records request outcomes on m.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		userAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "session-client")
	return c
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Login exchanges credentials for a Grant.
func (c *Client) Login(ctx context.Context, email, password string) (*Grant, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "login")
	defer span.End()
	start := time.Now()

	grant, err := c.login(ctx, email, password)
	c.finish(span, "login", start, err)
	return grant, err
}

func (c *Client) login(ctx context.Context, email, password string) (*Grant, error) {
	body := map[string]string{"email": email, "password": password}

	resp, err := c.doRequest(ctx, LoginPath, body, "")
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, errors.NewUnreachableError(c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.NewInvalidCredentialsError(serverMessage(resp))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewRateLimitedError(errors.FormatRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.NewServerUnavailableError(resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.NewLoginFailedError(resp.StatusCode, serverMessage(resp))
	}

	grant, err := decodeGrant(resp.Body)
	if err != nil {
		switch {
		case isCanceled(ctx, err):
			return nil, ctx.Err()
		case interrupted(err):
			return nil, errors.NewUnreachableError(c.baseURL, err)
		}
		return nil, errors.Wrap(errors.ErrCodeLoginFailed, "login failed: unexpected response", err)
	}
	return grant, nil
}

// Refresh exchanges a refresh token for a new Grant. A 401 or 403 yields
// SessionExpired; every other failure yields RefreshUnavailable.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "refresh")
	defer span.End()
	start := time.Now()

	grant, err := c.refresh(ctx, refreshToken)
	c.finish(span, "refresh", start, err)
	return grant, err
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	body := map[string]string{"refreshToken": refreshToken}

	resp, err := c.doRequest(ctx, RefreshPath, body, "")
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, errors.NewRefreshUnavailableError("cannot reach "+c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, errors.NewSessionExpiredError(resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.NewRefreshUnavailableError(fmt.Sprintf("status %d", resp.StatusCode), nil).
			WithDetail("status", fmt.Sprint(resp.StatusCode))
	}

	grant, err := decodeGrant(resp.Body)
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, errors.NewRefreshUnavailableError("unexpected response", err)
	}
	return grant, nil
}

// Logout revokes the session server-side. An empty token makes no call.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	ctx, span := telemetry.StartSessionSpan(ctx, "logout")
	defer span.End()
	start := time.Now()

	err := c.logout(ctx, accessToken)
	c.finish(span, "logout", start, err)
	return err
}

func (c *Client) logout(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, LogoutPath, nil, accessToken)
	if err != nil {
		return errors.NewUnreachableError(c.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

// doRequest POSTs a JSON body under the client timeout.
func (c *Client) doRequest(ctx context.Context, path string, body any, bearer string) (*http.Response, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	telemetry.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) finish(span trace.Span, operation string, start time.Time, err error) {
	c.metrics.ObserveSession(operation, err, time.Since(start))

	if err != nil {
		code := errors.CodeOf(err)
		c.metrics.RecordError(string(code), "session")
		c.logger.Debug("auth call failed", "operation", operation, "error_code", string(code), "error", err.Error())
		telemetry.RecordError(span, err)
		return
	}
	telemetry.RecordSuccess(span)
}

// cancelOnClose releases the request timeout once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// serverMessage extracts error.message from a JSON error body, if any.
func serverMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Error.Message
}

func decodeGrant(r io.Reader) (*Grant, error) {
	var grant Grant
	if err := json.NewDecoder(r).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, stderrors.New("response carried no access token")
	}
	return &grant, nil
}

// isCanceled reports whether err comes from the caller abandoning ctx rather
// than from the network or the client timeout.
func isCanceled(ctx context.Context, err error) bool {
	return stderrors.Is(ctx.Err(), context.Canceled) && stderrors.Is(err, context.Canceled)
}

// interrupted reports whether reading a response failed in transport, after
// the status line arrived.
func interrupted(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
