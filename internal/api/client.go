// Package api is the client for the public lookup and admin REST endpoints.
//
// Admin calls carry the session access token through an oauth2.Transport;
// every call goes through one circuit breaker shared by the client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
	"github.com/felixgeelhaar/tirecode/internal/telemetry"
	"github.com/felixgeelhaar/tirecode/internal/version"
)

// REST endpoint paths.
const (
	LookupPath            = "/api/v1/lookup"
	SuggestionsPath       = "/api/v1/lookup/suggestions"
	MappingsPath          = "/api/v1/admin/mappings"
	ImportPath            = "/api/v1/admin/import"
	AnalyticsOverviewPath = "/api/v1/admin/analytics/overview"
	TopSearchesPath       = "/api/v1/admin/analytics/top-searches"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 1 << 20

// BreakerConfig configures the circuit breaker in front of the API.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig trips after half of at least five calls fail.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "tirecode-api",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Client is the tirecode REST API client.
type Client struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	logger    *log.Logger
	metrics   *metrics.Metrics

	transport http.RoundTripper
	tokens    oauth2.TokenSource
	breakerCf BreakerConfig

	public  *http.Client
	admin   *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource enables admin calls, authenticated with tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithTransport sets the base round tripper for every call.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records call outcomes and breaker state on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakerCf = cfg }
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   DefaultTimeout,
		userAgent: version.UserAgent(),
		transport: http.DefaultTransport,
		breakerCf: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "api")

	c.public = &http.Client{Transport: c.transport}
	if c.tokens != nil {
		c.admin = &http.Client{Transport: &oauth2.Transport{Source: c.tokens, Base: c.transport}}
	}
	c.breaker = c.newBreaker()
	c.metrics.SetBreakerState(c.breakerCf.Name, 0)

	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[*http.Response] {
	cfg := c.breakerCf
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Client-side outcomes say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				stderrors.Is(err, context.Canceled) ||
				errors.CodeOf(err) != ""
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			c.metrics.SetBreakerState(name, stateToFloat(to))
		},
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}

// stateToFloat maps breaker states to gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// call describes one API request. route is the templated path used for
// metrics and span names.
type call struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	header      http.Header
	admin       bool
}

func jsonCall(method, route, path string, body any) (call, error) {
	c := call{method: method, route: route, path: path}
	if body == nil {
		return c, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return c, fmt.Errorf("failed to marshal request body: %w", err)
	}
	c.body = bytes.NewReader(data)
	c.contentType = "application/json"
	return c, nil
}

// do performs the call and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	ctx, span := telemetry.StartAPISpan(ctx, cl.method, cl.route)
	defer span.End()
	start := time.Now()

	status, err := c.execute(ctx, cl, out)
	c.finish(span, cl, status, start, err)
	return err
}

func (c *Client) execute(parent context.Context, cl call, out any) (int, error) {
	hc := c.public
	if cl.admin {
		if c.admin == nil {
			return 0, errors.NewNotAuthenticatedError()
		}
		hc = c.admin
	}

	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	body := cl.body
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	telemetry.InjectHeaders(ctx, req.Header)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker.
		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &statusError{status: resp.StatusCode, header: resp.Header, body: data}
		}
		return resp, nil
	})
	if err != nil {
		return c.transportError(parent, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, responseError(resp.StatusCode, resp.Header, data)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrap(errors.ErrCodeRequest, "unexpected response from server", err)
		}
	}
	return resp.StatusCode, nil
}

// transportError classifies an error returned by the breaker.
func (c *Client) transportError(parent context.Context, err error) (int, error) {
	var se *statusError
	var te *errors.TirecodeError
	switch {
	case stderrors.As(err, &se):
		return se.status, responseError(se.status, se.header, se.body)
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return 0, errors.NewCircuitOpenError(c.breakerCf.Name, err)
	case stderrors.As(err, &te):
		return 0, te
	case parent.Err() != nil && stderrors.Is(err, context.Canceled):
		return 0, parent.Err()
	default:
		return 0, errors.NewAPIUnreachableError(c.baseURL, err)
	}
}

func (c *Client) finish(span trace.Span, cl call, status int, start time.Time, err error) {
	c.metrics.ObserveAPI(cl.method, cl.route, status, time.Since(start))
	if status > 0 {
		telemetry.RecordStatus(span, status)
	}

	if err != nil {
		code := errors.CodeOf(err)
		c.metrics.RecordError(string(code), "api")
		c.logger.Debug("api call failed", "method", cl.method, "route", cl.route, "status", status, "error", err.Error())
		telemetry.RecordError(span, err)
		return
	}
	telemetry.RecordSuccess(span)
}

// statusError carries a 5xx response out of the breaker.
type statusError struct {
	status int
	header http.Header
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server error %d", e.status)
}
