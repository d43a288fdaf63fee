// Package idp is a client for IsatData Pro style satellite message gateways.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "satsync/internal/errors"
	"satsync/pkg/circuitbreaker"
	"satsync/pkg/idp/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Gateway REST endpoints relative to the gateway base URL
const (
	EndpointReturnMessages  = "get_return_messages.json/"
	EndpointForwardStatuses = "get_forward_statuses.json/"
	EndpointSubmitMessages  = "submit_messages.json/"
	EndpointErrorInfo       = "info_errors.json/"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultErrorCacheTTL = time.Hour
	maxErrorBodyBytes    = 4096
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// RequestsPerSecond caps calls per gateway. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Breaker           circuitbreaker.Config
	ErrorCacheTTL     time.Duration
	Logger            *logrus.Logger
	// Observe is called after every gateway call with the outcome
	// "ok", "transport" or "error".
	Observe func(operation, outcome string, elapsed time.Duration)
}

type errorNames struct {
	names     map[int]string
	fetchedAt time.Time
}

// Client implements types.Client over HTTP. One client serves every
// gateway; rate limiting and circuit breaking are per gateway URL.
type Client struct {
	http     *http.Client
	opts     Options
	logger   *logrus.Logger
	breakers *circuitbreaker.Group
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	errMu      sync.Mutex
	errorCache map[string]errorNames
}

var _ types.Client = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.ErrorCacheTTL <= 0 {
		opts.ErrorCacheTTL = defaultErrorCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	breakerCfg := opts.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = apperrors.IsTransport
	}

	return &Client{
		http:       httpClient,
		opts:       opts,
		logger:     logger,
		breakers:   circuitbreaker.NewGroup(breakerCfg, logger),
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		errorCache: make(map[string]errorNames),
	}
}

// BreakerStats reports the circuit breaker of every gateway called so far
func (c *Client) BreakerStats() []circuitbreaker.Stats {
	return c.breakers.Stats()
}

func (c *Client) limiter(gatewayURL string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[gatewayURL]
	if !ok {
		limit := rate.Inf
		burst := c.opts.Burst
		if c.opts.RequestsPerSecond > 0 {
			limit = rate.Limit(c.opts.RequestsPerSecond)
			if burst <= 0 {
				burst = 1
			}
		}
		l = rate.NewLimiter(limit, burst)
		c.limiters[gatewayURL] = l
	}
	return l
}

// GetReturnMessages lists mobile-originated messages from the filter onward
func (c *Client) GetReturnMessages(ctx context.Context, gatewayURL string, auth types.Auth, filter types.Filter) (*types.ReturnMessagesResponse, error) {
	q := credentials(auth)
	q.Set("include_raw_payload", "true")
	q.Set("include_type", "true")
	if filter.StartID > 0 {
		q.Set("from_id", strconv.FormatInt(filter.StartID, 10))
	} else {
		q.Set("start_utc", filter.StartUTC)
	}

	var resp types.ReturnMessagesResponse
	if err := c.call(ctx, gatewayURL, "get_return_messages", http.MethodGet, EndpointReturnMessages, q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetForwardStatuses lists delivery status changes since the filter time
func (c *Client) GetForwardStatuses(ctx context.Context, gatewayURL string, auth types.Auth, filter types.Filter) (*types.ForwardStatusesResponse, error) {
	q := credentials(auth)
	q.Set("start_utc", filter.StartUTC)

	var resp types.ForwardStatusesResponse
	if err := c.call(ctx, gatewayURL, "get_forward_statuses", http.MethodGet, EndpointForwardStatuses, q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitForwardMessages submits commands toward terminals
func (c *Client) SubmitForwardMessages(ctx context.Context, gatewayURL string, auth types.Auth, messages []types.ForwardMessage) (*types.SubmitResponse, error) {
	body, err := json.Marshal(types.SubmitRequest{
		AccessID: auth.AccessID,
		Password: auth.Password,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp types.SubmitResponse
	if err := c.call(ctx, gatewayURL, "submit_messages", http.MethodPost, EndpointSubmitMessages, nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ErrorName resolves a gateway error id to its symbolic name. The table is
// fetched once per gateway and cached; lookups never fail and fall back to
// a static table when the gateway cannot be asked.
func (c *Client) ErrorName(ctx context.Context, gatewayURL string, errorID int) string {
	if name, ok := c.cachedErrorName(gatewayURL, errorID); ok {
		return name
	}

	var defs []types.ErrorDefinition
	if err := c.call(ctx, gatewayURL, "info_errors", http.MethodGet, EndpointErrorInfo, nil, nil, &defs); err != nil {
		c.logger.WithError(err).WithField("error_id", errorID).Debug("Failed to fetch gateway error names")
		return FallbackErrorName(errorID)
	}

	names := make(map[int]string, len(defs))
	for _, d := range defs {
		names[d.ID] = d.Name
	}
	c.errMu.Lock()
	c.errorCache[gatewayURL] = errorNames{names: names, fetchedAt: c.now()}
	c.errMu.Unlock()

	if name, ok := names[errorID]; ok && name != "" {
		return name
	}
	return FallbackErrorName(errorID)
}

func (c *Client) cachedErrorName(gatewayURL string, errorID int) (string, bool) {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	cached, ok := c.errorCache[gatewayURL]
	if !ok || c.now().Sub(cached.fetchedAt) > c.opts.ErrorCacheTTL {
		return "", false
	}
	if name, ok := cached.names[errorID]; ok && name != "" {
		return name, true
	}
	return FallbackErrorName(errorID), true
}

// FallbackErrorName names an error id without asking the gateway
func FallbackErrorName(errorID int) string {
	if errorID == 0 {
		return "NO_ERRORS"
	}
	return "ERROR_" + strconv.Itoa(errorID)
}

func credentials(auth types.Auth) url.Values {
	q := url.Values{}
	q.Set("access_id", auth.AccessID)
	q.Set("password", auth.Password)
	return q
}

func endpoint(gatewayURL, path string) string {
	return strings.TrimSuffix(gatewayURL, "/") + "/" + path
}

// call performs one gateway request through the gateway's limiter and
// breaker and decodes the JSON body into out. Returned errors are
// classified AppErrors except for a cancelled parent context.
func (c *Client) call(ctx context.Context, gatewayURL, operation, method, path string, query url.Values, body []byte, out interface{}) error {
	start := c.now()
	gateway := hostOf(gatewayURL)

	if err := c.limiter(gatewayURL).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Wrap(err, apperrors.ErrCodeRateLimit, "gateway rate limit wait failed").
			WithContext("gateway", gateway).
			WithContext("operation", operation)
	}

	err := c.breakers.Get(gatewayURL).Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, gateway, operation, method, endpoint(gatewayURL, path), query, body, out)
	})
	if circuitbreaker.IsCircuitBreakerError(err) {
		err = apperrors.NewTransportError(gateway, operation, 0, err)
	}

	c.observe(operation, err, c.now().Sub(start))
	return err
}

func (c *Client) do(ctx context.Context, gateway, operation, method, target string, query url.Values, body []byte, out interface{}) error {
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to create request").
			WithContext("operation", operation)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithFields(logrus.Fields{
		"gateway":   gateway,
		"operation": operation,
	}).Debug("Calling gateway")

	resp, err := c.http.Do(req)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		var urlErr *url.Error
		if stderrors.As(err, &urlErr) && urlErr.Timeout() {
			return apperrors.NewTimeoutError(operation, c.opts.Timeout.String()).
				WithContext("gateway", gateway)
		}
		return apperrors.NewTransportError(gateway, operation, 0, stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return apperrors.NewAPIError(gateway, operation, resp.StatusCode,
			fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewTransportError(gateway, operation, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) observe(operation string, err error, elapsed time.Duration) {
	if c.opts.Observe == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case apperrors.IsTransport(err):
		outcome = "transport"
	default:
		outcome = "error"
	}
	c.opts.Observe(operation, outcome, elapsed)
}

func hostOf(gatewayURL string) string {
	u, err := url.Parse(gatewayURL)
	if err != nil || u.Host == "" {
		return gatewayURL
	}
	return u.Host
}

// stripURL drops the request URL from a transport error so credentials in
// the query string never reach logs. The underlying cause is kept.
func stripURL(err error) error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: hostOf(urlErr.URL), Err: urlErr.Err}
	}
	return err
}
