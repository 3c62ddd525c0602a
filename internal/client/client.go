// Package client talks to the management service REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"sieve/internal/logger"
	"sieve/internal/management"
	"sieve/pkg/errors"
	"sieve/pkg/models"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
)

type Client struct {
	baseURL string
	http    *retryablehttp.Client
	userID  string
	reason  string
}

type Option func(*Client)

// WithIdentity sets the X-User-ID and X-Change-Reason headers sent on writes.
func WithIdentity(userID, reason string) Option {
	return func(c *Client) {
		c.userID = userID
		c.reason = reason
	}
}

func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = min
		c.http.RetryWaitMax = max
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.http.Logger = leveledLogger{log}
	}
}

func New(baseURL string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.HTTPClient = &http.Client{Timeout: defaultTimeout}
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.CheckRetry = checkRetry

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    retryClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListFilterSets(ctx context.Context) ([]*models.FilterSet, error) {
	var sets []*models.FilterSet
	if err := c.do(ctx, http.MethodGet, "/filter-sets", nil, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (c *Client) GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error) {
	var set models.FilterSet
	if err := c.do(ctx, http.MethodGet, "/filter-sets/"+url.PathEscape(id), nil, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Client) CreateFilterSet(ctx context.Context, req management.CreateFilterSetRequest) (*models.FilterSet, error) {
	var set models.FilterSet
	if err := c.do(withoutReplay(ctx), http.MethodPost, "/filter-sets", req, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Client) UpdateFilterSet(ctx context.Context, id string, req management.UpdateFilterSetRequest) (*models.FilterSet, error) {
	var set models.FilterSet
	if err := c.do(ctx, http.MethodPut, "/filter-sets/"+url.PathEscape(id), req, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Client) DeleteFilterSet(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/filter-sets/"+url.PathEscape(id), nil, nil)
}

func (c *Client) EvaluateFilterSet(ctx context.Context, id string, req management.EvaluateRequest) (*management.EvaluateResponse, error) {
	var resp management.EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/filter-sets/"+url.PathEscape(id)+"/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ValidateFilters(ctx context.Context, req management.ValidateFiltersRequest) (*management.ValidateFiltersResponse, error) {
	var resp management.ValidateFiltersResponse
	if err := c.do(ctx, http.MethodPost, "/filters/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type noReplayKey struct{}

// withoutReplay marks a request that must not be sent twice once the server
// may have seen it. Creates are the only such call; the other POSTs are reads.
func withoutReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, noReplayKey{}, true)
}

// checkRetry applies the default policy, narrowed for requests marked with
// withoutReplay: those retry only on a failed dial, 429 or 503.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	if !retry || checkErr != nil {
		return retry, checkErr
	}
	if noReplay, _ := ctx.Value(noReplayKey{}).(bool); !noReplay {
		return true, nil
	}
	if err != nil {
		var opErr *net.OpError
		return stderrors.As(err, &opErr) && opErr.Op == "dial", nil
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, nil
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(management.HeaderUserID, c.userID)
	}
	if c.reason != "" {
		req.Header.Set(management.HeaderChangeReason, c.reason)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details"`
}

// decodeError rebuilds the server's typed error so callers can use
// errors.IsNotFound and friends on the client side.
func decodeError(status int, data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.ErrorCode == "" {
		return errors.NewError("HTTP_ERROR", strings.TrimSpace(string(data)), status)
	}
	appErr := errors.NewError(body.ErrorCode, body.Error, status)
	if len(body.Details) > 0 {
		appErr = appErr.WithDetails(body.Details)
	}
	return appErr
}

type leveledLogger struct {
	log logger.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
