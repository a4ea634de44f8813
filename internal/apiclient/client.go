// Package apiclient is the HTTP client for the remote assessment API.
//
// Responses are validated against the embedded JSON Schemas before they are
// decoded, so malformed payloads fail at this boundary with a *DecodeError
// instead of surfacing later as zero values.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/schemas"
)

const (
	// DefaultRetries is the number of extra attempts for retryable requests.
	DefaultRetries = 3
	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 60 * time.Second
	// DefaultUserAgent identifies the client.
	DefaultUserAgent = "assessment-wizard/1.0"
	// MaxRequestBody caps generation request bodies in bytes.
	MaxRequestBody = 10000
	// maxResponseBody caps how much of a response is read.
	maxResponseBody = 32 << 20
)

// TokenSource supplies the bearer token for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

type tokenKey struct{}

// WithToken returns a context whose requests use token instead of the client's TokenSource.
// The server uses this to forward the caller's own credentials.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zap.Logger
}

// Client calls the assessment API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	retries    int
	retryDelay time.Duration
	userAgent  string
	http       *http.Client
	tokens     TokenSource
	logger     *zap.Logger
	validator  *schemas.Validator
}

// New creates a client. BaseURL is required.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %s", opts.BaseURL)
	}

	c := &Client{
		baseURL:    base,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
		http:       opts.HTTPClient,
		tokens:     opts.Tokens,
		logger:     logging.OrNop(opts.Logger),
		validator:  schemas.NewValidator(),
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// WithTokens returns a copy of the client that authenticates with tokens.
// The copy shares the HTTP client and schema validator.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// response is a fully read 2xx response.
type response struct {
	status      int
	contentType string
	body        []byte
}

func (r *response) isJSON() bool {
	return strings.Contains(r.contentType, "json")
}

// request describes one API call.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

// postJSON marshals v and posts it to path. A positive limit caps the encoded body size.
func (c *Client) postJSON(ctx context.Context, path string, v any, limit int) (*response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s: %w", path, err)
	}
	if limit > 0 && len(body) > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrRequestTooLarge, path, len(body), limit)
	}
	return c.do(ctx, request{method: http.MethodPost, path: path, body: body, contentType: "application/json"})
}

func (c *Client) get(ctx context.Context, path string) (*response, error) {
	return c.do(ctx, request{method: http.MethodGet, path: path})
}

// do sends the request. GETs are retried on transport errors, 5xx and 429
// with a fixed delay; other methods are sent once.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		resp, err := c.send(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
		c.logger.Debug("retrying request",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", req.method, req.path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.path, err)
	}
	contentType := httpResp.Header.Get("Content-Type")

	c.logger.Debug("api request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newAPIError(req.method, req.path, httpResp.StatusCode, contentType, data)
	}
	return &response{status: httpResp.StatusCode, contentType: contentType, body: data}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		return t, nil
	}
	if c.tokens == nil {
		return "", nil
	}
	t, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return t, nil
}

// validatable is implemented by decoded types carrying struct validation.
type validatable interface {
	Validate() error
}

// decode validates body against the named schema, unmarshals it into v and
// runs v's struct validation when it has one.
func (c *Client) decode(path, schema string, resp *response, v any) error {
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return &DecodeError{Path: path, Schema: schema, Cause: errors.New("empty response body")}
	}
	if !json.Valid(resp.body) {
		return &DecodeError{Path: path, Schema: schema, Cause: fmt.Errorf("expected JSON, got %q", snippet(resp))}
	}
	if err := c.validator.Validate(schema, resp.body); err != nil {
		return &DecodeError{Path: path, Schema: schema, Cause: err}
	}
	if err := json.Unmarshal(resp.body, v); err != nil {
		return &DecodeError{Path: path, Schema: schema, Cause: err}
	}
	if val, ok := v.(validatable); ok {
		if err := val.Validate(); err != nil {
			return &DecodeError{Path: path, Schema: schema, Cause: err}
		}
	}
	return nil
}

func snippet(resp *response) string {
	const limit = 80
	s := strings.TrimSpace(string(resp.body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
