// Package provider is the HTTP client for the signing/stamping provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"esign-orchestrator/core/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 45 * time.Second
	maxErrorBody   = 2048
)

// Client talks to one provider environment. A run binds a client to the
// environment its production gate approved.
type Client struct {
	env           models.EnvironmentConfig
	httpClient    *http.Client
	limiter       *rate.Limiter
	operatorEmail string
	logger        *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter paces every outgoing request through l. One limiter is
// normally shared by all clients of a process.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithOperatorEmail sets the identity sent in the X-User-Email header
func WithOperatorEmail(email string) Option {
	return func(c *Client) { c.operatorEmail = email }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for env
func New(env models.EnvironmentConfig, opts ...Option) *Client {
	c := &Client{
		env:        env,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.env.BaseURL = strings.TrimRight(c.env.BaseURL, "/")
	return c
}

// Environment returns the environment the client is bound to
func (c *Client) Environment() models.EnvironmentConfig {
	return c.env
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.env.BaseURL + path
}

// response is a fully read HTTP response
type response struct {
	StatusCode int
	Body       []byte
}

func (r response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// do sends a request and reads the whole body. The error is non-nil only
// when no HTTP response was obtained; HTTP status handling is left to callers.
func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) (response, error) {
	reqID := uuid.NewString()
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, err
		}
	}

	var reader io.Reader
	var contentLength int
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
		contentLength = len(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("provider.http.request",
		zap.String("req_id", reqID),
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.Int("content_length", contentLength),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("provider.http.send_error",
			zap.String("req_id", reqID),
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debug("provider.http.response",
		zap.String("req_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// errorDetail pulls a readable message out of an error body.
func errorDetail(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if s, ok := body.Error.(string); ok && s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
