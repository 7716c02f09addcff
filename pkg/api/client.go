// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the outbound transport used by tools to reach external
// services. Services are resolved by name through a configurable endpoint map.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/resilience"
)

// Well-known service names.
const (
	ServiceSearch          = "search"
	ServiceKnowledge       = "knowledge"
	ServiceImageGeneration = "image_generation"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 4 << 20

// DefaultEndpoints returns the endpoints registered for the well-known services.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		ServiceSearch:          "https://api.example.com/search",
		ServiceKnowledge:       "https://api.example.com/knowledge",
		ServiceImageGeneration: "https://api.example.com/images",
	}
}

// Request describes a call to a service.
type Request struct {
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    any               `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Response is the outcome of a call. Failures are reported in Error, never
// returned as Go errors.
type Response struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Config configures the client.
type Config struct {
	// Endpoints overrides or extends DefaultEndpoints.
	Endpoints map[string]string
	// APIKeys are sent as bearer tokens, keyed by service.
	APIKeys map[string]string
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// RateLimit is the per-service request rate in requests per second. Zero disables limiting.
	RateLimit float64
	// Burst is the per-service burst size.
	Burst int
	// Retry controls retries of transient failures.
	Retry resilience.RetryConfig
	// Breaker configures the per-service circuit breaker.
	Breaker resilience.CircuitBreakerConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client calls named services over HTTP.
type Client struct {
	mu        sync.RWMutex
	endpoints map[string]string
	apiKeys   map[string]string
	limiters  map[string]*rate.Limiter
	breakers  map[string]*resilience.CircuitBreaker

	cfg     Config
	http    *http.Client
	headers map[string]string
}

// New creates a client. The well-known services are always registered unless
// cfg.Endpoints overrides them.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	c := &Client{
		endpoints: DefaultEndpoints(),
		apiKeys:   make(map[string]string),
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*resilience.CircuitBreaker),
		cfg:       cfg,
		http:      &http.Client{},
		headers: map[string]string{
			"Content-Type": "application/json",
			"User-Agent":   "Agent/1.0",
		},
	}
	for k, v := range cfg.Endpoints {
		c.endpoints[k] = v
	}
	for k, v := range cfg.APIKeys {
		c.apiKeys[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddAPIKey sets the API key for service.
func (c *Client) AddAPIKey(service, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKeys[service] = key
}

// AddEndpoint registers or replaces the endpoint for service.
func (c *Client) AddEndpoint(service, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[service] = endpoint
}

// Services returns the configured service names in lexical order.
func (c *Client) Services() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Call sends req to service.
func (c *Client) Call(ctx context.Context, service string, req Request) Response {
	endpoint, key, limiter, breaker, ok := c.resolve(service)
	if !ok {
		return failure(errors.Newf(errors.CodeConfiguration, "Service %s not configured", service))
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return failure(errors.New(errors.CodeRateLimit, "rate limit wait", err).WithContext("service", service))
		}
	}

	// Client errors (4xx) and cancellations are returned outside the breaker
	// so that they do not open the circuit.
	var clientErr error
	resp, err := resilience.Execute(ctx, breaker, func(ctx context.Context) (Response, error) {
		r, err := resilience.Retry(ctx, c.cfg.Retry, func(ctx context.Context) (Response, error) {
			return c.do(ctx, endpoint, key, req)
		})
		if err != nil && !recoverable(err) {
			clientErr = err
			return Response{}, nil
		}
		return r, err
	})
	if clientErr != nil {
		err = clientErr
	}
	if err != nil {
		return failure(errors.AsKairosError(err).WithContext("service", service))
	}
	return resp
}

// Search queries the search service. It satisfies tools.SearchBackend.
func (c *Client) Search(ctx context.Context, query string) (any, error) {
	resp := c.Call(ctx, ServiceSearch, Request{
		Method: http.MethodGet,
		Params: map[string]string{"q": query},
	})
	if !resp.Success {
		return nil, errors.New(errors.CodeTransport, resp.Error, nil).WithContext("service", ServiceSearch)
	}
	return resp.Data, nil
}

func (c *Client) resolve(service string) (string, string, *rate.Limiter, *resilience.CircuitBreaker, bool) {
	c.mu.RLock()
	endpoint, ok := c.endpoints[service]
	key := c.apiKeys[service]
	limiter, hasLimiter := c.limiters[service]
	breaker, hasBreaker := c.breakers[service]
	c.mu.RUnlock()
	if !ok {
		return "", "", nil, nil, false
	}
	if (hasLimiter || c.cfg.RateLimit <= 0) && hasBreaker {
		return endpoint, key, limiter, breaker, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.RateLimit > 0 {
		if limiter = c.limiters[service]; limiter == nil {
			burst := c.cfg.Burst
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(c.cfg.RateLimit), burst)
			c.limiters[service] = limiter
		}
	}
	if breaker = c.breakers[service]; breaker == nil {
		bc := c.cfg.Breaker
		bc.Name = service
		breaker = resilience.NewCircuitBreaker(bc)
		c.breakers[service] = breaker
	}
	return endpoint, key, limiter, breaker, true
}

func (c *Client) do(ctx context.Context, endpoint, key string, req Request) (Response, error) {
	target, err := buildURL(endpoint, req.Path, req.Params)
	if err != nil {
		return Response{}, errors.New(errors.CodeInvalidInput, "invalid endpoint", err)
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, errors.New(errors.CodeInvalidInput, "encode request body", err)
		}
		body = bytes.NewReader(data)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(attemptCtx, strings.ToUpper(method), target, body)
	if err != nil {
		return Response{}, errors.New(errors.CodeInvalidInput, "build request", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, errors.New(errors.CodeContextLost, "request cancelled", ctx.Err())
		}
		return Response{}, errors.New(errors.CodeTransport, "request failed", err).WithRecoverable(true)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, errors.New(errors.CodeTransport, "read response", err).WithRecoverable(true)
	}

	if httpResp.StatusCode >= 300 {
		ke := errors.Newf(errors.CodeTransport, "%s returned status %d", endpoint, httpResp.StatusCode).
			WithContext("body", strings.TrimSpace(string(raw))).
			WithRecoverable(httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests)
		ke.StatusCode = httpResp.StatusCode
		return Response{}, ke
	}

	return Response{Success: true, Data: decodeBody(raw), StatusCode: httpResp.StatusCode}, nil
}

func buildURL(endpoint, path string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if path != "" {
		u = u.JoinPath(path)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func recoverable(err error) bool {
	return errors.AsKairosError(err).Recoverable
}

func failure(ke *errors.KairosError) Response {
	msg := ke.Message
	if ke.Err != nil {
		msg = fmt.Sprintf("%s: %v", ke.Message, ke.Err)
	}
	return Response{Success: false, Error: msg, StatusCode: ke.StatusCode}
}
