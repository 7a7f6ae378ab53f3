package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is the resilient HTTP transport shared by the typed SDKs. It
// injects auth and standard headers, retries transient failures, maps
// non-2xx responses into the error taxonomy and serves GETs through a
// read-through cache.
//
// Reconfiguration methods (WithToken, WithHeaders, WithoutCache) return an
// independent clone; the receiver is never mutated after construction, so a
// client is safe to share across goroutines.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	token      string
	headers    map[string]string
	useCache   bool
	logger     logrus.FieldLogger
	store      Store
	stats      *stats
}

// NewClient validates cfg, fills its defaults and returns a ready client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    make(map[string]string),
		useCache:   cfg.Cache.Enabled,
		logger:     cfg.Logger,
		store:      cfg.Store,
		stats:      &stats{},
	}, nil
}

// Get performs a GET, serving it from the cache when a fresh entry exists.
// Only successful responses are cached; cache replays report FromCache.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	endpoint = normalizeEndpoint(endpoint)
	key := ""
	if c.useCache {
		key = cacheKey(c.config.Cache.Prefix, http.MethodGet, endpoint, query, c.token)
		if value, ok, err := c.store.Get(ctx, key); err == nil && ok {
			c.stats.cacheHit()
			c.logger.WithFields(logrus.Fields{
				"endpoint": endpoint,
				"key":      key,
			}).Debug("cache hit")
			return NewResponse(value, http.StatusOK, true), nil
		} else if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		c.stats.cacheMiss()
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	if c.useCache && resp.Successful() {
		if err := c.store.Set(ctx, key, resp.Data(), c.config.Cache.TTL); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}
	return resp, nil
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, normalizeEndpoint(endpoint), nil, body)
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, normalizeEndpoint(endpoint), nil, body)
}

// Patch performs a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPatch, normalizeEndpoint(endpoint), nil, body)
}

// Delete performs a DELETE. A non-nil body is sent as JSON; some admin
// APIs expect entity lists on delete.
func (c *Client) Delete(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodDelete, normalizeEndpoint(endpoint), nil, body)
}

// do runs the retry loop around single HTTP attempts. Transport failures,
// rate limits and 5xx responses are retried on a constant interval; other
// failures abort immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body interface{}) (*Response, error) {
	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"params":   truncate(query.Encode(), 200),
	}).Debug("api request")

	var out *Response
	operation := func() error {
		resp, err := c.attempt(ctx, method, fullURL, endpoint, payload)
		if err != nil {
			// Network failures are retried here even though they are
			// not surfaced as retryable to callers.
			if apiErr, ok := AsAPIError(err); ok && (apiErr.Kind == KindTransport || apiErr.Retryable()) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.config.Retry.Sleep), uint64(c.config.Retry.Times)),
		ctx,
	)
	notify := func(err error, _ time.Duration) {
		c.stats.retry()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":   method,
			"endpoint": endpoint,
		}).Debug("retrying request")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// attempt performs one HTTP exchange.
func (c *Client) attempt(ctx context.Context, method, fullURL, endpoint string, payload []byte) (*Response, error) {
	c.stats.request()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.stats.failure()
		return nil, newTransportError(method, endpoint, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.stats.failure()
		return nil, newTransportError(method, endpoint, err)
	}

	var data interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
				c.stats.failure()
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			// Non-JSON error body; classification proceeds on status alone.
			data = nil
		}
	}

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      httpResp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("api response")

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return NewResponse(data, httpResp.StatusCode, false), nil
	}

	c.stats.failure()
	bodyMap, _ := data.(map[string]interface{})
	return nil, newAPIError(method, endpoint, httpResp.StatusCode, bodyMap, httpResp.Header)
}

// WithToken returns a clone that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := c.clone()
	clone.token = token
	return clone
}

// WithoutToken returns a clone that sends no Authorization header.
func (c *Client) WithoutToken() *Client {
	clone := c.clone()
	clone.token = ""
	return clone
}

// WithHeaders returns a clone carrying the extra headers on every request.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	clone := c.clone()
	for k, v := range headers {
		clone.headers[k] = v
	}
	return clone
}

// WithoutCache returns a clone that bypasses the cache layer entirely.
func (c *Client) WithoutCache() *Client {
	clone := c.clone()
	clone.useCache = false
	return clone
}

func (c *Client) clone() *Client {
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return &Client{
		config:     c.config,
		httpClient: c.httpClient,
		baseURL:    c.baseURL,
		token:      c.token,
		headers:    headers,
		useCache:   c.useCache,
		logger:     c.logger,
		store:      c.store,
		stats:      c.stats,
	}
}

// Token returns the current bearer token, empty when unauthenticated.
func (c *Client) Token() string { return c.token }

// CacheEnabled reports whether GETs go through the cache layer.
func (c *Client) CacheEnabled() bool { return c.useCache }

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Config returns the validated configuration backing this client.
func (c *Client) Config() *Config { return c.config }

// KeyPrefix returns the cache-key prefix covering every cached variant of
// an endpoint, for use with InvalidatePrefix.
func (c *Client) KeyPrefix(method, endpoint string) string {
	return fmt.Sprintf("%s:%s:%s", c.config.Cache.Prefix, method, normalizeEndpoint(endpoint))
}

// InvalidatePrefix removes every cache entry under prefix. This is the
// default invalidation path; it never touches entries owned by other
// clients sharing the Store.
func (c *Client) InvalidatePrefix(ctx context.Context, prefix string) error {
	return c.store.DeletePrefix(ctx, prefix)
}

// FlushCache clears the whole Store. On a shared store this wipes entries
// belonging to every client; prefer InvalidatePrefix.
func (c *Client) FlushCache(ctx context.Context) error {
	return c.store.Flush(ctx)
}

// Stats is a point-in-time snapshot of transport counters. Clones share
// counters with the client they derive from.
type Stats struct {
	Requests    int64
	Errors      int64
	Retries     int64
	CacheHits   int64
	CacheMisses int64
}

// Stats returns the counter snapshot.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

type stats struct {
	mu          sync.Mutex
	requests    int64
	errors      int64
	retries     int64
	cacheHits   int64
	cacheMisses int64
}

func (s *stats) request()   { s.mu.Lock(); s.requests++; s.mu.Unlock() }
func (s *stats) failure()   { s.mu.Lock(); s.errors++; s.mu.Unlock() }
func (s *stats) retry()     { s.mu.Lock(); s.retries++; s.mu.Unlock() }
func (s *stats) cacheHit()  { s.mu.Lock(); s.cacheHits++; s.mu.Unlock() }
func (s *stats) cacheMiss() { s.mu.Lock(); s.cacheMisses++; s.mu.Unlock() }

func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Requests:    s.requests,
		Errors:      s.errors,
		Retries:     s.retries,
		CacheHits:   s.cacheHits,
		CacheMisses: s.cacheMisses,
	}
}

func normalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return "/"
	}
	if !strings.HasPrefix(endpoint, "/") {
		return "/" + endpoint
	}
	return endpoint
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
