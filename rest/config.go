package rest

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls the transport retry loop.
type RetryConfig struct {
	// Times is the number of retries after the initial attempt.
	Times int
	// Sleep is the constant interval between attempts.
	Sleep time.Duration
}

// CacheConfig controls the read-through GET cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	// Prefix namespaces this client's keys inside a shared Store.
	Prefix string
}

// Config holds client configuration. Use DefaultConfig then chain the WithX
// builders; Validate fills the remaining defaults and is called by
// NewClient.
type Config struct {
	// BaseURL is the API root, e.g. "https://auth.example.com". Required.
	BaseURL string

	// Timeout bounds each individual HTTP exchange.
	Timeout time.Duration

	Retry RetryConfig
	Cache CacheConfig

	// Headers are sent with every request.
	Headers map[string]string

	// UserAgent identifies the client. Defaults to the library identity.
	UserAgent string

	// Debug enables request/response logging on the default logger.
	Debug bool

	// Logger receives transport and service logs. Defaults to a discard
	// logger unless Debug is set.
	Logger logrus.FieldLogger

	// Store backs the response cache. Defaults to an in-process
	// MemoryStore; pass a RedisStore to share the cache across processes.
	Store Store
}

// DefaultConfig returns a Config with production defaults. BaseURL must
// still be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Retry: RetryConfig{
			Times: 3,
			Sleep: 100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     300 * time.Second,
			Prefix:  "api",
		},
		Headers:   make(map[string]string),
		UserAgent: "galdoway-apisdk/1.0",
	}
}

// WithBaseURL sets the API root.
func (c *Config) WithBaseURL(baseURL string) *Config {
	c.BaseURL = baseURL
	return c
}

// WithTimeout sets the per-exchange timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetry sets the retry count and the interval between attempts.
func (c *Config) WithRetry(times int, sleep time.Duration) *Config {
	c.Retry = RetryConfig{Times: times, Sleep: sleep}
	return c
}

// WithCache sets cache TTL and enables the cache layer.
func (c *Config) WithCache(ttl time.Duration) *Config {
	c.Cache.Enabled = true
	c.Cache.TTL = ttl
	return c
}

// WithCachePrefix sets the key namespace used inside the Store.
func (c *Config) WithCachePrefix(prefix string) *Config {
	c.Cache.Prefix = prefix
	return c
}

// WithoutCache disables the cache layer.
func (c *Config) WithoutCache() *Config {
	c.Cache.Enabled = false
	return c
}

// WithHeader adds a header sent with every request.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithUserAgent overrides the client identity header.
func (c *Config) WithUserAgent(ua string) *Config {
	c.UserAgent = ua
	return c
}

// WithDebug enables request/response logging.
func (c *Config) WithDebug(debug bool) *Config {
	c.Debug = debug
	return c
}

// WithLogger sets the logger used by the transport and services.
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithStore sets the cache backing.
func (c *Config) WithStore(store Store) *Config {
	c.Store = store
	return c
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q is not an absolute URL", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retry.Times < 0 {
		return fmt.Errorf("%w: retry count cannot be negative", ErrInvalidConfig)
	}
	if c.Retry.Sleep <= 0 {
		c.Retry.Sleep = 100 * time.Millisecond
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 300 * time.Second
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "api"
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	if c.UserAgent == "" {
		c.UserAgent = "galdoway-apisdk/1.0"
	}
	if c.Logger == nil {
		logger := logrus.New()
		if c.Debug {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetOutput(io.Discard)
		}
		c.Logger = logger
	}
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	return nil
}
