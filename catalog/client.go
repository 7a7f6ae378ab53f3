// Package catalog is a typed SDK for an offset-paginated product catalog
// API (dummyjson.com compatible). It shares the rest transport with the
// other SDKs in this module and demonstrates the native server-side search
// variant: Products.Search issues one request instead of fetching and
// filtering.
package catalog

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/galdoway/apisdk/rest"
)

// Client is the catalog SDK facade.
type Client struct {
	http     *rest.Client
	products *Products
	logger   logrus.FieldLogger
}

// DefaultConfig returns transport defaults pointed at the public demo API.
func DefaultConfig() *rest.Config {
	return rest.DefaultConfig().
		WithBaseURL("https://dummyjson.com").
		WithCachePrefix("dummyjson").
		WithUserAgent("galdoway-catalog/1.0")
}

// New builds a client; pass nil to use DefaultConfig.
func New(cfg *rest.Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	transport, err := rest.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return buildCatalog(transport), nil
}

func buildCatalog(transport *rest.Client) *Client {
	return &Client{
		http:     transport,
		products: NewProducts(transport),
		logger:   transport.Config().Logger,
	}
}

// Products exposes the product resource client.
func (c *Client) Products() *Products { return c.products }

// WithAuth returns a clone sending the bearer token.
func (c *Client) WithAuth(token string) *Client {
	return buildCatalog(c.http.WithToken(token))
}

// WithoutAuth returns an unauthenticated clone.
func (c *Client) WithoutAuth() *Client {
	return buildCatalog(c.http.WithoutToken())
}

// WithoutCache returns a clone bypassing the response cache.
func (c *Client) WithoutCache() *Client {
	return buildCatalog(c.http.WithoutCache())
}

// TestConnection probes the API's test endpoint, never propagating the
// failure.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.http.Get(ctx, "/test", nil)
	if err != nil {
		c.logger.WithError(err).Debug("catalog connection test failed")
		return false
	}
	return true
}

// Status summarizes reachability for monitoring.
type Status struct {
	Online        bool
	ResponseTime  time.Duration
	Authenticated bool
	BaseURL       string
	Timestamp     time.Time
}

// Status probes the API and reports reachability plus timing.
func (c *Client) Status(ctx context.Context) Status {
	start := time.Now()
	online := c.TestConnection(ctx)
	return Status{
		Online:        online,
		ResponseTime:  time.Since(start),
		Authenticated: c.http.Token() != "",
		BaseURL:       c.http.BaseURL(),
		Timestamp:     time.Now(),
	}
}

// ClearCache drops this client's cached catalog responses, scoped to the
// products prefix.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.http.InvalidatePrefix(ctx, c.http.KeyPrefix(http.MethodGet, "/products"))
}

// Stats returns the transport counters.
func (c *Client) Stats() rest.Stats { return c.http.Stats() }

// FindProduct fetches one product by id.
func (c *Client) FindProduct(ctx context.Context, id int) (Product, error) {
	return c.products.Find(ctx, id)
}

// SearchProducts runs the native server-side search.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	return c.products.Search(ctx, query, 0, 0)
}

// AllProducts lists the first page of products.
func (c *Client) AllProducts(ctx context.Context) ([]Product, error) {
	return c.products.All(ctx, 0)
}

// ProductCategories lists category slugs.
func (c *Client) ProductCategories(ctx context.Context) ([]string, error) {
	return c.products.Categories(ctx)
}
