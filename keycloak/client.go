package keycloak

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/galdoway/apisdk/rest"
)

// Client is the Keycloak admin SDK facade: a transport scoped to one
// realm plus eagerly constructed resource and service layers. Credentials
// are supplied at runtime through WithToken; the SDK never embeds any.
//
// Reconfiguration (WithToken, WithRealm, WithoutCache) returns a rebuilt
// clone with fresh resource and service layers, so a derived client never
// shares mutable state with its origin.
type Client struct {
	http    *rest.Client
	realm   string
	roles   *Roles
	service *RoleService
	logger  logrus.FieldLogger
	stats   *facadeStats
}

// DefaultConfig returns the transport defaults tuned for a Keycloak admin
// API: the caller still sets the base URL.
func DefaultConfig() *rest.Config {
	return rest.DefaultConfig().
		WithCachePrefix("keycloak").
		WithUserAgent("galdoway-keycloak-admin/1.0")
}

// New builds a client for one realm. All collaborators are constructed
// here, eagerly; nothing is lazily re-resolved later.
func New(cfg *rest.Config, realm string) (*Client, error) {
	transport, err := rest.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return build(transport, realm), nil
}

func build(transport *rest.Client, realm string) *Client {
	roles := NewRoles(transport, realm)
	logger := transport.Config().Logger
	return &Client{
		http:    transport,
		realm:   realm,
		roles:   roles,
		service: NewRoleService(roles, transport, logger),
		logger:  logger,
		stats:   &facadeStats{},
	}
}

// Roles exposes the endpoint-level resource client.
func (c *Client) Roles() *Roles { return c.roles }

// Service exposes the rule-bearing role service.
func (c *Client) Service() *RoleService { return c.service }

// Realm returns the realm this client administers.
func (c *Client) Realm() string { return c.realm }

// Token returns the current bearer token, empty when unauthenticated.
func (c *Client) Token() string { return c.http.Token() }

// WithToken returns a clone authenticating with token.
func (c *Client) WithToken(token string) *Client {
	return build(c.http.WithToken(token), c.realm)
}

// WithoutToken returns an unauthenticated clone.
func (c *Client) WithoutToken() *Client {
	return build(c.http.WithoutToken(), c.realm)
}

// WithRealm returns a clone administering a different realm.
func (c *Client) WithRealm(realm string) *Client {
	return build(c.http, realm)
}

// WithoutCache returns a clone that bypasses the response cache.
func (c *Client) WithoutCache() *Client {
	return build(c.http.WithoutCache(), c.realm)
}

// TestConnection probes the admin API. It reports reachability and never
// propagates the failure; use ServerInfo when the error matters.
func (c *Client) TestConnection(ctx context.Context) bool {
	c.stats.bump(&c.stats.connectionTests)
	_, err := c.http.Get(ctx, "/admin/serverinfo", nil)
	if err != nil {
		c.logger.WithError(err).Debug("keycloak connection test failed")
		return false
	}
	return true
}

// ServerInfo returns the raw server info document.
func (c *Client) ServerInfo(ctx context.Context) (map[string]interface{}, error) {
	c.stats.bump(&c.stats.serverInfoRequests)
	resp, err := c.http.Get(ctx, "/admin/serverinfo", nil)
	if err != nil {
		return nil, err
	}
	return resp.Map(), nil
}

// Realms lists the realms the credentials can administer.
func (c *Client) Realms(ctx context.Context) ([]map[string]interface{}, error) {
	c.stats.bump(&c.stats.realmRequests)
	resp, err := c.http.Get(ctx, "/admin/realms", nil)
	if err != nil {
		return nil, err
	}
	return resp.Items(), nil
}

// Health is the result of a HealthCheck probe.
type Health struct {
	// Overall is "healthy" when every service check passed, else
	// "degraded".
	Overall   string
	Services  map[string]string
	Timestamp time.Time
}

// Healthy reports whether every probe passed.
func (h Health) Healthy() bool { return h.Overall == "healthy" }

// HealthCheck probes connectivity and role listing, reporting a status per
// service. Probe failures are embedded in the report, not returned.
func (c *Client) HealthCheck(ctx context.Context) Health {
	c.stats.bump(&c.stats.healthChecks)
	services := make(map[string]string, 2)

	if c.TestConnection(ctx) {
		services["connection"] = "ok"
	} else {
		services["connection"] = "unreachable"
	}

	if _, err := c.roles.ListRealm(ctx, true); err != nil {
		services["roles"] = "error: " + err.Error()
	} else {
		services["roles"] = "ok"
	}

	overall := "healthy"
	for _, status := range services {
		if status != "ok" {
			overall = "degraded"
			break
		}
	}
	return Health{Overall: overall, Services: services, Timestamp: time.Now()}
}

// ClearCache drops this realm's cached admin responses. Scoped to the
// realm prefix; other realms and other clients sharing the store keep
// their entries.
func (c *Client) ClearCache(ctx context.Context) error {
	c.stats.bump(&c.stats.cacheClears)
	return c.http.InvalidatePrefix(ctx, c.http.KeyPrefix(http.MethodGet, "/admin/realms/"+c.realm))
}

// Info describes the client's effective configuration without exposing
// credentials.
type Info struct {
	BaseURL      string
	Realm        string
	Timeout      time.Duration
	RetryTimes   int
	CacheEnabled bool
	HasToken     bool
	Debug        bool
}

// Config returns the redacted configuration summary.
func (c *Client) Config() Info {
	cfg := c.http.Config()
	return Info{
		BaseURL:      c.http.BaseURL(),
		Realm:        c.realm,
		Timeout:      cfg.Timeout,
		RetryTimes:   cfg.Retry.Times,
		CacheEnabled: c.http.CacheEnabled(),
		HasToken:     c.http.Token() != "",
		Debug:        cfg.Debug,
	}
}

// ClientStats combines transport counters with facade-level activity.
type ClientStats struct {
	Transport          rest.Stats
	ConnectionTests    int64
	HealthChecks       int64
	ServerInfoRequests int64
	RealmRequests      int64
	CacheClears        int64
}

// Stats returns a snapshot of all counters.
func (c *Client) Stats() ClientStats {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	return ClientStats{
		Transport:          c.http.Stats(),
		ConnectionTests:    c.stats.connectionTests,
		HealthChecks:       c.stats.healthChecks,
		ServerInfoRequests: c.stats.serverInfoRequests,
		RealmRequests:      c.stats.realmRequests,
		CacheClears:        c.stats.cacheClears,
	}
}

type facadeStats struct {
	mu                 sync.Mutex
	connectionTests    int64
	healthChecks       int64
	serverInfoRequests int64
	realmRequests      int64
	cacheClears        int64
}

func (s *facadeStats) bump(counter *int64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// Convenience pass-throughs for the common realm-scoped operations. Each
// maps to exactly one service call; there is no string-keyed dispatch.

// FindRole fetches one realm role by name.
func (c *Client) FindRole(ctx context.Context, name string) (Role, error) {
	return c.service.Get(ctx, RealmScope(), name)
}

// AllRoles lists the realm's roles.
func (c *Client) AllRoles(ctx context.Context) ([]Role, error) {
	return c.service.List(ctx, RealmScope())
}

// SearchRoles runs a ranked realm-role search.
func (c *Client) SearchRoles(ctx context.Context, query string) ([]Role, error) {
	return c.service.Search(ctx, RealmScope(), query, SearchFilters{})
}

// CreateRole creates a realm role.
func (c *Client) CreateRole(ctx context.Context, name, description string) (Role, error) {
	return c.service.Create(ctx, CreateRoleRequest{
		Name:        name,
		Description: description,
		Scope:       RealmScope(),
	})
}

// DeleteRole deletes a realm role, honoring the protected-name rules.
func (c *Client) DeleteRole(ctx context.Context, name string) error {
	return c.service.Delete(ctx, RealmScope(), name, false)
}
