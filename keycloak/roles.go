package keycloak

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/galdoway/apisdk/rest"
)

// Roles is the low-level role resource client. It mirrors the admin API
// endpoints one-to-one: no business rules, no validation beyond what the
// server enforces. Use RoleService for the rule-bearing layer.
type Roles struct {
	client *rest.Client
	realm  string
}

// NewRoles returns a resource client scoped to one realm.
func NewRoles(client *rest.Client, realm string) *Roles {
	return &Roles{client: client, realm: realm}
}

// Realm returns the realm this resource operates on.
func (r *Roles) Realm() string { return r.realm }

func (r *Roles) path(format string, args ...interface{}) string {
	escaped := make([]interface{}, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return "/admin/realms/" + url.PathEscape(r.realm) + fmt.Sprintf(format, escaped...)
}

func briefQuery(brief bool) url.Values {
	return url.Values{"briefRepresentation": {strconv.FormatBool(brief)}}
}

// ListRealm returns all realm-level roles. Brief representations omit
// attributes.
func (r *Roles) ListRealm(ctx context.Context, brief bool) ([]Role, error) {
	resp, err := r.client.Get(ctx, r.path("/roles"), briefQuery(brief))
	if err != nil {
		return nil, err
	}
	var roles []Role
	if err := resp.DecodeItems(&roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListClient returns all roles of a client, addressed by its internal id.
func (r *Roles) ListClient(ctx context.Context, clientID string, brief bool) ([]Role, error) {
	resp, err := r.client.Get(ctx, r.path("/clients/%s/roles", clientID), briefQuery(brief))
	if err != nil {
		return nil, err
	}
	var roles []Role
	if err := resp.DecodeItems(&roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// FindRealm fetches one realm role by name.
func (r *Roles) FindRealm(ctx context.Context, name string) (Role, error) {
	return r.find(ctx, r.path("/roles/%s", name), name)
}

// FindClient fetches one client role by name.
func (r *Roles) FindClient(ctx context.Context, clientID, name string) (Role, error) {
	return r.find(ctx, r.path("/clients/%s/roles/%s", clientID, name), name)
}

// FindByID fetches a role by its id, regardless of scope.
func (r *Roles) FindByID(ctx context.Context, id string) (Role, error) {
	return r.find(ctx, r.path("/roles-by-id/%s", id), id)
}

func (r *Roles) find(ctx context.Context, endpoint, ref string) (Role, error) {
	resp, err := r.client.Get(ctx, endpoint, nil)
	if err != nil {
		if rest.IsNotFound(err) {
			return Role{}, fmt.Errorf("role %q: %w", ref, err)
		}
		return Role{}, err
	}
	var role Role
	if err := resp.DecodeItem(&role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// CreateRealm creates a realm role. The admin API returns no body on
// create; the boolean reports the 201/204 acknowledgement, and callers
// needing the stored entity re-fetch by name.
func (r *Roles) CreateRealm(ctx context.Context, role Role) (bool, error) {
	return r.ack(r.client.Post(ctx, r.path("/roles"), role))
}

// CreateClient creates a role under a client.
func (r *Roles) CreateClient(ctx context.Context, clientID string, role Role) (bool, error) {
	return r.ack(r.client.Post(ctx, r.path("/clients/%s/roles", clientID), role))
}

// UpdateRealm replaces a realm role by name. Full replace: omitted fields
// are cleared server-side.
func (r *Roles) UpdateRealm(ctx context.Context, name string, role Role) (bool, error) {
	return r.ack(r.client.Put(ctx, r.path("/roles/%s", name), role))
}

// UpdateClient replaces a client role by name.
func (r *Roles) UpdateClient(ctx context.Context, clientID, name string, role Role) (bool, error) {
	return r.ack(r.client.Put(ctx, r.path("/clients/%s/roles/%s", clientID, name), role))
}

// UpdateByID replaces a role by id.
func (r *Roles) UpdateByID(ctx context.Context, id string, role Role) (bool, error) {
	return r.ack(r.client.Put(ctx, r.path("/roles-by-id/%s", id), role))
}

// DeleteRealm deletes a realm role by name.
func (r *Roles) DeleteRealm(ctx context.Context, name string) (bool, error) {
	return r.ack(r.client.Delete(ctx, r.path("/roles/%s", name), nil))
}

// DeleteClient deletes a client role by name.
func (r *Roles) DeleteClient(ctx context.Context, clientID, name string) (bool, error) {
	return r.ack(r.client.Delete(ctx, r.path("/clients/%s/roles/%s", clientID, name), nil))
}

// DeleteByID deletes a role by id.
func (r *Roles) DeleteByID(ctx context.Context, id string) (bool, error) {
	return r.ack(r.client.Delete(ctx, r.path("/roles-by-id/%s", id), nil))
}

func (r *Roles) ack(resp *rest.Response, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return resp.IsCreated() || resp.IsNoContent(), nil
}

// RealmComposites lists the children of a composite realm role.
func (r *Roles) RealmComposites(ctx context.Context, name string, brief bool) ([]Role, error) {
	return r.composites(ctx, r.path("/roles/%s/composites", name), brief)
}

// ClientComposites lists the children of a composite client role.
func (r *Roles) ClientComposites(ctx context.Context, clientID, name string, brief bool) ([]Role, error) {
	return r.composites(ctx, r.path("/clients/%s/roles/%s/composites", clientID, name), brief)
}

func (r *Roles) composites(ctx context.Context, endpoint string, brief bool) ([]Role, error) {
	resp, err := r.client.Get(ctx, endpoint, briefQuery(brief))
	if err != nil {
		return nil, err
	}
	var roles []Role
	if err := resp.DecodeItems(&roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// AddRealmComposites attaches child roles to a composite realm role.
func (r *Roles) AddRealmComposites(ctx context.Context, name string, children []Role) (bool, error) {
	return r.ack(r.client.Post(ctx, r.path("/roles/%s/composites", name), toRefs(children)))
}

// AddClientComposites attaches child roles to a composite client role.
func (r *Roles) AddClientComposites(ctx context.Context, clientID, name string, children []Role) (bool, error) {
	return r.ack(r.client.Post(ctx, r.path("/clients/%s/roles/%s/composites", clientID, name), toRefs(children)))
}

// RemoveRealmComposites detaches child roles. The admin API expects the
// role list as a DELETE body.
func (r *Roles) RemoveRealmComposites(ctx context.Context, name string, children []Role) (bool, error) {
	return r.ack(r.client.Delete(ctx, r.path("/roles/%s/composites", name), toRefs(children)))
}

// RemoveClientComposites detaches child roles from a client role.
func (r *Roles) RemoveClientComposites(ctx context.Context, clientID, name string, children []Role) (bool, error) {
	return r.ack(r.client.Delete(ctx, r.path("/clients/%s/roles/%s/composites", clientID, name), toRefs(children)))
}

// Exists probes for a role by name. NotFound maps to false; any other
// failure propagates so callers never mistake an outage for absence.
func (r *Roles) Exists(ctx context.Context, typ RoleType, clientID, name string) (bool, error) {
	var err error
	if typ.IsClient() {
		_, err = r.FindClient(ctx, clientID, name)
	} else {
		_, err = r.FindRealm(ctx, name)
	}
	if err != nil {
		if rest.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Search lists roles whose name contains term, case-insensitively. The
// admin API has no server-side role search, so this fetches and filters;
// the transport cache keeps repeated searches cheap.
func (r *Roles) Search(ctx context.Context, typ RoleType, clientID, term string) ([]Role, error) {
	roles, err := r.listByType(ctx, typ, clientID)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var out []Role
	for _, role := range roles {
		if strings.Contains(strings.ToLower(role.Name), term) {
			out = append(out, role)
		}
	}
	return out, nil
}

// ByType lists roles of one scope, optionally restricted to composite or
// simple roles only.
func (r *Roles) ByType(ctx context.Context, typ RoleType, clientID string, compositesOnly, simpleOnly bool) ([]Role, error) {
	roles, err := r.listByType(ctx, typ, clientID)
	if err != nil {
		return nil, err
	}
	if !compositesOnly && !simpleOnly {
		return roles, nil
	}
	var out []Role
	for _, role := range roles {
		if compositesOnly && !role.Composite {
			continue
		}
		if simpleOnly && role.Composite {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func (r *Roles) listByType(ctx context.Context, typ RoleType, clientID string) ([]Role, error) {
	if typ.IsClient() {
		if clientID == "" {
			return nil, fmt.Errorf("%w: client role operations require a client id", rest.ErrInvalidConfig)
		}
		return r.ListClient(ctx, clientID, false)
	}
	return r.ListRealm(ctx, false)
}
