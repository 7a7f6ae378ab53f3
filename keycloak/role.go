package keycloak

import (
	"regexp"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RoleType distinguishes realm-level roles from client-scoped ones.
type RoleType string

const (
	RoleTypeRealm  RoleType = "realm"
	RoleTypeClient RoleType = "client"
)

// Valid reports whether the type is one of the known values.
func (t RoleType) Valid() bool { return t == RoleTypeRealm || t == RoleTypeClient }

// IsClient reports whether the type is client-scoped.
func (t RoleType) IsClient() bool { return t == RoleTypeClient }

var roleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-:.]+$`)

// Role is a Keycloak role representation. Treat values as immutable:
// derive modified copies with Apply instead of mutating fields, so a role
// handed to other goroutines or cached in a response can never change
// underneath them.
type Role struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Composite   bool                `json:"composite"`
	ClientRole  bool                `json:"clientRole"`
	ContainerID string              `json:"containerId,omitempty"`
	Attributes  map[string][]string `json:"attributes,omitempty"`

	// Millisecond epoch timestamps, zero when the server omits them.
	CreatedTimestamp int64 `json:"createdTimestamp,omitempty"`
	UpdatedTimestamp int64 `json:"updatedTimestamp,omitempty"`
}

// Type returns the role scope derived from the clientRole flag.
func (r Role) Type() RoleType {
	if r.ClientRole {
		return RoleTypeClient
	}
	return RoleTypeRealm
}

// CreatedAt returns the creation time, zero when unknown.
func (r Role) CreatedAt() time.Time {
	if r.CreatedTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.CreatedTimestamp)
}

// UpdatedAt returns the last update time, zero when unknown.
func (r Role) UpdatedAt() time.Time {
	if r.UpdatedTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.UpdatedTimestamp)
}

// Attribute returns the first value of the named attribute.
func (r Role) Attribute(key string) (string, bool) {
	values, ok := r.Attributes[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// AttributeKeys returns the attribute names in sorted order.
func (r Role) AttributeKeys() []string {
	if len(r.Attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DisplayName returns the description when present, else the name.
func (r Role) DisplayName() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Name
}

// SameScope reports whether two roles live in the same scope (both realm
// roles, or client roles of the same container).
func (r Role) SameScope(other Role) bool {
	if r.ClientRole != other.ClientRole {
		return false
	}
	return !r.ClientRole || r.ContainerID == other.ContainerID
}

// Validate checks the invariants a role must satisfy before it is sent to
// the admin API.
func (r Role) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required,
			validation.Length(1, 255),
			validation.Match(roleNamePattern).
				Error("must contain only letters, digits, '_', '-', ':' or '.'"),
		),
		validation.Field(&r.Description,
			validation.Length(0, 500),
		),
		validation.Field(&r.ContainerID,
			validation.Required.When(r.ClientRole).
				Error("client roles require a container id"),
		),
	)
}

// RoleUpdate describes a partial change to a role. Nil fields are left
// unchanged by Apply.
type RoleUpdate struct {
	Name        *string
	Description *string
	Composite   *bool
	// Attributes replaces the whole attribute map when non-nil.
	Attributes map[string][]string
}

// Apply returns a copy of the role with the update applied. The receiver
// is never modified; server-managed fields (id, container, timestamps)
// carry over untouched.
func (r Role) Apply(u RoleUpdate) Role {
	out := r
	out.Attributes = copyAttributes(r.Attributes)
	if u.Name != nil {
		out.Name = *u.Name
	}
	if u.Description != nil {
		out.Description = *u.Description
	}
	if u.Composite != nil {
		out.Composite = *u.Composite
	}
	if u.Attributes != nil {
		out.Attributes = copyAttributes(u.Attributes)
	}
	return out
}

func copyAttributes(attrs map[string][]string) map[string][]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// ref is the minimal representation composite endpoints accept.
type roleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toRefs(roles []Role) []roleRef {
	refs := make([]roleRef, len(roles))
	for i, r := range roles {
		refs[i] = roleRef{ID: r.ID, Name: r.Name}
	}
	return refs
}
