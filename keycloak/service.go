package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/galdoway/apisdk/rest"
)

// Business-rule failures. Distinct from transport errors so callers can
// branch on policy violations without inspecting messages.
var (
	// ErrReservedName rejects creation of names Keycloak manages itself.
	ErrReservedName = errors.New("role name is reserved")

	// ErrProtectedRole rejects deletion of roles the realm depends on.
	ErrProtectedRole = errors.New("role is protected from deletion")

	// ErrRoleExists rejects creating a role whose name is taken.
	ErrRoleExists = errors.New("role already exists")

	// ErrNotComposite rejects composite operations on simple roles.
	ErrNotComposite = errors.New("role is not composite")
)

// reservedNames may never be created through the service; Keycloak seeds
// and manages them itself.
var reservedNames = []string{
	"admin",
	"default-roles-realm",
	"offline_access",
	"uma_authorization",
}

// protectedNames may not be deleted without force; removing them breaks
// realm administration.
var protectedNames = []string{
	"admin",
	"create-realm",
	"default-roles-realm",
	"offline_access",
	"uma_authorization",
}

// RoleService layers business rules over the Roles resource: name
// denylists, duplicate rejection, validation, cache invalidation after
// writes, ranked search and bulk execution.
type RoleService struct {
	roles  *Roles
	client *rest.Client
	logger logrus.FieldLogger
}

// NewRoleService builds the service over an existing resource client.
func NewRoleService(roles *Roles, client *rest.Client, logger logrus.FieldLogger) *RoleService {
	if logger == nil {
		logger = client.Config().Logger
	}
	return &RoleService{roles: roles, client: client, logger: logger}
}

// Scope addresses a role population: the realm's own roles, or one
// client's. The zero value means realm scope.
type Scope struct {
	Type RoleType
	// ClientID is the client's internal id, required for client scope.
	ClientID string
}

// RealmScope addresses realm-level roles.
func RealmScope() Scope { return Scope{Type: RoleTypeRealm} }

// ClientScope addresses one client's roles.
func ClientScope(clientID string) Scope {
	return Scope{Type: RoleTypeClient, ClientID: clientID}
}

func (s Scope) validate() error {
	if s.Type == "" {
		return nil // zero value, realm scope
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown role type %q", rest.ErrInvalidConfig, s.Type)
	}
	if s.Type.IsClient() && s.ClientID == "" {
		return fmt.Errorf("%w: client scope requires a client id", rest.ErrInvalidConfig)
	}
	return nil
}

func (s Scope) isClient() bool { return s.Type.IsClient() }

// CreateRoleRequest carries everything needed to create a role.
type CreateRoleRequest struct {
	Name        string
	Description string
	Scope       Scope
	Attributes  map[string][]string
	Composite   bool
}

// Create validates the request, rejects reserved and duplicate names,
// creates the role and returns the stored entity re-fetched from the
// server so server-assigned fields (id, timestamps) are populated.
//
// The existence probe and the create are separate requests; a concurrent
// writer can still win the race, in which case the server's conflict
// surfaces as the create error.
func (s *RoleService) Create(ctx context.Context, req CreateRoleRequest) (Role, error) {
	if err := req.Scope.validate(); err != nil {
		return Role{}, err
	}
	role := Role{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Composite:   req.Composite,
		ClientRole:  req.Scope.isClient(),
		ContainerID: req.Scope.ClientID,
		Attributes:  req.Attributes,
	}
	if err := role.Validate(); err != nil {
		return Role{}, fmt.Errorf("invalid role: %w", err)
	}
	if isReserved(role.Name) {
		return Role{}, fmt.Errorf("%w: %q", ErrReservedName, role.Name)
	}

	exists, err := s.roles.Exists(ctx, req.Scope.Type, req.Scope.ClientID, role.Name)
	if err != nil {
		return Role{}, err
	}
	if exists {
		return Role{}, fmt.Errorf("%w: %q", ErrRoleExists, role.Name)
	}

	if req.Scope.isClient() {
		_, err = s.roles.CreateClient(ctx, req.Scope.ClientID, role)
	} else {
		_, err = s.roles.CreateRealm(ctx, role)
	}
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, req.Scope)
	s.logger.WithFields(logrus.Fields{
		"role":  role.Name,
		"scope": string(role.Type()),
		"realm": s.roles.Realm(),
	}).Info("role created")

	return s.fetch(ctx, req.Scope, role.Name)
}

// Update fetches the role, applies the partial update, validates the
// result, replaces it server-side and returns the stored entity re-fetched
// under its possibly renamed name.
func (s *RoleService) Update(ctx context.Context, scope Scope, name string, update RoleUpdate) (Role, error) {
	if err := scope.validate(); err != nil {
		return Role{}, err
	}
	current, err := s.fetch(ctx, scope, name)
	if err != nil {
		return Role{}, err
	}
	updated := current.Apply(update)
	if err := updated.Validate(); err != nil {
		return Role{}, fmt.Errorf("invalid role update: %w", err)
	}
	if updated.Name != current.Name && isReserved(updated.Name) {
		return Role{}, fmt.Errorf("%w: %q", ErrReservedName, updated.Name)
	}

	if scope.isClient() {
		_, err = s.roles.UpdateClient(ctx, scope.ClientID, name, updated)
	} else {
		_, err = s.roles.UpdateRealm(ctx, name, updated)
	}
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, scope)
	s.logger.WithFields(logrus.Fields{
		"role":  updated.Name,
		"realm": s.roles.Realm(),
	}).Info("role updated")

	return s.fetch(ctx, scope, updated.Name)
}

// Delete removes a role. Protected names are refused unless force is set.
func (s *RoleService) Delete(ctx context.Context, scope Scope, name string, force bool) error {
	if err := scope.validate(); err != nil {
		return err
	}
	// Fetch first: a missing role reports NotFound even when its name
	// is on the denylist.
	if _, err := s.fetch(ctx, scope, name); err != nil {
		return err
	}
	if !force && isProtected(name) {
		return fmt.Errorf("%w: %q", ErrProtectedRole, name)
	}

	var err error
	if scope.isClient() {
		_, err = s.roles.DeleteClient(ctx, scope.ClientID, name)
	} else {
		_, err = s.roles.DeleteRealm(ctx, name)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, scope)
	s.logger.WithFields(logrus.Fields{
		"role":  name,
		"realm": s.roles.Realm(),
	}).Info("role deleted")
	return nil
}

// Get fetches one role in a scope.
func (s *RoleService) Get(ctx context.Context, scope Scope, name string) (Role, error) {
	if err := scope.validate(); err != nil {
		return Role{}, err
	}
	return s.fetch(ctx, scope, name)
}

// List returns every role in a scope.
func (s *RoleService) List(ctx context.Context, scope Scope) ([]Role, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	return s.roles.listByType(ctx, scope.Type, scope.ClientID)
}

// SearchFilters narrows a Search beyond the query string. Nil fields are
// ignored.
type SearchFilters struct {
	Composite      *bool
	HasDescription *bool
	CreatedAfter   time.Time
}

// Search returns roles matching query in name, description or attribute
// keys, case-insensitively, after applying filters. Results are ranked:
// exact name matches first, then lexicographic by name.
func (s *RoleService) Search(ctx context.Context, scope Scope, query string, filters SearchFilters) ([]Role, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	roles, err := s.roles.listByType(ctx, scope.Type, scope.ClientID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var matched []Role
	for _, role := range roles {
		if q != "" && !matchesQuery(role, q) {
			continue
		}
		if !matchesFilters(role, filters) {
			continue
		}
		matched = append(matched, role)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		exactI := strings.EqualFold(matched[i].Name, query)
		exactJ := strings.EqualFold(matched[j].Name, query)
		if exactI != exactJ {
			return exactI
		}
		return matched[i].Name < matched[j].Name
	})
	return matched, nil
}

func matchesQuery(role Role, q string) bool {
	if strings.Contains(strings.ToLower(role.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(role.Description), q) {
		return true
	}
	for key := range role.Attributes {
		if strings.Contains(strings.ToLower(key), q) {
			return true
		}
	}
	return false
}

func matchesFilters(role Role, f SearchFilters) bool {
	if f.Composite != nil && role.Composite != *f.Composite {
		return false
	}
	if f.HasDescription != nil && (role.Description != "") != *f.HasDescription {
		return false
	}
	if !f.CreatedAfter.IsZero() {
		created := role.CreatedAt()
		if created.IsZero() || created.Before(f.CreatedAfter) {
			return false
		}
	}
	return true
}

// AddComposites attaches children to a composite parent. The parent must
// exist and be composite.
func (s *RoleService) AddComposites(ctx context.Context, scope Scope, parent string, children []Role) error {
	if err := scope.validate(); err != nil {
		return err
	}
	role, err := s.fetch(ctx, scope, parent)
	if err != nil {
		return err
	}
	if !role.Composite {
		return fmt.Errorf("%w: %q", ErrNotComposite, parent)
	}
	if scope.isClient() {
		_, err = s.roles.AddClientComposites(ctx, scope.ClientID, parent, children)
	} else {
		_, err = s.roles.AddRealmComposites(ctx, parent, children)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, scope)
	return nil
}

// RemoveComposites detaches children from a composite parent.
func (s *RoleService) RemoveComposites(ctx context.Context, scope Scope, parent string, children []Role) error {
	if err := scope.validate(); err != nil {
		return err
	}
	if _, err := s.fetch(ctx, scope, parent); err != nil {
		return err
	}
	var err error
	if scope.isClient() {
		_, err = s.roles.RemoveClientComposites(ctx, scope.ClientID, parent, children)
	} else {
		_, err = s.roles.RemoveRealmComposites(ctx, parent, children)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, scope)
	return nil
}

// Hierarchy is a composite role together with its direct children.
type Hierarchy struct {
	Role     Role
	Children []Role
}

// Hierarchy returns a role and, when it is composite, its children.
func (s *RoleService) Hierarchy(ctx context.Context, scope Scope, name string) (Hierarchy, error) {
	if err := scope.validate(); err != nil {
		return Hierarchy{}, err
	}
	role, err := s.fetch(ctx, scope, name)
	if err != nil {
		return Hierarchy{}, err
	}
	h := Hierarchy{Role: role}
	if !role.Composite {
		return h, nil
	}
	if scope.isClient() {
		h.Children, err = s.roles.ClientComposites(ctx, scope.ClientID, name, false)
	} else {
		h.Children, err = s.roles.RealmComposites(ctx, name, false)
	}
	if err != nil {
		return Hierarchy{}, err
	}
	return h, nil
}

func (s *RoleService) fetch(ctx context.Context, scope Scope, name string) (Role, error) {
	if scope.isClient() {
		return s.roles.FindClient(ctx, scope.ClientID, name)
	}
	return s.roles.FindRealm(ctx, name)
}

// invalidate drops the cached role listings of a scope after a write.
// Scoped to this realm's role endpoints; other cached realms and other
// clients sharing the Store are untouched.
func (s *RoleService) invalidate(ctx context.Context, scope Scope) {
	prefixes := []string{
		s.client.KeyPrefix(http.MethodGet, "/admin/realms/"+s.roles.Realm()+"/roles"),
	}
	if scope.isClient() {
		prefixes = append(prefixes,
			s.client.KeyPrefix(http.MethodGet, "/admin/realms/"+s.roles.Realm()+"/clients/"+scope.ClientID+"/roles"))
	}
	for _, prefix := range prefixes {
		if err := s.client.InvalidatePrefix(ctx, prefix); err != nil {
			s.logger.WithError(err).WithField("prefix", prefix).Warn("cache invalidation failed")
		}
	}
}

func isReserved(name string) bool  { return containsFold(reservedNames, name) }
func isProtected(name string) bool { return containsFold(protectedNames, name) }

func containsFold(list []string, name string) bool {
	// Realm default-role names carry the realm as a suffix.
	if strings.HasPrefix(strings.ToLower(name), "default-roles-") {
		return true
	}
	for _, entry := range list {
		if strings.EqualFold(entry, name) {
			return true
		}
	}
	return false
}

// BulkAction names one operation of a bulk run.
type BulkAction string

const (
	BulkCreate BulkAction = "create"
	BulkUpdate BulkAction = "update"
	BulkDelete BulkAction = "delete"
)

// BulkOperation is one entry of a bulk run.
type BulkOperation struct {
	Action BulkAction
	Scope  Scope
	Name   string

	// Create fields.
	Description string
	Attributes  map[string][]string
	Composite   bool

	// Update payload, required for BulkUpdate.
	Update *RoleUpdate

	// Force applies to BulkDelete.
	Force bool
}

// BulkOutcome is the result of one operation, positionally matched to the
// input slice.
type BulkOutcome struct {
	Index   int
	Action  BulkAction
	Name    string
	Success bool
	// Role is the stored entity for successful creates and updates.
	Role *Role
	Err  error
}

// BulkResult summarizes a bulk run.
type BulkResult struct {
	Outcomes   []BulkOutcome
	Total      int
	Successful int
	Failed     int
}

// Err aggregates the failures of the run, nil when everything succeeded.
func (r BulkResult) Err() error {
	var merr *multierror.Error
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("op %d (%s %q): %w",
				outcome.Index, outcome.Action, outcome.Name, outcome.Err))
		}
	}
	return merr.ErrorOrNil()
}

// Bulk executes the operations in order. Each operation is isolated: a
// failure records its error and the run continues. There is no rollback.
func (s *RoleService) Bulk(ctx context.Context, ops []BulkOperation) BulkResult {
	result := BulkResult{
		Outcomes: make([]BulkOutcome, 0, len(ops)),
		Total:    len(ops),
	}
	for i, op := range ops {
		outcome := BulkOutcome{Index: i, Action: op.Action, Name: op.Name}
		switch op.Action {
		case BulkCreate:
			role, err := s.Create(ctx, CreateRoleRequest{
				Name:        op.Name,
				Description: op.Description,
				Scope:       op.Scope,
				Attributes:  op.Attributes,
				Composite:   op.Composite,
			})
			if err != nil {
				outcome.Err = err
			} else {
				outcome.Success = true
				outcome.Role = &role
			}
		case BulkUpdate:
			if op.Update == nil {
				outcome.Err = fmt.Errorf("%w: bulk update requires an update payload", rest.ErrInvalidConfig)
				break
			}
			role, err := s.Update(ctx, op.Scope, op.Name, *op.Update)
			if err != nil {
				outcome.Err = err
			} else {
				outcome.Success = true
				outcome.Role = &role
			}
		case BulkDelete:
			if err := s.Delete(ctx, op.Scope, op.Name, op.Force); err != nil {
				outcome.Err = err
			} else {
				outcome.Success = true
			}
		default:
			outcome.Err = fmt.Errorf("%w: unknown bulk action %q", rest.ErrInvalidConfig, op.Action)
		}
		if outcome.Success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	s.logger.WithFields(logrus.Fields{
		"total":      result.Total,
		"successful": result.Successful,
		"failed":     result.Failed,
	}).Info("bulk role run finished")
	return result
}
