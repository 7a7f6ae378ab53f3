package keycloak

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galdoway/apisdk/rest"
)

func TestServiceCreate(t *testing.T) {
	_, client := uncachedSetup(t)
	ctx := context.Background()

	role, err := client.Service().Create(ctx, CreateRoleRequest{
		Name:        "auditor",
		Description: "Read-only audit access",
		Scope:       RealmScope(),
		Attributes:  map[string][]string{"team": {"security"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, role.ID, "create re-fetches the stored entity")
	assert.Equal(t, "auditor", role.Name)
	assert.NotZero(t, role.CreatedTimestamp)
}

func TestServiceCreateRejectsReservedNames(t *testing.T) {
	_, client := uncachedSetup(t)
	ctx := context.Background()

	for _, name := range []string{"admin", "ADMIN", "offline_access", "uma_authorization", "default-roles-master"} {
		_, err := client.Service().Create(ctx, CreateRoleRequest{Name: name, Scope: RealmScope()})
		assert.ErrorIs(t, err, ErrReservedName, "name %q", name)
	}
}

func TestServiceCreateRejectsDuplicates(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "taken"})
	ctx := context.Background()

	_, err := client.Service().Create(ctx, CreateRoleRequest{Name: "taken", Scope: RealmScope()})
	assert.ErrorIs(t, err, ErrRoleExists)
}

func TestServiceCreateRejectsInvalidNames(t *testing.T) {
	_, client := uncachedSetup(t)
	ctx := context.Background()

	_, err := client.Service().Create(ctx, CreateRoleRequest{Name: "bad name!", Scope: RealmScope()})
	assert.Error(t, err)

	_, err = client.Service().Create(ctx, CreateRoleRequest{Name: "", Scope: RealmScope()})
	assert.Error(t, err)
}

func TestServiceCreateClientScopeRequiresClientID(t *testing.T) {
	_, client := uncachedSetup(t)
	_, err := client.Service().Create(context.Background(), CreateRoleRequest{
		Name:  "deploy",
		Scope: Scope{Type: RoleTypeClient},
	})
	assert.Error(t, err)
}

func TestServiceUpdate(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "auditor", Description: "v1"})
	ctx := context.Background()

	updated, err := client.Service().Update(ctx, RealmScope(), "auditor", RoleUpdate{
		Description: strPtr("v2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Description)

	// Rename: the re-fetch happens under the new name.
	renamed, err := client.Service().Update(ctx, RealmScope(), "auditor", RoleUpdate{
		Name: strPtr("auditor-v2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "auditor-v2", renamed.Name)

	_, err = client.Service().Get(ctx, RealmScope(), "auditor")
	assert.True(t, rest.IsNotFound(err))
}

func TestServiceUpdateMissingRole(t *testing.T) {
	_, client := uncachedSetup(t)
	_, err := client.Service().Update(context.Background(), RealmScope(), "ghost", RoleUpdate{
		Description: strPtr("x"),
	})
	assert.True(t, rest.IsNotFound(err))
}

func TestServiceDeleteProtectedRoles(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "create-realm"})
	ctx := context.Background()

	err := client.Service().Delete(ctx, RealmScope(), "create-realm", false)
	assert.ErrorIs(t, err, ErrProtectedRole)

	// Force overrides the denylist.
	require.NoError(t, client.Service().Delete(ctx, RealmScope(), "create-realm", true))
	_, err = client.Service().Get(ctx, RealmScope(), "create-realm")
	assert.True(t, rest.IsNotFound(err))
}

func TestServiceDeleteMissingRole(t *testing.T) {
	_, client := uncachedSetup(t)
	err := client.Service().Delete(context.Background(), RealmScope(), "ghost", false)
	assert.True(t, rest.IsNotFound(err))
}

// A nonexistent role reports NotFound even when its name is protected;
// the denylist only guards roles that actually exist.
func TestServiceDeleteMissingProtectedRole(t *testing.T) {
	_, client := uncachedSetup(t)
	err := client.Service().Delete(context.Background(), RealmScope(), "create-realm", false)
	assert.True(t, rest.IsNotFound(err))
	assert.NotErrorIs(t, err, ErrProtectedRole)
}

// Exact name matches rank first, then lexicographic order by name.
func TestServiceSearchRanking(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "admin-backup"})
	fake.seed("", Role{Name: "zone-admin"})
	fake.seed("", Role{Name: "admin-lite"})
	fake.seed("", Role{Name: "viewer", Description: "can admin dashboards"})
	fake.seed("", Role{Name: "unrelated"})
	fake.seed("", Role{Name: "admin-lite-v2"})

	// An exact hit for the query string.
	fake.seed("", Role{Name: "zadmin"})
	fake.seed("", Role{Name: "admin"})

	results, err := client.Service().Search(context.Background(), RealmScope(), "admin", SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "admin", results[0].Name, "exact match ranks first")
	names := make([]string, 0, len(results))
	for _, r := range results[1:] {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"admin-backup", "admin-lite", "admin-lite-v2", "viewer", "zadmin", "zone-admin"}, names,
		"remaining matches sort lexicographically; description matches included")
}

func TestServiceSearchFilters(t *testing.T) {
	fake, client := uncachedSetup(t)
	now := time.Now()
	fake.seed("", Role{Name: "old-composite", Composite: true,
		CreatedTimestamp: now.Add(-48 * time.Hour).UnixMilli()})
	fake.seed("", Role{Name: "new-simple", Description: "described",
		CreatedTimestamp: now.UnixMilli()})
	ctx := context.Background()

	composite := true
	results, err := client.Service().Search(ctx, RealmScope(), "", SearchFilters{Composite: &composite})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "old-composite", results[0].Name)

	hasDesc := true
	results, err = client.Service().Search(ctx, RealmScope(), "", SearchFilters{HasDescription: &hasDesc})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new-simple", results[0].Name)

	results, err = client.Service().Search(ctx, RealmScope(), "", SearchFilters{
		CreatedAfter: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new-simple", results[0].Name)
}

func TestServiceComposites(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "bundle", Composite: true})
	fake.seed("", Role{Name: "plain"})
	fake.seed("", Role{Name: "part-a"})
	fake.seed("", Role{Name: "part-b"})
	ctx := context.Background()
	svc := client.Service()

	partA, err := svc.Get(ctx, RealmScope(), "part-a")
	require.NoError(t, err)
	partB, err := svc.Get(ctx, RealmScope(), "part-b")
	require.NoError(t, err)

	// Attaching to a simple role is refused.
	err = svc.AddComposites(ctx, RealmScope(), "plain", []Role{partA})
	assert.ErrorIs(t, err, ErrNotComposite)

	require.NoError(t, svc.AddComposites(ctx, RealmScope(), "bundle", []Role{partA, partB}))

	h, err := svc.Hierarchy(ctx, RealmScope(), "bundle")
	require.NoError(t, err)
	assert.True(t, h.Role.Composite)
	assert.Len(t, h.Children, 2)

	require.NoError(t, svc.RemoveComposites(ctx, RealmScope(), "bundle", []Role{partA}))
	h, err = svc.Hierarchy(ctx, RealmScope(), "bundle")
	require.NoError(t, err)
	require.Len(t, h.Children, 1)
	assert.Equal(t, "part-b", h.Children[0].Name)

	// Hierarchy of a simple role has no children.
	h, err = svc.Hierarchy(ctx, RealmScope(), "plain")
	require.NoError(t, err)
	assert.Empty(t, h.Children)
}

// A failing operation records its error and the run continues: positional
// outcomes plus a summary.
func TestServiceBulkPartialFailure(t *testing.T) {
	fake, client := uncachedSetup(t)
	fake.seed("", Role{Name: "existing"})
	ctx := context.Background()

	result := client.Service().Bulk(ctx, []BulkOperation{
		{Action: BulkCreate, Scope: RealmScope(), Name: "bulk-a"},
		{Action: BulkCreate, Scope: RealmScope(), Name: "existing"}, // duplicate
		{Action: BulkDelete, Scope: RealmScope(), Name: "ghost"},   // missing
		{Action: BulkUpdate, Scope: RealmScope(), Name: "bulk-a",
			Update: &RoleUpdate{Description: strPtr("filled in")}},
		{Action: BulkAction("explode"), Scope: RealmScope(), Name: "x"},
	})

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Outcomes, 5)

	assert.True(t, result.Outcomes[0].Success)
	require.NotNil(t, result.Outcomes[0].Role)
	assert.NotEmpty(t, result.Outcomes[0].Role.ID)

	assert.ErrorIs(t, result.Outcomes[1].Err, ErrRoleExists)
	assert.True(t, rest.IsNotFound(result.Outcomes[2].Err))

	assert.True(t, result.Outcomes[3].Success)
	assert.Equal(t, "filled in", result.Outcomes[3].Role.Description)

	assert.Error(t, result.Outcomes[4].Err)

	aggregate := result.Err()
	require.Error(t, aggregate)
	assert.Contains(t, aggregate.Error(), "existing")
	assert.Contains(t, aggregate.Error(), "ghost")
}

func TestServiceBulkAllSucceed(t *testing.T) {
	_, client := uncachedSetup(t)
	result := client.Service().Bulk(context.Background(), []BulkOperation{
		{Action: BulkCreate, Scope: RealmScope(), Name: "one"},
		{Action: BulkCreate, Scope: RealmScope(), Name: "two"},
	})
	assert.Equal(t, 2, result.Successful)
	assert.Zero(t, result.Failed)
	assert.NoError(t, result.Err())
}

// Writes invalidate the scope's cached listings: a list after a create
// sees the new role even with caching on.
func TestServiceWriteInvalidatesCache(t *testing.T) {
	fake, client := newTestSetup(t) // cache enabled
	fake.seed("", Role{Name: "first"})
	ctx := context.Background()
	svc := client.Service()

	before, err := svc.List(ctx, RealmScope())
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, err = svc.Create(ctx, CreateRoleRequest{Name: "second", Scope: RealmScope()})
	require.NoError(t, err)

	after, err := svc.List(ctx, RealmScope())
	require.NoError(t, err)
	assert.Len(t, after, 2, "stale listing must be invalidated by the write")
}

// The full lifecycle scenario: create, find, delete, then find reports
// NotFound.
func TestRoleLifecycleScenario(t *testing.T) {
	_, client := newTestSetup(t)
	ctx := context.Background()
	svc := client.Service()

	created, err := svc.Create(ctx, CreateRoleRequest{
		Name:        "lifecycle",
		Description: "here today",
		Scope:       RealmScope(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := svc.Get(ctx, RealmScope(), "lifecycle")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	require.NoError(t, svc.Delete(ctx, RealmScope(), "lifecycle", false))

	_, err = svc.Get(ctx, RealmScope(), "lifecycle")
	require.Error(t, err)
	assert.True(t, rest.IsNotFound(err))
}
