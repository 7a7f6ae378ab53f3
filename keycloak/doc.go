// Package keycloak is a typed SDK for the Keycloak admin REST API,
// currently covering role administration. It is layered: Roles mirrors the
// endpoints one-to-one, RoleService adds the business rules (reserved and
// protected names, duplicate rejection, validation, ranked search, bulk
// runs, cache invalidation), and Client ties a realm-scoped transport to
// both plus server introspection.
//
//	cfg := keycloak.DefaultConfig().WithBaseURL("https://auth.example.com")
//	kc, err := keycloak.New(cfg, "master")
//	if err != nil {
//		return err
//	}
//	kc = kc.WithToken(adminToken)
//	role, err := kc.CreateRole(ctx, "auditor", "Read-only audit access")
package keycloak
