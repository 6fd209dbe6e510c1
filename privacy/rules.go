package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/vlquery/ir"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. It is typically the first rule of a policy.
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("vlquery/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified
// role, and skips otherwise.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// specified roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows writes whose column value is
// the viewer's ID.
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner("ownerId"),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if v, ok := m.Value(column); ok && v != nil && fmt.Sprint(v) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// OwnerFilter returns a query rule that restricts the named entities to
// the rows whose column equals the viewer's ID. It denies queries without
// a viewer.
func OwnerFilter(column string, entities ...string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q Query) error {
		if !slices.Contains(entities, q.Entity()) {
			return Skip
		}
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("vlquery/privacy: viewer required for %s", q.Entity())
		}
		q.Filter(ir.P(column).EQ(viewer.GetID()))
		return Skip
	})
}

// TenantFilter returns a query rule that restricts the named entities to
// the viewer's tenant. It denies queries without a viewer or tenant.
func TenantFilter(column string, entities ...string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q Query) error {
		if !slices.Contains(entities, q.Entity()) {
			return Skip
		}
		tenant, err := tenantOf(ctx)
		if err != nil {
			return err
		}
		q.Filter(ir.P(column).EQ(tenant))
		return Skip
	})
}

// TenantRule returns a mutation rule that keeps writes to the named entities
// inside the viewer's tenant. Creates without a tenant value get the
// viewer's; creates and updates naming another tenant are denied.
func TenantRule(column string, entities ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if !slices.Contains(entities, m.Entity()) || m.Op() == OpDelete {
			return Skip
		}
		tenant, err := tenantOf(ctx)
		if err != nil {
			return err
		}
		v, ok := m.Value(column)
		switch {
		case !ok && m.Op() == OpCreate:
			m.SetValue(column, tenant)
		case ok && fmt.Sprint(v) != tenant:
			return Denyf("vlquery/privacy: tenant mismatch on %s", m.Entity())
		}
		return Skip
	})
}

func tenantOf(ctx context.Context) (string, error) {
	viewer := ViewerFromContext(ctx)
	if viewer == nil {
		return "", Denyf("vlquery/privacy: viewer required for tenant-filtered operation")
	}
	if viewer.GetTenantID() == "" {
		return "", Denyf("vlquery/privacy: tenant required")
	}
	return viewer.GetTenantID(), nil
}
