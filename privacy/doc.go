// Package privacy provides the policy layer evaluated before queries and
// writes reach the database.
//
// # Core Concepts
//
//   - Policy: query and mutation rules installed on a client
//   - Rule: a function that returns Allow, Deny or Skip
//   - Viewer: the authenticated caller, carried in the context
//
// # Defining Policies
//
//	client, err := vlquery.NewClient(
//	    vlquery.Driver(mgr),
//	    vlquery.Schema(reg),
//	    vlquery.Policy(privacy.Policy{
//	        Query: privacy.QueryPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.TenantFilter("tenantId", "Customer", "Order"),
//	        },
//	        Mutation: privacy.MutationPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.HasRole("admin"),
//	            privacy.DenyMutationOperationRule(privacy.OpDelete),
//	        },
//	    }),
//	)
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a decision other than Skip.
// Allow permits the operation and Deny rejects it. A policy whose rules all
// skip permits the operation.
//
// Query rules may narrow a query with Query.Filter; the conditions are
// ANDed with the caller's. Mutation rules may inspect and change the
// values being written.
//
// # Context Integration
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID:   "user-123",
//	    Roles:    []string{"user"},
//	    TenantID: "tenant-abc",
//	})
//	orders, err := client.Set("Order").All(ctx)
//
// A decision attached with DecisionContext short-circuits every policy,
// which internal jobs use to bypass them:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
//
// # Error Handling
//
// Denied operations return an error wrapping Deny:
//
//	if errors.Is(err, privacy.Deny) {
//	    ...
//	}
package privacy
