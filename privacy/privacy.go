package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/vlquery/ir"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("vlquery/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("vlquery/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("vlquery/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Operations a policy is evaluated for.
const (
	OpSelect = "select"
	OpCount  = "count"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

type (
	// Query is a read about to be executed.
	Query interface {
		// Entity returns the name of the queried entity.
		Entity() string
		// Op returns OpSelect or OpCount.
		Op() string
		// Filter narrows the query with conditions ANDed to its own.
		Filter(conds ...ir.Node)
	}

	// Mutation is a single-row write about to be executed.
	Mutation interface {
		// Entity returns the name of the written entity.
		Entity() string
		// Op returns OpCreate, OpUpdate or OpDelete.
		Op() string
		// ID returns the id of the target row, nil for OpCreate.
		ID() any
		// Value returns the value written to a column, if any.
		Value(column string) (any, bool)
		// SetValue changes the value written to a column. It has no effect
		// on OpDelete.
		SetValue(column string, v any)
	}
)

type (
	// QueryRule defines the interface deciding whether a
	// query is allowed and optionally modify it.
	QueryRule interface {
		EvalQuery(context.Context, Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule defines the interface deciding whether a
	// mutation is allowed and optionally modify it.
	MutationRule interface {
		EvalMutation(context.Context, Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context
// evaluation function. Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// OnMutationOperation evaluates the given rule only on the given mutation
// operations.
func OnMutationOperation(rule MutationRule, ops ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if slices.Contains(ops, m.Op()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given mutation
// operation.
func DenyMutationOperationRule(op string) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m Mutation) error {
		return Denyf("vlquery/privacy: operation %s is not allowed on %s", m.Op(), m.Entity())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given mutation
// operation.
func AllowMutationOperationRule(op string) MutationRule {
	rule := MutationRuleFunc(func(context.Context, Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// OnEntity evaluates the given rule only for the named entities.
func OnEntity(rule QueryMutationRule, entities ...string) QueryMutationRule {
	return entityRule{rule: rule, entities: entities}
}

type entityRule struct {
	rule     QueryMutationRule
	entities []string
}

func (r entityRule) EvalQuery(ctx context.Context, q Query) error {
	if slices.Contains(r.entities, q.Entity()) {
		return r.rule.EvalQuery(ctx, q)
	}
	return Skip
}

func (r entityRule) EvalMutation(ctx context.Context, m Mutation) error {
	if slices.Contains(r.entities, m.Entity()) {
		return r.rule.EvalMutation(ctx, m)
	}
	return Skip
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, q Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// EvalQuery evaluates a query against a query policy. A decision attached
// to ctx with DecisionContext takes precedence over the rules.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q Query) error {
	return eval(ctx, len(policies), func(i int) error {
		return policies[i].EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates a mutation against a mutation policy. A decision
// attached to ctx with DecisionContext takes precedence over the rules.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m Mutation) error {
	return eval(ctx, len(policies), func(i int) error {
		return policies[i].EvalMutation(ctx, m)
	})
}

func eval(ctx context.Context, n int, rule func(int) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for i := range n {
		switch decision := rule(i); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context. An
// Allow decision is reported as a nil error.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ Mutation) error {
	return c.eval(ctx)
}
