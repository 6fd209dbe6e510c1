package vlquery

import (
	"context"
	"maps"

	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/privacy"
)

// Policy installs a privacy policy evaluated before every query and write
// of the client, including lazy relation loads.
func Policy(p privacy.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// queryRequest exposes a query to privacy rules.
type queryRequest struct {
	q  *Query
	op string
}

func (r *queryRequest) Entity() string          { return r.q.q.Entity() }
func (r *queryRequest) Op() string              { return r.op }
func (r *queryRequest) Filter(conds ...ir.Node) { r.q.q.Where(conds...) }

// authorize evaluates the query policy against a copy of q and returns the
// copy, narrowed by the filters the rules added.
func (q *Query) authorize(ctx context.Context, op string) (*Query, error) {
	c := q.Clone()
	if err := q.client.policy.EvalQuery(ctx, &queryRequest{q: c, op: op}); err != nil {
		return nil, q.wrap(op, err)
	}
	return c, nil
}

// mutationRequest exposes a write to privacy rules.
type mutationRequest struct {
	entity, op string
	id         any
	values     map[string]any
}

func (m *mutationRequest) Entity() string { return m.entity }
func (m *mutationRequest) Op() string     { return m.op }
func (m *mutationRequest) ID() any        { return m.id }

func (m *mutationRequest) Value(column string) (any, bool) {
	v, ok := m.values[column]
	return v, ok
}

func (m *mutationRequest) SetValue(column string, v any) {
	if m.op == OpDelete {
		return
	}
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[column] = v
}

// authorize evaluates the mutation policy and returns the values to write,
// as changed by the rules. The caller's map is never modified.
func (s *Set) authorize(ctx context.Context, op string, id any, values map[string]any) (map[string]any, error) {
	m := &mutationRequest{entity: s.entity, op: op, id: id, values: maps.Clone(values)}
	if err := s.client.policy.EvalMutation(ctx, m); err != nil {
		return nil, &MutationError{Entity: s.entity, Op: op, Err: err}
	}
	return m.values, nil
}

var (
	_ privacy.Query    = (*queryRequest)(nil)
	_ privacy.Mutation = (*mutationRequest)(nil)
)
