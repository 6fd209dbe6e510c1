package vlquery

import (
	"context"
	"fmt"
	"strconv"

	vsql "github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/graph"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/privacy"
	"github.com/syssam/vlquery/query"
	"github.com/syssam/vlquery/schema"
)

// Query operations recorded in QueryError.
const (
	OpSelect = privacy.OpSelect
	OpCount  = privacy.OpCount
)

// payloadColumn is the result column holding each row's jsonb payload.
const payloadColumn = "_"

// Query is a query over one entity set. Builder methods return the
// receiver; use Clone to fork a query.
type Query struct {
	client *Client
	q      *query.Query
}

func newQuery(c *Client, entity string) *Query {
	return &Query{client: c, q: query.New(c.registry, c.codecs, entity)}
}

// Where adds conditions. Multiple conditions are combined with AND.
func (q *Query) Where(conds ...ir.Node) *Query {
	q.q.Where(conds...)
	return q
}

// Include eagerly loads the dotted relation paths.
func (q *Query) Include(paths ...string) *Query {
	q.q.Include(paths...)
	return q
}

// IncludeShape eagerly loads the relations of s.
func (q *Query) IncludeShape(s query.Shape) *Query {
	q.q.IncludeShape(s)
	return q
}

// OrderBy adds an ordering term.
func (q *Query) OrderBy(expr ir.Node, dir query.Direction) *Query {
	q.q.OrderBy(expr, dir)
	return q
}

// OrderByAscending adds an ascending ordering term.
func (q *Query) OrderByAscending(expr ir.Node) *Query {
	q.q.OrderByAscending(expr)
	return q
}

// OrderByDescending adds a descending ordering term.
func (q *Query) OrderByDescending(expr ir.Node) *Query {
	q.q.OrderByDescending(expr)
	return q
}

// Skip sets the number of rows to skip.
func (q *Query) Skip(n int) *Query {
	q.q.Skip(n)
	return q
}

// Limit sets the maximum number of rows.
func (q *Query) Limit(n int) *Query {
	q.q.Limit(n)
	return q
}

// Page selects the index-th page (zero based) of the given size.
func (q *Query) Page(index, size int) *Query {
	q.q.Page(index, size)
	return q
}

// Clone returns a copy of the query that can be modified independently.
func (q *Query) Clone() *Query {
	return &Query{client: q.client, q: q.q.Clone()}
}

// ToSQL compiles the query without executing it.
func (q *Query) ToSQL() (string, []any, error) {
	return q.q.ToSQL()
}

// All executes the query and materializes every row.
func (q *Query) All(ctx context.Context) ([]*graph.Entity, error) {
	q, err := q.authorize(ctx, OpSelect)
	if err != nil {
		return nil, err
	}
	st, err := q.q.Build()
	if err != nil {
		return nil, err
	}
	rows := &vsql.Rows{}
	if err := q.client.query(ctx, st.SQL, st.Args, rows); err != nil {
		return nil, q.wrap(OpSelect, err)
	}
	payloads, err := rows.Column(payloadColumn)
	if err != nil {
		return nil, q.wrap(OpSelect, err)
	}
	m := &graph.Materializer{Tree: st.Tree, Codecs: q.client.codecs, Loader: q.client.loader}
	return m.MaterializeAll(payloads)
}

// First returns the first row. It returns a CardinalityError matching
// ErrNotFound when no row matches.
func (q *Query) First(ctx context.Context) (*graph.Entity, error) {
	es, err := q.Clone().Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(es) == 0 {
		return nil, &CardinalityError{Entity: q.q.Entity(), Count: 0}
	}
	return es[0], nil
}

// Single returns the only matching row. It returns a CardinalityError if
// zero or more than one row matches.
func (q *Query) Single(ctx context.Context) (*graph.Entity, error) {
	es, err := q.Clone().Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(es) != 1 {
		return nil, &CardinalityError{Entity: q.q.Entity(), Count: len(es)}
	}
	return es[0], nil
}

// Find returns the row with the given id.
func (q *Query) Find(ctx context.Context, id any) (*graph.Entity, error) {
	return q.Clone().Where(ir.P(schema.IDColumn).EQ(id)).First(ctx)
}

// Count returns the number of matching rows. Includes, orderings and
// paging are ignored.
func (q *Query) Count(ctx context.Context) (int, error) {
	q, err := q.authorize(ctx, OpCount)
	if err != nil {
		return 0, err
	}
	st, err := q.q.Count().Build()
	if err != nil {
		return 0, err
	}
	rows := &vsql.Rows{}
	if err := q.client.query(ctx, st.SQL, st.Args, rows); err != nil {
		return 0, q.wrap(OpCount, err)
	}
	if rows.Len() != 1 || len(rows.Values[0]) != 1 {
		return 0, q.wrap(OpCount, fmt.Errorf("unexpected result shape (%d rows)", rows.Len()))
	}
	n, err := toInt(rows.Values[0][0])
	if err != nil {
		return 0, q.wrap(OpCount, err)
	}
	return n, nil
}

// Exist reports whether any row matches.
func (q *Query) Exist(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

func (q *Query) wrap(op string, err error) error {
	return &QueryError{Entity: q.q.Entity(), Op: op, Err: err}
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case []byte:
		return strconv.Atoi(string(v))
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("unexpected count type %T", v)
}

// Set is a named entity set bound to a client. Every builder method starts
// a new Query.
type Set struct {
	client *Client
	entity string
}

// Name returns the entity name.
func (s *Set) Name() string { return s.entity }

// Query returns a query over every live row of the set.
func (s *Set) Query() *Query { return newQuery(s.client, s.entity) }

// Where starts a query with the given conditions.
func (s *Set) Where(conds ...ir.Node) *Query { return s.Query().Where(conds...) }

// Include starts a query that eagerly loads the dotted relation paths.
func (s *Set) Include(paths ...string) *Query { return s.Query().Include(paths...) }

// IncludeShape starts a query that eagerly loads the relations of sh.
func (s *Set) IncludeShape(sh query.Shape) *Query { return s.Query().IncludeShape(sh) }

// OrderByAscending starts a query with an ascending ordering term.
func (s *Set) OrderByAscending(expr ir.Node) *Query { return s.Query().OrderByAscending(expr) }

// OrderByDescending starts a query with a descending ordering term.
func (s *Set) OrderByDescending(expr ir.Node) *Query { return s.Query().OrderByDescending(expr) }

// Skip starts a query skipping n rows.
func (s *Set) Skip(n int) *Query { return s.Query().Skip(n) }

// Limit starts a query returning at most n rows.
func (s *Set) Limit(n int) *Query { return s.Query().Limit(n) }

// Page starts a query over the index-th page of the given size.
func (s *Set) Page(index, size int) *Query { return s.Query().Page(index, size) }

// All returns every live row.
func (s *Set) All(ctx context.Context) ([]*graph.Entity, error) { return s.Query().All(ctx) }

// First returns the first row.
func (s *Set) First(ctx context.Context) (*graph.Entity, error) { return s.Query().First(ctx) }

// Single returns the only row.
func (s *Set) Single(ctx context.Context) (*graph.Entity, error) { return s.Query().Single(ctx) }

// Count returns the number of live rows.
func (s *Set) Count(ctx context.Context) (int, error) { return s.Query().Count(ctx) }

// Find returns the row with the given id.
func (s *Set) Find(ctx context.Context, id any) (*graph.Entity, error) {
	return s.Query().Find(ctx, id)
}

// ToSQL compiles a query over every live row.
func (s *Set) ToSQL() (string, []any, error) { return s.Query().ToSQL() }
