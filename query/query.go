package query

import (
	"strings"

	"github.com/syssam/vlquery/codec"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/schema"
)

// DefaultPageSize is the page size used by Page when none is given.
const DefaultPageSize = 100

// Query is a statement builder over one entity. Builder methods mutate and
// return the receiver; use Clone to fork a query.
type Query struct {
	registry *schema.Registry
	codecs   *codec.Registry
	entity   string
	where    []ir.Node
	orders   []Order
	shape    Shape
	limit    *int
	offset   *int
	count    bool
	err      error
}

// Statement is a compiled query.
type Statement struct {
	SQL    string
	Args   []any
	Entity *schema.Entity
	// Tree describes the payload of each row. It is nil for counts.
	Tree *IncludeNode
	// Count reports whether the statement returns a single row count.
	Count bool
}

// New returns a query over the named entity. A nil codec registry selects
// codec.Default.
func New(registry *schema.Registry, codecs *codec.Registry, entity string) *Query {
	if codecs == nil {
		codecs = codec.Default
	}
	return &Query{registry: registry, codecs: codecs, entity: entity}
}

// Entity returns the name of the queried entity.
func (q *Query) Entity() string { return q.entity }

// Where adds conditions. Multiple conditions are combined with AND.
func (q *Query) Where(conds ...ir.Node) *Query {
	for _, c := range conds {
		if c != nil {
			q.where = append(q.where, c)
		}
	}
	return q
}

// Include adds dotted relation paths to the fetch shape.
//
//	q.Include("customer", "items.product")
func (q *Query) Include(paths ...string) *Query {
	q.shape = q.shape.Merge(ParseShape(paths...))
	return q
}

// IncludeShape merges s into the fetch shape.
func (q *Query) IncludeShape(s Shape) *Query {
	if q.shape == nil {
		q.shape = s
		return q
	}
	q.shape = q.shape.Merge(s)
	return q
}

// OrderBy adds an ordering term.
func (q *Query) OrderBy(expr ir.Node, dir Direction) *Query {
	q.orders = append(q.orders, Order{Expr: expr, Direction: dir})
	return q
}

// OrderByAscending adds an ascending ordering term.
func (q *Query) OrderByAscending(expr ir.Node) *Query { return q.OrderBy(expr, Asc) }

// OrderByDescending adds a descending ordering term.
func (q *Query) OrderByDescending(expr ir.Node) *Query { return q.OrderBy(expr, Desc) }

// Limit sets the maximum number of rows.
func (q *Query) Limit(n int) *Query {
	if n < 0 {
		q.err = ir.Errorf("negative limit %d", n)
	}
	q.limit = &n
	return q
}

// Skip sets the number of rows to skip.
func (q *Query) Skip(n int) *Query {
	if n < 0 {
		q.err = ir.Errorf("negative offset %d", n)
	}
	q.offset = &n
	return q
}

// Page selects the index-th page (zero based) of the given size. A size of
// zero or less selects DefaultPageSize.
func (q *Query) Page(index, size int) *Query {
	if size <= 0 {
		size = DefaultPageSize
	}
	return q.Limit(size).Skip(index * size)
}

// Count switches the query to count mode: the statement returns the number
// of matching rows and ignores includes, orderings and paging.
func (q *Query) Count() *Query {
	q.count = true
	return q
}

// Clone returns a copy of the query that can be modified independently.
func (q *Query) Clone() *Query {
	c := *q
	c.where = append([]ir.Node(nil), q.where...)
	c.orders = append([]Order(nil), q.orders...)
	if q.shape != nil {
		c.shape = Shape{}.Merge(q.shape)
	}
	return &c
}

// ToSQL compiles the query and returns its SQL and arguments.
func (q *Query) ToSQL() (string, []any, error) {
	st, err := q.Build()
	if err != nil {
		return "", nil, err
	}
	return st.SQL, st.Args, nil
}

// Build plans and compiles the query. Each call plans a fresh statement.
func (q *Query) Build() (*Statement, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.registry == nil {
		return nil, ir.Errorf("query on %q without a schema", q.entity)
	}
	root, err := q.registry.Entity(q.entity)
	if err != nil {
		return nil, err
	}
	p := newPlan(q.registry, q.codecs, root)

	var where []string
	if active := root.SoftDeleteColumn(); active != nil {
		where = append(where, p.rootExt.Column(active))
	}
	for _, n := range q.where {
		s, err := p.expr(n, nil)
		if err != nil {
			return nil, err
		}
		where = append(where, s)
	}

	st := &Statement{Entity: root, Count: q.count}
	var (
		selection string
		orders    []string
		limit     string
		offset    string
	)
	if q.count {
		selection = "COUNT(" + p.rootExt.Column(root.ID()) + ")"
	} else {
		for _, o := range q.orders {
			s, err := p.order(o)
			if err != nil {
				return nil, err
			}
			orders = append(orders, s)
		}
		tree, payload, err := p.include(q.shape)
		if err != nil {
			return nil, err
		}
		st.Tree = tree
		selection = payload + " AS _"
		if q.limit != nil {
			if limit, err = p.bind(*q.limit, nil); err != nil {
				return nil, err
			}
		}
		if q.offset != nil {
			if offset, err = p.bind(*q.offset, nil); err != nil {
				return nil, err
			}
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selection)
	b.WriteString(" FROM ")
	b.WriteString(quote(root.Source))
	b.WriteString(" AS ")
	b.WriteString(p.rootExt.Name)
	if joins := p.scope.sql(); joins != "" {
		b.WriteString(" ")
		b.WriteString(joins)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}
	if limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(limit)
	}
	if offset != "" {
		b.WriteString(" OFFSET ")
		b.WriteString(offset)
	}
	st.SQL, st.Args, err = p.finalize(b.String())
	if err != nil {
		return nil, err
	}
	return st, nil
}
