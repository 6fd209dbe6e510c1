package query

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/vlquery/schema"
)

// Extent is one table alias of a statement.
type Extent struct {
	Name string
}

// Column returns the qualified reference to a physical column of the extent.
func (e *Extent) Column(c *schema.Column) string {
	return e.Name + "." + quote(c.Physical)
}

func quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

// joinKey identifies a join within a scope.
type joinKey struct {
	from  string
	table string
	fk    string
}

// Join is a LEFT JOIN of a to-one relation target.
type Join struct {
	From   *Extent
	To     *Extent
	FK     *schema.Column
	Target *schema.Entity
}

// SQL renders the join clause.
func (j *Join) SQL() string {
	var b strings.Builder
	b.WriteString("LEFT JOIN ")
	b.WriteString(quote(j.Target.Source))
	b.WriteString(" AS ")
	b.WriteString(j.To.Name)
	b.WriteString(" ON ")
	if active := j.Target.SoftDeleteColumn(); active != nil {
		b.WriteString(j.To.Column(active))
		b.WriteString(" AND ")
	}
	b.WriteString(j.From.Column(j.FK))
	b.WriteString(" = ")
	b.WriteString(j.To.Column(j.Target.ID()))
	return b.String()
}

// scope owns the join clauses of one FROM list: the statement root or the
// derived table of a to-many group. Clauses are rendered in creation order
// and never move between scopes.
type scope struct {
	clauses []string
	joins   map[joinKey]*Join
}

func newScope() *scope {
	return &scope{joins: make(map[joinKey]*Join)}
}

// join returns the extent joined for rel from the given extent, creating
// the join on first use.
func (s *scope) join(p *plan, from *Extent, owner *schema.Entity, rel *schema.Relation) (*Extent, *schema.Entity, error) {
	target, err := p.registry.Entity(rel.Target)
	if err != nil {
		return nil, nil, err
	}
	fk, ok := owner.Column(rel.Column)
	if !ok {
		return nil, nil, &schema.ResolutionError{Entity: owner.Name, Name: rel.Column}
	}
	key := joinKey{from: from.Name, table: target.Source, fk: fk.Physical}
	if j, ok := s.joins[key]; ok {
		return j.To, target, nil
	}
	j := &Join{From: from, To: p.extent(), FK: fk, Target: target}
	s.joins[key] = j
	s.clauses = append(s.clauses, j.SQL())
	return j.To, target, nil
}

// add appends a raw clause, used for derived-table joins.
func (s *scope) add(clause string) {
	s.clauses = append(s.clauses, clause)
}

// len returns the number of distinct to-one joins in the scope.
func (s *scope) len() int { return len(s.joins) }

func (s *scope) sql() string {
	return strings.Join(s.clauses, " ")
}

// extentName returns the alias for the n-th extent of a statement.
func extentName(n int) string {
	return "ext" + strconv.Itoa(n)
}
