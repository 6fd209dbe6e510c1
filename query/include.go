package query

import (
	"sort"
	"strings"

	"github.com/syssam/vlquery/schema"
)

// All is the Shape key selecting every scalar column of an entity.
const All = "*"

// chunkSize is the number of key/value pairs per jsonb_build_object call.
const chunkSize = 10

// Shape is a fetch shape: column and relation names mapped to the shape of
// the related entity. A nil Shape selects every scalar column. A non-nil
// Shape selects the id column plus the listed names; include All to keep
// every scalar column as well.
//
//	query.Shape{"name": nil, "orders": query.Shape{query.All: nil, "items": nil}}
type Shape map[string]Shape

// ParseShape builds a shape from dotted include paths. Every entity along a
// path keeps all of its scalar columns.
func ParseShape(paths ...string) Shape {
	s := Shape{All: nil}
	for _, p := range paths {
		cur := s
		for _, seg := range strings.Split(p, ".") {
			if seg == "" {
				continue
			}
			next, ok := cur[seg]
			if !ok || next == nil {
				next = Shape{All: nil}
				cur[seg] = next
			}
			cur = next
		}
	}
	return s
}

// Merge returns the union of two shapes.
func (s Shape) Merge(o Shape) Shape {
	switch {
	case s == nil && o == nil:
		return nil
	case s == nil:
		s = Shape{All: nil}
	case o == nil:
		o = Shape{All: nil}
	}
	out := make(Shape, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		if cur, ok := out[k]; ok && k != All {
			out[k] = cur.Merge(v)
			continue
		}
		out[k] = v
	}
	return out
}

type (
	// Projection is one payload key bound to a column.
	Projection struct {
		Key    string
		Column *schema.Column
	}

	// IncludeNode describes the payload object of one entity: its columns,
	// the to-one relations flattened into the same object and the to-many
	// groups embedded as arrays.
	IncludeNode struct {
		Entity  *schema.Entity
		Columns []Projection
		One     []*OneInclude
		Many    []*ManyInclude
	}

	// OneInclude is an eagerly loaded to-one relation.
	OneInclude struct {
		Relation *schema.Relation
		Node     *IncludeNode
	}

	// ManyInclude is an eagerly loaded to-many relation, stored under Key as
	// an array of Node objects.
	ManyInclude struct {
		Key      string
		Relation *schema.Relation
		Node     *IncludeNode
	}
)

// IDKey returns the payload key of the id column.
func (n *IncludeNode) IDKey() string {
	for _, c := range n.Columns {
		if c.Column.Name == schema.IDColumn {
			return c.Key
		}
	}
	return ""
}

// include builds the include tree for the root entity and returns it along
// with the payload expression.
func (p *plan) include(shape Shape) (*IncludeNode, string, error) {
	var pairs []string
	node, err := p.build(shape, p.root, p.rootExt, p.scope, &pairs)
	if err != nil {
		return nil, "", err
	}
	return node, object(pairs), nil
}

// build expands shape for ent at ext. Join clauses go into sc, payload pairs
// into pairs.
func (p *plan) build(shape Shape, ent *schema.Entity, ext *Extent, sc *scope, pairs *[]string) (*IncludeNode, error) {
	node := &IncludeNode{Entity: ent}
	all := shape == nil
	if _, ok := shape[All]; ok {
		all = true
	}
	var ones, manys []string
	for name := range shape {
		if name == All {
			continue
		}
		_, isCol := ent.Column(name)
		_, isOne := ent.One(name)
		_, isMany := ent.Many(name)
		switch {
		case isCol:
		case isOne:
			ones = append(ones, name)
		case isMany:
			manys = append(manys, name)
		default:
			return nil, &schema.ResolutionError{Entity: ent.Name, Name: name}
		}
	}
	sort.Strings(ones)
	sort.Strings(manys)

	cols := []*schema.Column{ent.ID()}
	for _, c := range ent.Columns {
		if c.Name == schema.IDColumn {
			continue
		}
		if _, ok := shape[c.Name]; all || ok {
			cols = append(cols, c)
		}
	}
	for _, c := range cols {
		key := p.key()
		node.Columns = append(node.Columns, Projection{Key: key, Column: c})
		*pairs = append(*pairs, "'"+key+"', "+ext.Column(c))
	}

	for _, name := range ones {
		rel := ent.ToOne[name]
		next, target, err := sc.join(p, ext, ent, rel)
		if err != nil {
			return nil, err
		}
		child, err := p.build(shape[name], target, next, sc, pairs)
		if err != nil {
			return nil, err
		}
		node.One = append(node.One, &OneInclude{Relation: rel, Node: child})
	}

	for _, name := range manys {
		rel := ent.ToMany[name]
		group, pair, clause, err := p.group(shape[name], ext, ent, rel)
		if err != nil {
			return nil, err
		}
		sc.add(clause)
		*pairs = append(*pairs, pair)
		node.Many = append(node.Many, group)
	}
	return node, nil
}

// group plans a to-many relation as an aggregating derived table with its
// own join scope. It returns the include, its payload pair and the join
// clause for the parent scope.
func (p *plan) group(shape Shape, parent *Extent, owner *schema.Entity, rel *schema.Relation) (*ManyInclude, string, string, error) {
	target, err := p.registry.Entity(rel.Target)
	if err != nil {
		return nil, "", "", err
	}
	fk, ok := target.Column(rel.Column)
	if !ok {
		return nil, "", "", &schema.ResolutionError{Entity: target.Name, Name: rel.Column}
	}
	key := p.key()
	exporting := p.extent()
	working := p.extent()
	sc := newScope()
	var pairs []string
	child, err := p.build(shape, target, working, sc, &pairs)
	if err != nil {
		return nil, "", "", err
	}

	var b strings.Builder
	b.WriteString("LEFT JOIN (SELECT ")
	b.WriteString(working.Column(fk))
	b.WriteString(", jsonb_agg(")
	b.WriteString(object(pairs))
	b.WriteString(") AS _ FROM ")
	b.WriteString(quote(target.Source))
	b.WriteString(" AS ")
	b.WriteString(working.Name)
	if joins := sc.sql(); joins != "" {
		b.WriteString(" ")
		b.WriteString(joins)
	}
	if active := target.SoftDeleteColumn(); active != nil {
		b.WriteString(" WHERE ")
		b.WriteString(working.Column(active))
	}
	b.WriteString(" GROUP BY ")
	b.WriteString(working.Column(fk))
	b.WriteString(") AS ")
	b.WriteString(exporting.Name)
	b.WriteString(" ON ")
	b.WriteString(parent.Column(owner.ID()))
	b.WriteString(" = ")
	b.WriteString(exporting.Column(fk))

	pair := "'" + key + "', COALESCE(" + exporting.Name + "._, '[]'::jsonb)"
	return &ManyInclude{Key: key, Relation: rel, Node: child}, pair, b.String(), nil
}

// object renders pairs as a jsonb object, chunked and joined with ||.
func object(pairs []string) string {
	if len(pairs) == 0 {
		return "'{}'::jsonb"
	}
	var chunks []string
	for len(pairs) > 0 {
		n := min(chunkSize, len(pairs))
		chunks = append(chunks, "jsonb_build_object("+strings.Join(pairs[:n], ", ")+")")
		pairs = pairs[n:]
	}
	if len(chunks) == 1 {
		return chunks[0]
	}
	return "(" + strings.Join(chunks, " || ") + ")"
}
