package vlquery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/vlquery/codec"
	vsql "github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/dialect/sql/sqlgraph"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/privacy"
	"github.com/syssam/vlquery/schema"
)

// Mutation operations recorded in MutationError.
const (
	OpCreate = privacy.OpCreate
	OpUpdate = privacy.OpUpdate
	OpDelete = privacy.OpDelete
)

// Create inserts a row with the given logical column values and returns its
// id. Columns left out take their database defaults, except the soft-delete
// flag of an entity which is set to true.
func (s *Set) Create(ctx context.Context, values map[string]any) (any, error) {
	ent, err := s.client.registry.Entity(s.entity)
	if err != nil {
		return nil, err
	}
	if err := writable(ent); err != nil {
		return nil, err
	}
	if values, err = s.authorize(ctx, OpCreate, nil, values); err != nil {
		return nil, err
	}
	if active := ent.SoftDeleteColumn(); active != nil {
		if _, ok := values[active.Name]; !ok {
			values = withValue(values, active.Name, true)
		}
	}
	as, err := s.assign(ent, values)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(ent.Source))
	if len(as.columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		b.WriteString(strings.Join(as.columns, ", "))
		b.WriteString(") VALUES (")
		b.WriteString(strings.Join(as.refs, ", "))
		b.WriteString(")")
	}
	b.WriteString(" RETURNING ")
	b.WriteString(pq.QuoteIdentifier(ent.ID().Physical))

	rows := &vsql.Rows{}
	if err := s.client.query(ctx, b.String(), as.args, rows); err != nil {
		return nil, mutationErr(ent.Name, OpCreate, err)
	}
	if rows.Len() != 1 || len(rows.Values[0]) != 1 {
		return nil, &MutationError{Entity: ent.Name, Op: OpCreate, Err: fmt.Errorf("unexpected result shape (%d rows)", rows.Len())}
	}
	raw := rows.Values[0][0]
	if raw == nil {
		return nil, nil
	}
	id, err := s.client.codecs.Lookup(ent.ID().Type).Decode(raw)
	if err != nil {
		return nil, &MutationError{Entity: ent.Name, Op: OpCreate, Err: err}
	}
	return id, nil
}

// Update sets the given logical column values on the live row with the
// given id. The id column itself cannot be updated.
func (s *Set) Update(ctx context.Context, id any, values map[string]any) error {
	ent, err := s.client.registry.Entity(s.entity)
	if err != nil {
		return err
	}
	if err := writable(ent); err != nil {
		return err
	}
	if _, ok := values[schema.IDColumn]; ok {
		return &ValidationError{Name: schema.IDColumn, Err: errors.New("the id column cannot be updated")}
	}
	if values, err = s.authorize(ctx, OpUpdate, id, values); err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("vlquery: update %s: no values", ent.Name)
	}
	as, err := s.assign(ent, values)
	if err != nil {
		return err
	}
	idRef, idArg, err := s.idParam(ent, id)
	if err != nil {
		return err
	}
	sets := make([]string, len(as.columns))
	for i := range as.columns {
		sets[i] = as.columns[i] + " = " + as.refs[i]
	}
	query := "UPDATE " + pq.QuoteIdentifier(ent.Source) +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + pq.QuoteIdentifier(ent.ID().Physical) + " = " + idRef
	if active := ent.SoftDeleteColumn(); active != nil {
		query += " AND " + pq.QuoteIdentifier(active.Physical)
	}
	return s.affectOne(ctx, ent, OpUpdate, query, append(as.args, idArg))
}

// Delete removes the row with the given id, or flags it inactive if the
// entity is soft deleted. It fails with an IntegrityError while live rows
// of any table entity still reference it through a to-one relation.
func (s *Set) Delete(ctx context.Context, id any) error {
	ent, err := s.client.registry.Entity(s.entity)
	if err != nil {
		return err
	}
	if err := writable(ent); err != nil {
		return err
	}
	if _, err := s.authorize(ctx, OpDelete, id, nil); err != nil {
		return err
	}
	// Rows hidden from the caller by query rules still block the delete.
	actx := privacy.DecisionContext(ctx, privacy.Allow)
	for _, ref := range s.client.registry.References(ent.Name) {
		if ref.Owner.View {
			continue
		}
		n, err := s.client.Set(ref.Owner.Name).Where(ir.P(ref.Relation.Column).EQ(id)).Count(actx)
		if err != nil {
			return err
		}
		if n > 0 {
			return &IntegrityError{Entity: ent.Name, Referrer: ref.Owner.Name, Relation: ref.Relation.Name, Count: n}
		}
	}
	idRef, idArg, err := s.idParam(ent, id)
	if err != nil {
		return err
	}
	where := " WHERE " + pq.QuoteIdentifier(ent.ID().Physical) + " = " + idRef
	var query string
	if active := ent.SoftDeleteColumn(); active != nil {
		col := pq.QuoteIdentifier(active.Physical)
		query = "UPDATE " + pq.QuoteIdentifier(ent.Source) + " SET " + col + " = false" + where + " AND " + col
	} else {
		query = "DELETE FROM " + pq.QuoteIdentifier(ent.Source) + where
	}
	return s.affectOne(ctx, ent, OpDelete, query, []any{idArg})
}

func writable(ent *schema.Entity) error {
	if ent.View {
		return &ValidationError{Entity: ent.Name, Err: ErrReadOnly}
	}
	return nil
}

func (s *Set) affectOne(ctx context.Context, ent *schema.Entity, op, query string, args []any) error {
	var res vsql.Result
	if err := s.client.exec(ctx, query, args, &res); err != nil {
		if op == OpDelete && sqlgraph.IsForeignKeyConstraintError(err) {
			return &IntegrityError{Entity: ent.Name, Count: -1, Err: err}
		}
		return mutationErr(ent.Name, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &MutationError{Entity: ent.Name, Op: op, Err: err}
	}
	if n == 0 {
		return &CardinalityError{Entity: ent.Name, Count: 0}
	}
	return nil
}

// assignment holds the quoted columns, parameter references and named
// arguments of a write, in column name order.
type assignment struct {
	columns []string
	refs    []string
	args    []any
}

func (s *Set) assign(ent *schema.Entity, values map[string]any) (*assignment, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	as := &assignment{}
	for _, name := range names {
		col, ok := ent.Column(name)
		if !ok {
			return nil, &SchemaResolutionError{Entity: ent.Name, Name: name}
		}
		ref, arg, err := param(s.client.codecs.Lookup(col.Type), col.Name, values[name])
		if err != nil {
			return nil, err
		}
		as.columns = append(as.columns, pq.QuoteIdentifier(col.Physical))
		as.refs = append(as.refs, ref)
		as.args = append(as.args, arg)
	}
	return as, nil
}

func (s *Set) idParam(ent *schema.Entity, id any) (string, any, error) {
	return param(s.client.codecs.Lookup(ent.ID().Type), "_pk", id)
}

// param binds v as the named argument name, converted and written through
// c. Nil values are bound as NULL without conversion.
func param(c codec.Codec, name string, v any) (string, any, error) {
	ref := c.Encode("@" + name)
	if v == nil {
		return ref, vsql.Named(name, nil), nil
	}
	pv, err := c.Param(v)
	if err != nil {
		return "", nil, &ValidationError{Name: name, Err: err}
	}
	return ref, vsql.Named(name, pv), nil
}

func withValue(m map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func mutationErr(entity, op string, err error) error {
	if sqlgraph.IsConstraintError(err) {
		return ConstraintError{msg: err.Error(), wrap: err}
	}
	return &MutationError{Entity: entity, Op: op, Err: err}
}
