package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syssam/vlquery/schema"
)

// Loader loads entities on behalf of lazy relation handles.
type Loader interface {
	// Load returns the entities of the named type whose column equals value,
	// with the given relations eagerly included.
	Load(ctx context.Context, entity, column string, value any, include ...string) ([]*Entity, error)
}

// Entity is one materialized row.
type Entity struct {
	schema *schema.Entity
	loader Loader

	mu     sync.RWMutex
	fields map[string]any
	refs   map[string]*Reference
	colls  map[string]*Collection
}

// New returns an entity of the given type with every relation lazy.
func New(s *schema.Entity, loader Loader) *Entity {
	e := &Entity{
		schema: s,
		loader: loader,
		fields: make(map[string]any, len(s.Columns)),
		refs:   make(map[string]*Reference, len(s.ToOne)),
		colls:  make(map[string]*Collection, len(s.ToMany)),
	}
	for name, rel := range s.ToOne {
		e.refs[name] = &Reference{owner: e, rel: rel}
	}
	for name, rel := range s.ToMany {
		e.colls[name] = &Collection{owner: e, rel: rel}
	}
	return e
}

// Type returns the entity name.
func (e *Entity) Type() string { return e.schema.Name }

// Schema returns the entity metadata.
func (e *Entity) Schema() *schema.Entity { return e.schema }

// ID returns the value of the id column.
func (e *Entity) ID() any {
	v, _ := e.Get(schema.IDColumn)
	return v
}

// Get returns the value of a column. The boolean is false if the column was
// not part of the fetched shape.
func (e *Entity) Get(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.fields[name]
	return v, ok
}

// Set sets the value of a column.
func (e *Entity) Set(name string, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[name] = v
}

// Fields returns a copy of the fetched columns.
func (e *Entity) Fields() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Ref returns the handle of a to-one relation, or nil if the entity has no
// such relation.
func (e *Entity) Ref(name string) *Reference { return e.refs[name] }

// Refs returns the handle of a to-many relation, or nil if the entity has no
// such relation.
func (e *Entity) Refs(name string) *Collection { return e.colls[name] }

// MarshalJSON encodes the fetched columns and relations. Lazy relations are
// omitted.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := e.Fields()
	for name, r := range e.refs {
		if v, err := r.Value(); err == nil {
			if v == nil {
				out[name] = nil
			} else {
				out[name] = v
			}
		}
	}
	for name, c := range e.colls {
		if vs, err := c.Value(); err == nil {
			out[name] = vs
		}
	}
	return json.Marshal(out)
}

// String implements fmt.Stringer.
func (e *Entity) String() string {
	return fmt.Sprintf("%s(%v)", e.schema.Name, e.ID())
}

// Reference is a to-one relation handle.
type Reference struct {
	owner   *Entity
	rel     *schema.Relation
	mu      sync.Mutex
	fetched bool
	value   *Entity
}

// Fetched reports whether the relation is loaded.
func (r *Reference) Fetched() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetched
}

// Value returns the loaded entity, nil if the relation is empty. It returns a
// *NotLoadedError if the relation is lazy.
func (r *Reference) Value() (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fetched {
		return nil, &NotLoadedError{Entity: r.owner.Type(), Relation: r.rel.Name}
	}
	return r.value, nil
}

// Set marks the relation fetched with the given value.
func (r *Reference) Set(v *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.fetched = v, true
}

// Fetch returns the related entity, loading it first if the relation is
// lazy. It returns nil for an empty relation.
func (r *Reference) Fetch(ctx context.Context) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetched {
		return r.value, nil
	}
	v, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.value, r.fetched = v, true
	return v, nil
}

func (r *Reference) load(ctx context.Context) (*Entity, error) {
	loader := r.owner.loader
	if loader == nil {
		return nil, &NotLoadedError{Entity: r.owner.Type(), Relation: r.rel.Name}
	}
	// The foreign key is enough when it was fetched with the owner.
	if fk, ok := r.owner.Get(r.rel.Column); ok {
		if fk == nil {
			return nil, nil
		}
		es, err := loader.Load(ctx, r.rel.Target, schema.IDColumn, fk)
		if err != nil {
			return nil, err
		}
		return first(es), nil
	}
	owners, err := loader.Load(ctx, r.owner.Type(), schema.IDColumn, r.owner.ID(), r.rel.Name)
	if err != nil {
		return nil, err
	}
	owner := first(owners)
	if owner == nil {
		return nil, nil
	}
	return owner.Ref(r.rel.Name).Value()
}

func first(es []*Entity) *Entity {
	if len(es) == 0 {
		return nil
	}
	return es[0]
}

// Collection is a to-many relation handle.
type Collection struct {
	owner   *Entity
	rel     *schema.Relation
	mu      sync.Mutex
	fetched bool
	values  []*Entity
}

// Fetched reports whether the relation is loaded.
func (c *Collection) Fetched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetched
}

// Value returns the loaded entities. It returns a *NotLoadedError if the
// relation is lazy.
func (c *Collection) Value() ([]*Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched {
		return nil, &NotLoadedError{Entity: c.owner.Type(), Relation: c.rel.Name}
	}
	return c.values, nil
}

// Set marks the relation fetched with the given entities.
func (c *Collection) Set(vs []*Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vs == nil {
		vs = []*Entity{}
	}
	c.values, c.fetched = vs, true
}

// Fetch returns the related entities, loading them first if the relation is
// lazy.
func (c *Collection) Fetch(ctx context.Context) ([]*Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched {
		return c.values, nil
	}
	loader := c.owner.loader
	if loader == nil {
		return nil, &NotLoadedError{Entity: c.owner.Type(), Relation: c.rel.Name}
	}
	vs, err := loader.Load(ctx, c.rel.Target, c.rel.Column, c.owner.ID())
	if err != nil {
		return nil, err
	}
	if vs == nil {
		vs = []*Entity{}
	}
	c.values, c.fetched = vs, true
	return vs, nil
}

// NotLoadedError is returned when reading a relation that was not loaded.
type NotLoadedError struct {
	Entity   string
	Relation string
}

// Error implements the error interface.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("vlquery: relation %q of %s was not loaded", e.Relation, e.Entity)
}
