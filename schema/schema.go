package schema

import (
	"fmt"
	"sort"
)

// IDColumn is the logical name of the identity column every entity carries.
const IDColumn = "id"

type (
	// Column maps a logical column name to its physical name and type tag.
	Column struct {
		Name     string `yaml:"name"`
		Physical string `yaml:"physical,omitempty"`
		Type     string `yaml:"type"`
	}

	// Relation describes a foreign-key association.
	Relation struct {
		Name   string `yaml:"-"`
		Column string `yaml:"column"`
		Target string `yaml:"target"`
	}

	// Entity describes one mapped table or view. A view entity is read
	// only and cannot be soft deleted.
	Entity struct {
		Name       string               `yaml:"name"`
		Source     string               `yaml:"source,omitempty"`
		View       bool                 `yaml:"view,omitempty"`
		Columns    []*Column            `yaml:"columns"`
		ToOne      map[string]*Relation `yaml:"toOne,omitempty"`
		ToMany     map[string]*Relation `yaml:"toMany,omitempty"`
		SoftDelete string               `yaml:"softDelete,omitempty"`

		columns map[string]*Column
	}
)

// Column returns the column with the given logical name.
func (e *Entity) Column(name string) (*Column, bool) {
	if e.columns == nil {
		e.index()
	}
	c, ok := e.columns[name]
	return c, ok
}

// ID returns the identity column.
func (e *Entity) ID() *Column {
	c, _ := e.Column(IDColumn)
	return c
}

// SoftDeleteColumn returns the active-flag column, or nil if the entity is
// hard deleted.
func (e *Entity) SoftDeleteColumn() *Column {
	if e.SoftDelete == "" {
		return nil
	}
	c, _ := e.Column(e.SoftDelete)
	return c
}

// One returns the to-one relation with the given name.
func (e *Entity) One(name string) (*Relation, bool) {
	r, ok := e.ToOne[name]
	return r, ok
}

// Many returns the to-many relation with the given name.
func (e *Entity) Many(name string) (*Relation, bool) {
	r, ok := e.ToMany[name]
	return r, ok
}

// OneNames returns the to-one relation names in sorted order.
func (e *Entity) OneNames() []string { return sortedKeys(e.ToOne) }

// ManyNames returns the to-many relation names in sorted order.
func (e *Entity) ManyNames() []string { return sortedKeys(e.ToMany) }

func (e *Entity) index() {
	e.columns = make(map[string]*Column, len(e.Columns))
	for _, c := range e.Columns {
		if c.Physical == "" {
			c.Physical = c.Name
		}
		e.columns[c.Name] = c
	}
	if e.Source == "" {
		e.Source = e.Name
	}
	for name, r := range e.ToOne {
		r.Name = name
	}
	for name, r := range e.ToMany {
		r.Name = name
	}
}

func sortedKeys(m map[string]*Relation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reference is a to-one relation of Owner pointing at some entity.
type Reference struct {
	Owner    *Entity
	Relation *Relation
}

// Registry is a validated, read-only set of entities.
type Registry struct {
	entities map[string]*Entity
	names    []string
}

// New validates the given entities and returns a registry over them.
func New(entities ...*Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if e == nil || e.Name == "" {
			return nil, fmt.Errorf("vlquery/schema: entity without a name")
		}
		if _, ok := r.entities[e.Name]; ok {
			return nil, fmt.Errorf("vlquery/schema: duplicate entity %q", e.Name)
		}
		e.index()
		r.entities[e.Name] = e
		r.names = append(r.names, e.Name)
	}
	sort.Strings(r.names)
	for _, name := range r.names {
		if err := r.check(r.entities[name]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(entities ...*Entity) *Registry {
	r, err := New(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) check(e *Entity) error {
	if len(e.columns) != len(e.Columns) {
		return fmt.Errorf("vlquery/schema: entity %s: duplicate column", e.Name)
	}
	if e.ID() == nil {
		return fmt.Errorf("vlquery/schema: entity %s: missing %q column", e.Name, IDColumn)
	}
	if e.View && e.SoftDelete != "" {
		return fmt.Errorf("vlquery/schema: entity %s: a view cannot be soft deleted", e.Name)
	}
	if e.SoftDelete != "" && e.SoftDeleteColumn() == nil {
		return fmt.Errorf("vlquery/schema: entity %s: soft-delete column %q not found", e.Name, e.SoftDelete)
	}
	for _, name := range e.OneNames() {
		rel := e.ToOne[name]
		if _, ok := e.Column(name); ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q shadows a column", e.Name, name)
		}
		if _, ok := r.entities[rel.Target]; !ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q targets unknown entity %q", e.Name, name, rel.Target)
		}
		if _, ok := e.Column(rel.Column); !ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q: foreign key %q not found", e.Name, name, rel.Column)
		}
	}
	for _, name := range e.ManyNames() {
		rel := e.ToMany[name]
		if _, ok := e.Column(name); ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q shadows a column", e.Name, name)
		}
		if _, ok := e.ToOne[name]; ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q declared twice", e.Name, name)
		}
		target, ok := r.entities[rel.Target]
		if !ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q targets unknown entity %q", e.Name, name, rel.Target)
		}
		if _, ok := target.Column(rel.Column); !ok {
			return fmt.Errorf("vlquery/schema: entity %s: relation %q: foreign key %s.%s not found", e.Name, name, target.Name, rel.Column)
		}
	}
	return nil
}

// Entity returns the entity with the given name.
func (r *Registry) Entity(name string) (*Entity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, &ResolutionError{Name: name}
}

// Entities returns all entities sorted by name.
func (r *Registry) Entities() []*Entity {
	es := make([]*Entity, 0, len(r.names))
	for _, name := range r.names {
		es = append(es, r.entities[name])
	}
	return es
}

// References returns every to-one relation, across all entities, that
// targets the named entity. The result is sorted by owner and relation name.
func (r *Registry) References(target string) []Reference {
	var refs []Reference
	for _, name := range r.names {
		owner := r.entities[name]
		for _, rn := range owner.OneNames() {
			if rel := owner.ToOne[rn]; rel.Target == target {
				refs = append(refs, Reference{Owner: owner, Relation: rel})
			}
		}
	}
	return refs
}

// ResolutionError is returned when a name matches no entity, column or
// relation.
type ResolutionError struct {
	// Entity is the entity the name was resolved against. It is empty when
	// the name itself is an entity name.
	Entity string
	Name   string
	// Path is the full dotted path being resolved, if any.
	Path string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch {
	case e.Entity == "":
		return fmt.Sprintf("vlquery: unknown entity %q", e.Name)
	case e.Path != "" && e.Path != e.Name:
		return fmt.Sprintf("vlquery: cannot resolve %q in %q on %s", e.Name, e.Path, e.Entity)
	default:
		return fmt.Sprintf("vlquery: cannot resolve %q on %s", e.Name, e.Entity)
	}
}
