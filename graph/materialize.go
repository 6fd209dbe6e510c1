package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/syssam/vlquery/codec"
	"github.com/syssam/vlquery/query"
)

// Materializer decodes row payloads shaped by an include tree.
type Materializer struct {
	Tree   *query.IncludeNode
	Codecs *codec.Registry
	Loader Loader
}

// Materialize decodes a single row payload. The payload may be a []byte, a
// string or an already decoded map.
func (m *Materializer) Materialize(payload any) (*Entity, error) {
	obj, err := object(payload)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("vlquery/graph: null payload for %s", m.Tree.Entity.Name)
	}
	return m.entity(obj, m.Tree)
}

// MaterializeAll decodes a list of row payloads.
func (m *Materializer) MaterializeAll(payloads []any) ([]*Entity, error) {
	out := make([]*Entity, 0, len(payloads))
	for _, p := range payloads {
		e, err := m.Materialize(p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Materializer) codecs() *codec.Registry {
	if m.Codecs == nil {
		return codec.Default
	}
	return m.Codecs
}

func (m *Materializer) entity(obj map[string]any, node *query.IncludeNode) (*Entity, error) {
	e := New(node.Entity, m.Loader)
	for _, c := range node.Columns {
		raw, ok := obj[c.Key]
		if !ok {
			continue
		}
		if raw == nil {
			e.fields[c.Column.Name] = nil
			continue
		}
		v, err := m.codecs().Lookup(c.Column.Type).Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("vlquery/graph: %s.%s: %w", node.Entity.Name, c.Column.Name, err)
		}
		e.fields[c.Column.Name] = v
	}
	for _, one := range node.One {
		raw, ok := obj[one.Node.IDKey()]
		if !ok {
			continue
		}
		ref := e.refs[one.Relation.Name]
		if raw == nil {
			ref.Set(nil)
			continue
		}
		// To-one columns share the owner's object.
		child, err := m.entity(obj, one.Node)
		if err != nil {
			return nil, err
		}
		ref.Set(child)
	}
	for _, many := range node.Many {
		raw, ok := obj[many.Key]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if raw != nil && !ok {
			return nil, fmt.Errorf("vlquery/graph: %s.%s: expected array, got %T", node.Entity.Name, many.Relation.Name, raw)
		}
		children := make([]*Entity, 0, len(items))
		for _, item := range items {
			child, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("vlquery/graph: %s.%s: expected object, got %T", node.Entity.Name, many.Relation.Name, item)
			}
			ce, err := m.entity(child, many.Node)
			if err != nil {
				return nil, err
			}
			children = append(children, ce)
		}
		e.colls[many.Relation.Name].Set(children)
	}
	return e, nil
}

func object(payload any) (map[string]any, error) {
	var data []byte
	switch p := payload.(type) {
	case map[string]any:
		return p, nil
	case []byte:
		data = p
	case string:
		data = []byte(p)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("vlquery/graph: unexpected payload type %T", payload)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("vlquery/graph: decode payload: %w", err)
	}
	return obj, nil
}
