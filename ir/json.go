package ir

import (
	"bytes"
	"encoding/json"
	"strings"
)

// wire is the JSON shape of a single node. Exactly one field is set.
type wire struct {
	Compare *wireBinary      `json:"compare,omitempty"`
	Logical *wireBinary      `json:"logical,omitempty"`
	Path    []string         `json:"path,omitempty"`
	Call    []json.RawMessage `json:"call,omitempty"`
	Value   json.RawMessage  `json:"value,omitempty"`
}

type wireBinary struct {
	Left     json.RawMessage `json:"left"`
	Right    json.RawMessage `json:"right"`
	Operator string          `json:"operator"`
}

type wireCall struct {
	Name       string            `json:"name"`
	Parameters []json.RawMessage `json:"parameters"`
}

// Decode decodes a tree from its JSON wire format.
func Decode(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Errorf("empty expression")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, Errorf("decode node: %v", err)
	}
	if len(keys) != 1 {
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		return nil, Errorf("node must have exactly one kind, got [%s]", strings.Join(names, ", "))
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, Errorf("decode node: %v", err)
	}
	switch {
	case w.Compare != nil:
		left, right, err := decodeBinary(w.Compare)
		if err != nil {
			return nil, err
		}
		op := CompareOp(w.Compare.Operator)
		if !op.Valid() {
			return nil, Errorf("unknown comparison operator %q", w.Compare.Operator)
		}
		return &Compare{Left: left, Right: right, Op: op}, nil
	case w.Logical != nil:
		left, right, err := decodeBinary(w.Logical)
		if err != nil {
			return nil, err
		}
		op := LogicalOp(strings.ToLower(w.Logical.Operator))
		if !op.Valid() {
			return nil, Errorf("unknown logical operator %q", w.Logical.Operator)
		}
		return &Logical{Left: left, Right: right, Op: op}, nil
	case w.Path != nil:
		if len(w.Path) == 0 {
			return nil, Errorf("empty path")
		}
		return &Path{Segments: w.Path}, nil
	case w.Call != nil:
		return decodeCall(w.Call)
	case keys["value"] != nil:
		return decodeValue(keys["value"])
	}
	for k := range keys {
		return nil, Errorf("unknown node kind %q", k)
	}
	return nil, Errorf("empty node")
}

func decodeBinary(b *wireBinary) (Node, Node, error) {
	left, err := Decode(b.Left)
	if err != nil {
		return nil, nil, err
	}
	right, err := Decode(b.Right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func decodeCall(raw []json.RawMessage) (Node, error) {
	c := &Call{Chain: make([]Link, 0, len(raw))}
	for _, r := range raw {
		var seg string
		if err := json.Unmarshal(r, &seg); err == nil {
			if len(c.Calls()) > 0 {
				return nil, Errorf("path segment %q follows a function call", seg)
			}
			c.Chain = append(c.Chain, Link{Segment: seg})
			continue
		}
		var wc wireCall
		if err := json.Unmarshal(r, &wc); err != nil {
			return nil, Errorf("decode call link: %v", err)
		}
		if wc.Name == "" {
			return nil, Errorf("call link without a name")
		}
		link := Link{Name: wc.Name}
		for _, p := range wc.Parameters {
			arg, err := Decode(p)
			if err != nil {
				return nil, err
			}
			link.Args = append(link.Args, arg)
		}
		c.Chain = append(c.Chain, link)
	}
	if len(c.Source()) == 0 {
		return nil, Errorf("call without a source path")
	}
	if len(c.Calls()) == 0 {
		return nil, Errorf("call chain without a function")
	}
	return c, nil
}

func decodeValue(raw json.RawMessage) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, Errorf("decode value: %v", err)
	}
	if v == nil {
		return &Null{}, nil
	}
	return &Value{Literal: normalize(v)}, nil
}

// normalize converts json.Number into int64 or float64.
func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalize(v[k])
		}
		return v
	}
	return v
}

// Encode encodes a tree into its JSON wire format.
func Encode(n Node) ([]byte, error) {
	return json.Marshal(toWire(n))
}

func toWire(n Node) any {
	switch n := n.(type) {
	case *Compare:
		return map[string]any{"compare": map[string]any{
			"left": toWire(n.Left), "right": toWire(n.Right), "operator": string(n.Op),
		}}
	case *Logical:
		return map[string]any{"logical": map[string]any{
			"left": toWire(n.Left), "right": toWire(n.Right), "operator": string(n.Op),
		}}
	case *Path:
		return map[string]any{"path": n.Segments}
	case *Call:
		chain := make([]any, 0, len(n.Chain))
		for _, l := range n.Chain {
			if !l.IsCall() {
				chain = append(chain, l.Segment)
				continue
			}
			params := make([]any, 0, len(l.Args))
			for _, a := range l.Args {
				params = append(params, toWire(a))
			}
			chain = append(chain, map[string]any{"name": l.Name, "parameters": params})
		}
		return map[string]any{"call": chain}
	case *Value:
		return map[string]any{"value": n.Literal}
	default:
		return map[string]any{"value": nil}
	}
}
