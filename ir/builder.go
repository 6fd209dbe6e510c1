package ir

// P returns a path over the given segments.
//
// Usage:
//
//	ir.P("customer", "name").EQ("Acme")
//	ir.P("createdAt", "year").GTE(2024)
func P(segments ...string) *Path {
	return &Path{Segments: segments}
}

// V returns a literal operand. A nil literal is the Null marker.
func V(v any) Node {
	if v == nil {
		return &Null{}
	}
	return &Value{Literal: v}
}

// operand converts a Go value into a node, passing nodes through.
func operand(v any) Node {
	if n, ok := v.(Node); ok {
		return n
	}
	return V(v)
}

func cmp(left Node, op CompareOp, v any) *Compare {
	return &Compare{Left: left, Right: operand(v), Op: op}
}

// EQ returns a predicate that checks if the path equals v.
func (p *Path) EQ(v any) *Compare { return cmp(p, OpEQ, v) }

// NEQ returns a predicate that checks if the path does not equal v.
func (p *Path) NEQ(v any) *Compare { return cmp(p, OpNEQ, v) }

// GT returns a predicate that checks if the path is greater than v.
func (p *Path) GT(v any) *Compare { return cmp(p, OpGT, v) }

// GTE returns a predicate that checks if the path is greater than or equal to v.
func (p *Path) GTE(v any) *Compare { return cmp(p, OpGTE, v) }

// LT returns a predicate that checks if the path is less than v.
func (p *Path) LT(v any) *Compare { return cmp(p, OpLT, v) }

// LTE returns a predicate that checks if the path is less than or equal to v.
func (p *Path) LTE(v any) *Compare { return cmp(p, OpLTE, v) }

// IsNull returns a predicate that checks if the path is NULL.
func (p *Path) IsNull() *Compare { return cmp(p, OpEQ, nil) }

// NotNull returns a predicate that checks if the path is not NULL.
func (p *Path) NotNull() *Compare { return cmp(p, OpNEQ, nil) }

// Call appends a function link to the path and returns the resulting chain.
// Arguments that are not nodes are wrapped with V.
//
//	ir.P("name").Call("lowercase").Call("startsWith", "a")
func (p *Path) Call(name string, args ...any) *Call {
	c := &Call{Chain: make([]Link, 0, len(p.Segments)+1)}
	for _, s := range p.Segments {
		c.Chain = append(c.Chain, Link{Segment: s})
	}
	return c.Call(name, args...)
}

// Call appends another function link to the chain.
func (c *Call) Call(name string, args ...any) *Call {
	link := Link{Name: name}
	for _, a := range args {
		link.Args = append(link.Args, operand(a))
	}
	c.Chain = append(c.Chain, link)
	return c
}

// EQ returns a predicate that checks if the call result equals v.
func (c *Call) EQ(v any) *Compare { return cmp(c, OpEQ, v) }

// NEQ returns a predicate that checks if the call result does not equal v.
func (c *Call) NEQ(v any) *Compare { return cmp(c, OpNEQ, v) }

// GT returns a predicate that checks if the call result is greater than v.
func (c *Call) GT(v any) *Compare { return cmp(c, OpGT, v) }

// LT returns a predicate that checks if the call result is less than v.
func (c *Call) LT(v any) *Compare { return cmp(c, OpLT, v) }

// And folds the given nodes into a left-deep conjunction.
// It returns nil when called without arguments.
func And(nodes ...Node) Node { return fold(OpAnd, nodes) }

// Or folds the given nodes into a left-deep disjunction.
func Or(nodes ...Node) Node { return fold(OpOr, nodes) }

func fold(op LogicalOp, nodes []Node) Node {
	var acc Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if acc == nil {
			acc = n
			continue
		}
		acc = &Logical{Left: acc, Right: n, Op: op}
	}
	return acc
}
