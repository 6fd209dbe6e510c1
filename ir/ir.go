// Package ir defines the serializable expression tree used for filters and
// orderings. Trees are produced upstream (by a source-to-tree front end) and
// compiled to SQL by the query package.
//
// A tree is built from six node kinds:
//
//   - Compare: left OP right, OP one of = != < > <= >=
//   - Logical: left and/or right
//   - Path: a dotted walk over columns and to-one relations, e.g. customer.name
//   - Call: a function chain applied to a path, e.g. name.lowercase().startsWith("a")
//   - Value: a literal, always bound as a query parameter
//   - Null: the null marker, rewritten to IS NULL / IS NOT NULL
//
// Trees can be decoded from the JSON wire format with Decode or built in Go
// with the helpers in builder.go:
//
//	ir.And(
//	    ir.P("customer", "name").EQ("Acme"),
//	    ir.P("total").GT(100),
//	)
package ir

import "fmt"

// Node is a sealed interface implemented by pointers to the node kinds of
// this package.
type Node interface {
	node()
}

// CompareOp is a comparison operator.
type CompareOp string

// Comparison operators.
const (
	OpEQ  CompareOp = "="
	OpNEQ CompareOp = "!="
	OpLT  CompareOp = "<"
	OpGT  CompareOp = ">"
	OpLTE CompareOp = "<="
	OpGTE CompareOp = ">="
)

// Valid reports whether op is a known comparison operator.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEQ, OpNEQ, OpLT, OpGT, OpLTE, OpGTE:
		return true
	}
	return false
}

// LogicalOp is a boolean connective.
type LogicalOp string

// Logical operators.
const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
)

// Valid reports whether op is a known logical operator.
func (op LogicalOp) Valid() bool {
	return op == OpAnd || op == OpOr
}

type (
	// Compare compares two operands.
	Compare struct {
		Left  Node
		Right Node
		Op    CompareOp
	}

	// Logical combines two boolean operands.
	Logical struct {
		Left  Node
		Right Node
		Op    LogicalOp
	}

	// Path walks columns and to-one relations starting at the query root.
	// A trailing segment that is neither a column nor a relation selects a
	// date/time part of the preceding column.
	Path struct {
		Segments []string
	}

	// Call applies a chain of functions to a source path. Leading links
	// without a function name form the source path.
	Call struct {
		Chain []Link
	}

	// Link is one element of a call chain.
	Link struct {
		// Segment is set for path links.
		Segment string
		// Name and Args are set for function links.
		Name string
		Args []Node
	}

	// Value is a literal bound as a positional parameter.
	Value struct {
		Literal any
	}

	// Null is the null marker.
	Null struct{}
)

func (*Compare) node() {}
func (*Logical) node() {}
func (*Path) node()    {}
func (*Call) node()    {}
func (*Value) node()   {}
func (*Null) node()    {}

// IsCall reports whether the link is a function call.
func (l Link) IsCall() bool { return l.Name != "" }

// Source returns the path segments preceding the first function link.
func (c Call) Source() []string {
	var segs []string
	for _, l := range c.Chain {
		if l.IsCall() {
			break
		}
		segs = append(segs, l.Segment)
	}
	return segs
}

// Calls returns the function links of the chain, in application order.
func (c Call) Calls() []Link {
	var calls []Link
	for _, l := range c.Chain {
		if l.IsCall() {
			calls = append(calls, l)
		}
	}
	return calls
}

// Error is returned for malformed trees: unknown operators, unknown
// functions, bad arity and shape violations. It is never retried.
type Error struct {
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "vlquery: invalid expression: " + e.Msg
}

// Errorf returns a new *Error.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Walk calls fn for n and all its descendants in left-to-right order.
// Walking stops early when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Compare:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Logical:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Call:
		for _, l := range n.Chain {
			for _, a := range l.Args {
				Walk(a, fn)
			}
		}
	}
}

// CountValues returns the number of Value nodes in the tree.
func CountValues(n Node) int {
	count := 0
	Walk(n, func(n Node) bool {
		if _, ok := n.(*Value); ok {
			count++
		}
		return true
	})
	return count
}
