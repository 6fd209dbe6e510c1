package query

import (
	"strings"

	"github.com/syssam/vlquery/ir"
)

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection parses a direction token. Only "asc" and "desc" are
// accepted, in lower case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Asc, Desc:
		return d, nil
	}
	return "", ir.Errorf("unknown sort direction %q", s)
}

// Order is one ORDER BY term. Expr is a path, a call chain or an OR of
// those, which sorts by the first non-null operand.
type Order struct {
	Expr      ir.Node
	Direction Direction
}

func (p *plan) order(o Order) (string, error) {
	if o.Direction != Asc && o.Direction != Desc {
		return "", ir.Errorf("unknown sort direction %q", o.Direction)
	}
	var operands []ir.Node
	if err := flattenOr(o.Expr, &operands); err != nil {
		return "", err
	}
	exprs := make([]string, 0, len(operands))
	for _, n := range operands {
		s, err := p.expr(n, nil)
		if err != nil {
			return "", err
		}
		exprs = append(exprs, s)
	}
	expr := exprs[0]
	if len(exprs) > 1 {
		expr = "COALESCE(" + strings.Join(exprs, ", ") + ")"
	}
	return expr + " " + string(o.Direction), nil
}

func flattenOr(n ir.Node, out *[]ir.Node) error {
	switch n := n.(type) {
	case *ir.Path, *ir.Call:
		*out = append(*out, n)
		return nil
	case *ir.Logical:
		if n.Op != ir.OpOr {
			return ir.Errorf("orderings can only be combined with or, got %q", n.Op)
		}
		if err := flattenOr(n.Left, out); err != nil {
			return err
		}
		return flattenOr(n.Right, out)
	case nil:
		return ir.Errorf("missing ordering expression")
	default:
		return ir.Errorf("cannot order by %T", n)
	}
}
