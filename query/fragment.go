package query

import (
	"fmt"
	"strings"

	"github.com/syssam/vlquery/codec"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/schema"
)

// dateParts maps path modifiers to EXTRACT fields.
var dateParts = map[string]string{
	"year":         "YEAR",
	"month":        "MONTH",
	"date":         "DAY",
	"hour":         "HOUR",
	"minute":       "MINUTE",
	"second":       "SECOND",
	"millisecond":  "MILLISECONDS",
	"week":         "WEEK",
	"dayOfWeek":    "DOW",
	"microseconds": "MICROSECONDS",
}

// expr lowers n to SQL. A Value node is bound through c when c is set.
func (p *plan) expr(n ir.Node, c codec.Codec) (string, error) {
	switch n := n.(type) {
	case *ir.Compare:
		return p.compare(n)
	case *ir.Logical:
		return p.logical(n)
	case *ir.Path:
		return p.path(n.Segments)
	case *ir.Call:
		return p.call(n)
	case *ir.Value:
		if n.Literal == nil {
			return "NULL", nil
		}
		ref, err := p.bind(n.Literal, c)
		if err != nil {
			return "", ir.Errorf("bind %T: %v", n.Literal, err)
		}
		return ref, nil
	case *ir.Null:
		return "NULL", nil
	case nil:
		return "", ir.Errorf("missing operand")
	default:
		return "", ir.Errorf("unexpected node %T", n)
	}
}

func isNull(n ir.Node) bool {
	switch n := n.(type) {
	case *ir.Null:
		return true
	case *ir.Value:
		return n.Literal == nil
	}
	return false
}

func (p *plan) compare(n *ir.Compare) (string, error) {
	if !n.Op.Valid() {
		return "", ir.Errorf("unknown comparison operator %q", n.Op)
	}
	if ln, rn := isNull(n.Left), isNull(n.Right); ln || rn {
		if ln && rn {
			return "", ir.Errorf("both operands of %q are null", n.Op)
		}
		other := n.Left
		if ln {
			other = n.Right
		}
		x, err := p.expr(other, nil)
		if err != nil {
			return "", err
		}
		switch n.Op {
		case ir.OpEQ:
			return "(" + x + " IS NULL)", nil
		case ir.OpNEQ:
			return "(" + x + " IS NOT NULL)", nil
		default:
			return "", ir.Errorf("null can only be compared with = or !=, got %q", n.Op)
		}
	}
	l, err := p.expr(n.Left, p.staticCodec(n.Right))
	if err != nil {
		return "", err
	}
	r, err := p.expr(n.Right, p.staticCodec(n.Left))
	if err != nil {
		return "", err
	}
	return "(" + l + " " + string(n.Op) + " " + r + ")", nil
}

func (p *plan) logical(n *ir.Logical) (string, error) {
	if !n.Op.Valid() {
		return "", ir.Errorf("unknown logical operator %q", n.Op)
	}
	l, err := p.expr(n.Left, nil)
	if err != nil {
		return "", err
	}
	r, err := p.expr(n.Right, nil)
	if err != nil {
		return "", err
	}
	return "(" + l + " " + strings.ToUpper(string(n.Op)) + " " + r + ")", nil
}

// path resolves segments from the root entity, joining to-one relations in
// the root scope as it goes.
func (p *plan) path(segs []string) (string, error) {
	if len(segs) == 0 {
		return "", ir.Errorf("empty path")
	}
	ent, ext := p.root, p.rootExt
	for i, seg := range segs {
		last := i == len(segs)-1
		if col, ok := ent.Column(seg); ok {
			ref := ext.Column(col)
			switch rest := segs[i+1:]; len(rest) {
			case 0:
				return ref, nil
			case 1:
				part, ok := dateParts[rest[0]]
				if !ok {
					return "", ir.Errorf("unknown date part %q in %q", rest[0], strings.Join(segs, "."))
				}
				return "EXTRACT(" + part + " FROM " + ref + ")", nil
			default:
				return "", ir.Errorf("at most one date part may follow column %q in %q", seg, strings.Join(segs, "."))
			}
		}
		if rel, ok := ent.One(seg); ok {
			if last {
				fk, ok := ent.Column(rel.Column)
				if !ok {
					return "", &schema.ResolutionError{Entity: ent.Name, Name: rel.Column, Path: strings.Join(segs, ".")}
				}
				return ext.Column(fk), nil
			}
			next, target, err := p.scope.join(p, ext, ent, rel)
			if err != nil {
				return "", err
			}
			ent, ext = target, next
			continue
		}
		return "", &schema.ResolutionError{Entity: ent.Name, Name: seg, Path: strings.Join(segs, ".")}
	}
	return "", fmt.Errorf("%w: path %q fell through", ErrInternal, strings.Join(segs, "."))
}

// staticColumn resolves a path to its terminal column without planning
// joins. It returns nil for anything that is not a plain column reference.
func (p *plan) staticColumn(n ir.Node) *schema.Column {
	path, ok := n.(*ir.Path)
	if !ok {
		return nil
	}
	ent := p.root
	for i, seg := range path.Segments {
		last := i == len(path.Segments)-1
		if col, ok := ent.Column(seg); ok {
			if last {
				return col
			}
			return nil
		}
		rel, ok := ent.One(seg)
		if !ok {
			return nil
		}
		if last {
			col, _ := ent.Column(rel.Column)
			return col
		}
		target, err := p.registry.Entity(rel.Target)
		if err != nil {
			return nil
		}
		ent = target
	}
	return nil
}

func (p *plan) staticCodec(n ir.Node) codec.Codec {
	if col := p.staticColumn(n); col != nil {
		return p.codecs.Lookup(col.Type)
	}
	return nil
}

func (p *plan) call(n *ir.Call) (string, error) {
	body, err := p.path(n.Source())
	if err != nil {
		return "", err
	}
	calls := n.Calls()
	if len(calls) == 0 {
		return "", ir.Errorf("call chain without a function")
	}
	for _, l := range calls {
		fn, ok := LookupFunction(l.Name)
		if !ok {
			return "", ir.Errorf("unknown function %q", l.Name)
		}
		if !fn.accepts(len(l.Args)) {
			return "", ir.Errorf("function %q expects %s, got %d", l.Name, arity(fn), len(l.Args))
		}
		args := make([]string, 0, len(l.Args))
		for _, a := range l.Args {
			s, err := p.expr(a, nil)
			if err != nil {
				return "", err
			}
			args = append(args, s)
		}
		body = fn.Render(body, args)
	}
	return "(" + body + ")", nil
}

func arity(fn Function) string {
	switch {
	case fn.Min == fn.Max && fn.Min == 1:
		return "1 argument"
	case fn.Min == fn.Max:
		return fmt.Sprintf("%d arguments", fn.Min)
	default:
		return fmt.Sprintf("%d to %d arguments", fn.Min, fn.Max)
	}
}
