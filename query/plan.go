package query

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/vlquery/codec"
	"github.com/syssam/vlquery/schema"
)

// ErrInternal is wrapped by errors that indicate a compiler defect rather
// than a bad input.
var ErrInternal = errors.New("vlquery: internal compiler error")

// marker delimits an unnumbered parameter reference in compiled text.
const marker = '\x00'

// plan is the per-statement planning state: extent and key counters, the
// bound parameters and the root join scope.
type plan struct {
	registry *schema.Registry
	codecs   *codec.Registry
	root     *schema.Entity
	rootExt  *Extent
	scope    *scope
	extents  int
	keys     int
	args     []any
}

func newPlan(registry *schema.Registry, codecs *codec.Registry, root *schema.Entity) *plan {
	p := &plan{registry: registry, codecs: codecs, root: root, scope: newScope()}
	p.rootExt = p.extent()
	return p
}

func (p *plan) extent() *Extent {
	e := &Extent{Name: extentName(p.extents)}
	p.extents++
	return e
}

// key returns the next payload key: base36 of a statement-wide counter.
func (p *plan) key() string {
	k := strconv.FormatInt(int64(p.keys), 36)
	p.keys++
	return k
}

// bind registers v as a parameter and returns its SQL reference, written
// through c when given. Slices other than []byte are bound as arrays.
func (p *plan) bind(v any, c codec.Codec) (string, error) {
	if arr, ok := array(v); ok {
		return p.ref(arr), nil
	}
	if c == nil {
		return p.ref(v), nil
	}
	pv, err := c.Param(v)
	if err != nil {
		return "", err
	}
	return c.Encode(p.ref(pv)), nil
}

func (p *plan) ref(v any) string {
	p.args = append(p.args, v)
	return string(marker) + strconv.Itoa(len(p.args)-1) + string(marker)
}

// finalize numbers parameter references in textual order and returns the
// arguments in the same order. Every bound parameter must be referenced
// exactly once.
func (p *plan) finalize(text string) (string, []any, error) {
	var (
		b    strings.Builder
		args = make([]any, 0, len(p.args))
		seen = make([]bool, len(p.args))
	)
	for {
		i := strings.IndexByte(text, marker)
		if i < 0 {
			b.WriteString(text)
			break
		}
		j := strings.IndexByte(text[i+1:], marker)
		if j < 0 {
			return "", nil, fmt.Errorf("%w: unterminated parameter reference", ErrInternal)
		}
		idx, err := strconv.Atoi(text[i+1 : i+1+j])
		if err != nil || idx >= len(seen) {
			return "", nil, fmt.Errorf("%w: bad parameter reference %q", ErrInternal, text[i+1:i+1+j])
		}
		if seen[idx] {
			return "", nil, fmt.Errorf("%w: parameter %d referenced twice", ErrInternal, idx)
		}
		seen[idx] = true
		args = append(args, p.args[idx])
		b.WriteString(text[:i])
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(len(args)))
		text = text[i+j+2:]
	}
	if len(args) != len(p.args) {
		return "", nil, fmt.Errorf("%w: %d parameters bound, %d referenced", ErrInternal, len(p.args), len(args))
	}
	return b.String(), args, nil
}

// array converts slice literals into driver array values.
func array(v any) (any, bool) {
	switch v := v.(type) {
	case nil, []byte:
		return nil, false
	case []string, []int64, []float64, []bool:
		return pq.Array(v), true
	case []any:
		return pq.Array(homogeneous(v)), true
	}
	// Fixed-size arrays such as uuid.UUID are scalars.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		return pq.Array(v), true
	}
	return nil, false
}

// homogeneous converts decoded JSON arrays into typed slices. Mixed arrays
// are bound as text.
func homogeneous(vs []any) any {
	var ints, floats, strs, bools int
	for _, v := range vs {
		switch v.(type) {
		case int64, int:
			ints++
		case float64:
			floats++
		case string:
			strs++
		case bool:
			bools++
		}
	}
	switch n := len(vs); {
	case n == 0 || strs == n:
		out := make([]string, n)
		for i, v := range vs {
			out[i], _ = v.(string)
		}
		return out
	case ints == n:
		out := make([]int64, n)
		for i, v := range vs {
			out[i] = toInt64(v)
		}
		return out
	case ints+floats == n:
		out := make([]float64, n)
		for i, v := range vs {
			if f, ok := v.(float64); ok {
				out[i] = f
			} else {
				out[i] = float64(toInt64(v))
			}
		}
		return out
	case bools == n:
		out := make([]bool, n)
		for i, v := range vs {
			out[i] = v.(bool)
		}
		return out
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
