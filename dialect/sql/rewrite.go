package sql

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Rewrite replaces @name references of named arguments with positional
// placeholders. Positional arguments keep their indices and named ones are
// numbered after them in reverse-sorted name order, so that a name which is
// a prefix of another never captures its references. Named arguments that
// are not referenced are dropped.
//
// The template is never modified, so a statement can be rewritten again on
// every attempt.
func Rewrite(query string, args []any) (string, []any) {
	var (
		out   = make([]any, 0, len(args))
		named = make(map[string]any)
		names []string
	)
	for _, a := range args {
		na, ok := a.(sql.NamedArg)
		if !ok {
			out = append(out, a)
			continue
		}
		if _, dup := named[na.Name]; !dup {
			names = append(names, na.Name)
		}
		named[na.Name] = na.Value
	}
	if len(names) == 0 {
		return query, args
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		ref := "@" + name
		if !strings.Contains(query, ref) {
			continue
		}
		out = append(out, named[name])
		query = strings.ReplaceAll(query, ref, "$"+strconv.Itoa(len(out)))
	}
	return query, out
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Inline returns the statement with every positional placeholder replaced
// by the literal form of its argument. It is meant for logs only.
func Inline(query string, args []any) string {
	query, args = Rewrite(query, args)
	return placeholderRe.ReplaceAllStringFunc(query, func(m string) string {
		i, err := strconv.Atoi(m[1:])
		if err != nil || i < 1 || i > len(args) {
			return m
		}
		return literal(args[i-1])
	})
}

func literal(v any) string {
	if dv, ok := v.(driver.Valuer); ok {
		var err error
		if v, err = dv.Value(); err != nil {
			return pq.QuoteLiteral(fmt.Sprintf("<%v>", err))
		}
	}
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	case string:
		return pq.QuoteLiteral(v)
	case []byte:
		return pq.QuoteLiteral(string(v))
	case time.Time:
		return pq.QuoteLiteral(v.Format(time.RFC3339Nano))
	}
	return pq.QuoteLiteral(fmt.Sprint(v))
}
