package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/query"
)

// queryFlags are the query-shaping flags shared by compile and query.
type queryFlags struct {
	where   string
	include []string
	order   []string
	limit   int
	skip    int
	count   bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.where, "where", "w", "", "Filter as an IR JSON document, or @file to read it from a file")
	cmd.Flags().StringSliceVarP(&f.include, "include", "i", nil, "Relation paths to load eagerly (e.g. customer,items.product)")
	cmd.Flags().StringArrayVarP(&f.order, "order", "o", nil, `Ordering term "path [asc|desc]", repeatable`)
	cmd.Flags().IntVar(&f.limit, "limit", -1, "Maximum number of rows")
	cmd.Flags().IntVar(&f.skip, "skip", -1, "Number of rows to skip")
	cmd.Flags().BoolVar(&f.count, "count", false, "Count matching rows instead of fetching them")
}

// builder is implemented by both query.Query and vlquery.Query.
type builder[T any] interface {
	Where(...ir.Node) T
	Include(...string) T
	OrderBy(ir.Node, query.Direction) T
	Limit(int) T
	Skip(int) T
}

// apply shapes q according to the flags.
func apply[T builder[T]](q T, f *queryFlags) (T, error) {
	if f.where != "" {
		cond, err := readWhere(f.where)
		if err != nil {
			return q, err
		}
		q = q.Where(cond)
	}
	if len(f.include) > 0 {
		q = q.Include(f.include...)
	}
	for _, o := range f.order {
		expr, dir, err := parseOrder(o)
		if err != nil {
			return q, err
		}
		q = q.OrderBy(expr, dir)
	}
	if f.limit >= 0 {
		q = q.Limit(f.limit)
	}
	if f.skip >= 0 {
		q = q.Skip(f.skip)
	}
	return q, nil
}

func readWhere(s string) (ir.Node, error) {
	data := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read filter %s: %w", path, err)
		}
	}
	return ir.Decode(data)
}

// parseOrder parses "customer.name desc". The direction defaults to asc.
func parseOrder(s string) (ir.Node, query.Direction, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, "", fmt.Errorf("invalid order %q: expected \"path [asc|desc]\"", s)
	}
	dir := query.Asc
	if len(fields) == 2 {
		var err error
		if dir, err = query.ParseDirection(fields[1]); err != nil {
			return nil, "", err
		}
	}
	return ir.P(strings.Split(fields[0], ".")...), dir, nil
}
