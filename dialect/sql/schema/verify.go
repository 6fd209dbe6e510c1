// Package schema checks entity metadata against the catalog of a live
// PostgreSQL database.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/vlquery/dialect"
	vsql "github.com/syssam/vlquery/dialect/sql"
	meta "github.com/syssam/vlquery/schema"
)

// ValidationError is one mismatch between the metadata and the database.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates that statements over the table will fail.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of a verification.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// Table is a table or view as read from information_schema.
type Table struct {
	Name    string
	Columns []*Column
}

// Column is a column as read from information_schema.
type Column struct {
	Name     string
	Type     string // udt_name, e.g. int4 or customer_tier
	Nullable bool
	Default  bool
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

const columnsQuery = `SELECT table_name, column_name, udt_name, is_nullable = 'YES', column_default IS NOT NULL ` +
	`FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ANY($1) ` +
	`ORDER BY table_name, ordinal_position`

// Inspect reads the named tables and views of the current schema. Names
// that do not exist are missing from the result.
func Inspect(ctx context.Context, drv dialect.ExecQuerier, tables []string) ([]*Table, error) {
	var rows vsql.Rows
	if err := drv.Query(ctx, columnsQuery, []any{pq.Array(tables)}, &rows); err != nil {
		return nil, fmt.Errorf("dialect/sql/schema: inspect tables: %w", err)
	}
	var (
		out  []*Table
		last *Table
	)
	for _, row := range rows.Values {
		if len(row) != 5 {
			return nil, fmt.Errorf("dialect/sql/schema: unexpected column count %d", len(row))
		}
		table := text(row[0])
		if last == nil || last.Name != table {
			last = &Table{Name: table}
			out = append(out, last)
		}
		last.Columns = append(last.Columns, &Column{
			Name:     text(row[1]),
			Type:     text(row[2]),
			Nullable: row[3] == true,
			Default:  row[4] == true,
		})
	}
	return out, nil
}

// text reads a catalog name, which drivers return as string or []byte.
func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// VerifyOption configures verification.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	allowUnmappedRequired bool
	allowTypeMismatch     bool
}

// AllowUnmappedRequired reports NOT NULL columns without a default that no
// entity maps as warnings instead of errors. Inserts into such tables fail.
func AllowUnmappedRequired() VerifyOption {
	return func(c *verifyConfig) {
		c.allowUnmappedRequired = true
	}
}

// AllowTypeMismatch reports columns whose type differs from the metadata as
// warnings instead of errors.
func AllowTypeMismatch() VerifyOption {
	return func(c *verifyConfig) {
		c.allowTypeMismatch = true
	}
}

// Verify compares the metadata of every entity with the inspected tables.
//
// Example:
//
//	tables, err := schema.Inspect(ctx, drv, schema.Tables(reg))
//	result := schema.Verify(reg, tables)
//	if result.HasErrors() {
//	    log.Fatal("metadata does not match the database:\n", result)
//	}
func Verify(reg *meta.Registry, tables []*Table, opts ...VerifyOption) *ValidationResult {
	cfg := &verifyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	result := &ValidationResult{}
	for _, e := range reg.Entities() {
		t, ok := byName[e.Source]
		if !ok {
			kind := "table"
			if e.View {
				kind = "view"
			}
			result.Errors = append(result.Errors, &ValidationError{
				Table:    e.Source,
				Message:  fmt.Sprintf("%s of entity %s not found", kind, e.Name),
				Breaking: true,
			})
			continue
		}
		verifyTable(e, t, cfg, result)
	}
	return result
}

func verifyTable(e *meta.Entity, t *Table, cfg *verifyConfig, result *ValidationResult) {
	report := func(err *ValidationError, allowed bool) {
		if allowed {
			result.Warnings = append(result.Warnings, err)
		} else {
			result.Errors = append(result.Errors, err)
		}
	}
	mapped := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		mapped[c.Physical] = true
		col := t.Column(c.Physical)
		if col == nil {
			result.Errors = append(result.Errors, &ValidationError{
				Table:    t.Name,
				Column:   c.Physical,
				Message:  fmt.Sprintf("column of %s.%s not found", e.Name, c.Name),
				Breaking: true,
			})
			continue
		}
		if want := UDTName(c.Type); want != col.Type {
			report(&ValidationError{
				Table:   t.Name,
				Column:  col.Name,
				Message: fmt.Sprintf("type is %s, metadata declares %s", col.Type, c.Type),
			}, cfg.allowTypeMismatch)
		}
	}
	if sd := e.SoftDeleteColumn(); sd != nil {
		if col := t.Column(sd.Physical); col != nil {
			if col.Type != "bool" {
				result.Errors = append(result.Errors, &ValidationError{
					Table:    t.Name,
					Column:   col.Name,
					Message:  "soft-delete column is not boolean",
					Breaking: true,
				})
			}
			if col.Nullable {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   t.Name,
					Column:  col.Name,
					Message: "nullable soft-delete column; NULL rows are treated as deleted",
				})
			}
		}
	}
	if e.View {
		return
	}
	for _, col := range t.Columns {
		if mapped[col.Name] || col.Nullable || col.Default {
			continue
		}
		report(&ValidationError{
			Table:    t.Name,
			Column:   col.Name,
			Message:  "NOT NULL column without default is not mapped; inserts will fail",
			Breaking: true,
		}, cfg.allowUnmappedRequired)
	}
}

// Tables returns the source tables of every entity in sorted order.
func Tables(reg *meta.Registry) []string {
	var names []string
	for _, e := range reg.Entities() {
		names = append(names, e.Source)
	}
	sort.Strings(names)
	return names
}

// Check inspects the tables of reg and verifies them.
func Check(ctx context.Context, drv dialect.ExecQuerier, reg *meta.Registry, opts ...VerifyOption) (*ValidationResult, error) {
	tables, err := Inspect(ctx, drv, Tables(reg))
	if err != nil {
		return nil, err
	}
	return Verify(reg, tables, opts...), nil
}

// udtAliases maps SQL type names to the udt_name PostgreSQL reports.
var udtAliases = map[string]string{
	"integer":          "int4",
	"int":              "int4",
	"serial":           "int4",
	"smallint":         "int2",
	"bigint":           "int8",
	"bigserial":        "int8",
	"real":             "float4",
	"double precision": "float8",
	"boolean":          "bool",
	"decimal":          "numeric",
	"char":             "bpchar",
}

// UDTName returns the udt_name of a metadata type tag.
func UDTName(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if u, ok := udtAliases[typ]; ok {
		return u
	}
	return typ
}
