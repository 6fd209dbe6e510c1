package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vsql "github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/schema/schematest"
)

// shopTables is the catalog of a database that matches schematest.Shop.
func shopTables() []*Table {
	return []*Table{
		{Name: "customer", Columns: []*Column{
			{Name: "id", Type: "uuid", Default: true},
			{Name: "name", Type: "text"},
			{Name: "email", Type: "varchar", Nullable: true},
			{Name: "tier", Type: "customer_tier"},
		}},
		{Name: "order_item", Columns: []*Column{
			{Name: "id", Type: "uuid", Default: true},
			{Name: "order_id", Type: "uuid"},
			{Name: "product_id", Type: "uuid"},
			{Name: "quantity", Type: "int4"},
			{Name: "active", Type: "bool", Default: true},
		}},
		{Name: "orders", Columns: []*Column{
			{Name: "id", Type: "uuid", Default: true},
			{Name: "total", Type: "numeric"},
			{Name: "created_at", Type: "timestamptz", Default: true},
			{Name: "customer_id", Type: "uuid"},
		}},
		{Name: "product", Columns: []*Column{
			{Name: "id", Type: "uuid", Default: true},
			{Name: "sku", Type: "varchar"},
			{Name: "name", Type: "text"},
			{Name: "description", Type: "text", Nullable: true},
			{Name: "price", Type: "numeric"},
			{Name: "weight", Type: "float8", Nullable: true},
			{Name: "stock", Type: "int4"},
			{Name: "image", Type: "bytea", Nullable: true},
			{Name: "created_at", Type: "timestamptz"},
			{Name: "released_on", Type: "date", Nullable: true},
			{Name: "category", Type: "product_category"},
			{Name: "active", Type: "bool"},
		}},
	}
}

func table(tables []*Table, name string) *Table {
	for _, t := range tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func([]*Table) []*Table
		opts         []VerifyOption
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:   "Match",
			mutate: func(ts []*Table) []*Table { return ts },
		},
		{
			name:       "MissingTable",
			mutate:     func(ts []*Table) []*Table { return ts[1:] },
			wantErrors: []string{"customer: table of entity Customer not found"},
		},
		{
			name: "MissingColumn",
			mutate: func(ts []*Table) []*Table {
				o := table(ts, "orders")
				o.Columns = o.Columns[:2]
				return ts
			},
			wantErrors: []string{
				"orders.created_at: column of Order.createdAt not found",
				"orders.customer_id: column of Order.customerId not found",
			},
		},
		{
			name: "TypeMismatch",
			mutate: func(ts []*Table) []*Table {
				table(ts, "order_item").Column("quantity").Type = "int8"
				return ts
			},
			wantErrors: []string{"order_item.quantity: type is int8, metadata declares int4"},
		},
		{
			name: "AllowTypeMismatch",
			mutate: func(ts []*Table) []*Table {
				table(ts, "order_item").Column("quantity").Type = "int8"
				return ts
			},
			opts:         []VerifyOption{AllowTypeMismatch()},
			wantWarnings: []string{"order_item.quantity: type is int8, metadata declares int4"},
		},
		{
			name: "SoftDelete",
			mutate: func(ts []*Table) []*Table {
				c := table(ts, "product").Column("active")
				c.Type, c.Nullable = "int2", true
				return ts
			},
			opts: []VerifyOption{AllowTypeMismatch()},
			wantErrors: []string{
				"product.active: soft-delete column is not boolean",
			},
			wantWarnings: []string{
				"product.active: type is int2, metadata declares bool",
				"product.active: nullable soft-delete column; NULL rows are treated as deleted",
			},
		},
		{
			name: "UnmappedRequired",
			mutate: func(ts []*Table) []*Table {
				c := table(ts, "customer")
				c.Columns = append(c.Columns,
					&Column{Name: "region", Type: "text"},
					&Column{Name: "note", Type: "text", Nullable: true},
					&Column{Name: "updated_at", Type: "timestamptz", Default: true},
				)
				return ts
			},
			wantErrors: []string{"customer.region: NOT NULL column without default is not mapped; inserts will fail"},
		},
		{
			name: "AllowUnmappedRequired",
			mutate: func(ts []*Table) []*Table {
				c := table(ts, "customer")
				c.Columns = append(c.Columns, &Column{Name: "region", Type: "text"})
				return ts
			},
			opts:         []VerifyOption{AllowUnmappedRequired()},
			wantWarnings: []string{"customer.region: NOT NULL column without default is not mapped; inserts will fail"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Verify(schematest.Shop(), tt.mutate(shopTables()), tt.opts...)
			assert.Equal(t, tt.wantErrors, messages(result.Errors))
			assert.Equal(t, tt.wantWarnings, messages(result.Warnings))
		})
	}
}

func TestVerifyView(t *testing.T) {
	summary := &Table{Name: "customer_summary", Columns: []*Column{
		{Name: "id", Type: "uuid"},
		{Name: "customer_id", Type: "uuid"},
		{Name: "order_count", Type: "int8"},
		{Name: "region", Type: "text"},
	}}
	result := Verify(schematest.Reporting(), append(shopTables(), summary))
	assert.Empty(t, messages(result.Errors), "unmapped NOT NULL columns do not matter on a view")
	assert.Empty(t, messages(result.Warnings))

	result = Verify(schematest.Reporting(), shopTables())
	assert.Equal(t, []string{"customer_summary: view of entity CustomerSummary not found"}, messages(result.Errors))
}

func messages(errs []*ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

func TestValidationResultString(t *testing.T) {
	r := &ValidationResult{}
	assert.Equal(t, "No issues found", r.String())

	r.Errors = append(r.Errors, &ValidationError{Table: "orders", Message: "table of entity Order not found", Breaking: true})
	r.Warnings = append(r.Warnings, &ValidationError{Table: "product", Column: "active", Message: "nullable"})
	assert.Equal(t, "Errors:\n  - orders: table of entity Order not found [BREAKING]\nWarnings:\n  - product.active: nullable\n", r.String())
	assert.True(t, r.HasErrors())
	assert.True(t, r.HasWarnings())
}

func TestUDTName(t *testing.T) {
	tests := map[string]string{
		"integer":          "int4",
		"Boolean":          "bool",
		"double precision": "float8",
		"timestamptz":      "timestamptz",
		"customer_tier":    "customer_tier",
	}
	for in, want := range tests {
		assert.Equal(t, want, UDTName(in), in)
	}
}

func TestTables(t *testing.T) {
	assert.Equal(t, []string{"customer", "order_item", "orders", "product"}, Tables(schematest.Shop()))
}

func TestInspect(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	drv := vsql.OpenDB(db)

	mock.ExpectQuery(columnsQuery).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "udt_name", "nullable", "has_default"}).
			AddRow("customer", "id", "uuid", false, true).
			AddRow("customer", "email", []byte("varchar"), true, false).
			AddRow("orders", "id", "uuid", false, true))
	tables, err := Inspect(context.Background(), drv, []string{"customer", "orders"})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "customer", tables[0].Name)
	assert.Equal(t, &Column{Name: "email", Type: "varchar", Nullable: true}, tables[0].Column("email"))
	assert.Equal(t, &Column{Name: "id", Type: "uuid", Default: true}, tables[1].Column("id"))
	assert.Nil(t, tables[1].Column("total"))

	mock.ExpectQuery(columnsQuery).WithArgs(sqlmock.AnyArg()).WillReturnError(errors.New("permission denied"))
	_, err = Inspect(context.Background(), drv, []string{"customer"})
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"table_name", "column_name", "udt_name", "nullable", "has_default"})
	for _, tb := range shopTables() {
		for _, c := range tb.Columns {
			rows.AddRow(tb.Name, c.Name, c.Type, c.Nullable, c.Default)
		}
	}
	mock.ExpectQuery(columnsQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)
	result, err := Check(context.Background(), vsql.OpenDB(db), schematest.Shop())
	require.NoError(t, err)
	assert.False(t, result.HasErrors(), result.String())
	assert.False(t, result.HasWarnings(), result.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
