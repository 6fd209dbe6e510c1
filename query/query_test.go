package query_test

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/query"
	"github.com/syssam/vlquery/schema"
	"github.com/syssam/vlquery/schema/schematest"
)

func newQuery(entity string) *query.Query {
	return query.New(schematest.Shop(), nil, entity)
}

func TestScenario(t *testing.T) {
	q := newQuery("Order").
		Where(ir.And(
			ir.P("customer", "name").EQ("Acme"),
			ir.P("total").GT(100),
		)).
		OrderByDescending(ir.P("createdAt")).
		Limit(5)

	sql, args, err := q.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT jsonb_build_object('0', ext0."id", '1', ext0."total", '2', ext0."created_at", '3', ext0."customer_id") AS _ `+
		`FROM "orders" AS ext0 LEFT JOIN "customer" AS ext1 ON ext0."customer_id" = ext1."id" `+
		`WHERE ((ext1."name" = $1) AND (ext0."total" > $2)) ORDER BY ext0."created_at" desc LIMIT $3`, sql)
	assert.Equal(t, []any{"Acme", 100, 5}, args)
}

func TestBuildRepeatable(t *testing.T) {
	q := newQuery("Order").Where(ir.P("customer", "name").EQ("Acme")).Include("items")
	a, err := q.Build()
	require.NoError(t, err)
	b, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, a.Args, b.Args)
}

func TestJoinDedupe(t *testing.T) {
	sql, args, err := newQuery("Order").
		Where(ir.P("customer", "name").EQ("a"), ir.P("customer", "email").EQ("b")).
		OrderByAscending(ir.P("customer", "tier")).
		Include("customer").
		ToSQL()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, "LEFT JOIN"))
	assert.NotContains(t, sql, "ext2")
	assert.Contains(t, sql, `'4', ext1."id", '5', ext1."name", '6', ext1."email", '7', ext1."tier"`)
	assert.Contains(t, sql, `WHERE (ext1."name" = $1) AND (ext1."email" = $2) ORDER BY ext1."tier" asc`)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestCount(t *testing.T) {
	st, err := newQuery("Order").
		Where(ir.P("customer", "name").EQ("Acme")).
		OrderByAscending(ir.P("total")).
		Include("items").
		Limit(10).
		Count().
		Build()
	require.NoError(t, err)
	assert.True(t, st.Count)
	assert.Nil(t, st.Tree)
	assert.Equal(t, `SELECT COUNT(ext0."id") FROM "orders" AS ext0 LEFT JOIN "customer" AS ext1 ON ext0."customer_id" = ext1."id" WHERE (ext1."name" = $1)`, st.SQL)
	assert.Equal(t, []any{"Acme"}, st.Args)
}

func TestSoftDelete(t *testing.T) {
	t.Run("Root", func(t *testing.T) {
		sql, args, err := newQuery("Item").Where(ir.P("quantity").GT(2)).Count().ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(ext0."id") FROM "order_item" AS ext0 WHERE ext0."active" AND (ext0."quantity" > $1)`, sql)
		assert.Equal(t, []any{2}, args)
	})

	t.Run("Join", func(t *testing.T) {
		sql, _, err := newQuery("Item").Where(ir.P("product", "name").EQ("x")).Count().ToSQL()
		require.NoError(t, err)
		assert.Contains(t, sql, `LEFT JOIN "product" AS ext1 ON ext1."active" AND ext0."product_id" = ext1."id"`)
	})

	t.Run("Group", func(t *testing.T) {
		sql, args, err := newQuery("Order").Include("items").ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT jsonb_build_object('0', ext0."id", '1', ext0."total", '2', ext0."created_at", '3', ext0."customer_id", '4', COALESCE(ext1._, '[]'::jsonb)) AS _ `+
			`FROM "orders" AS ext0 `+
			`LEFT JOIN (SELECT ext2."order_id", jsonb_agg(jsonb_build_object('5', ext2."id", '6', ext2."order_id", '7', ext2."product_id", '8', ext2."quantity", '9', ext2."active")) AS _ `+
			`FROM "order_item" AS ext2 WHERE ext2."active" GROUP BY ext2."order_id") AS ext1 ON ext0."id" = ext1."order_id"`, sql)
		assert.Empty(t, args)
	})
}

func TestIncludeNested(t *testing.T) {
	st, err := newQuery("Customer").Include("orders.items.product").Build()
	require.NoError(t, err)

	// Group joins stay inside their derived tables.
	root := st.SQL[:strings.Index(st.SQL, "LEFT JOIN (")]
	assert.NotContains(t, root, `"product"`)
	assert.Contains(t, st.SQL, `LEFT JOIN "product" AS ext5 ON ext5."active" AND ext4."product_id" = ext5."id"`)
	assert.Equal(t, 2, strings.Count(st.SQL, "jsonb_agg("))

	tree := st.Tree
	require.NotNil(t, tree)
	assert.Equal(t, "Customer", tree.Entity.Name)
	assert.Equal(t, "0", tree.IDKey())
	require.Len(t, tree.Many, 1)
	orders := tree.Many[0]
	assert.Equal(t, "orders", orders.Relation.Name)
	assert.Equal(t, "4", orders.Key)
	require.Len(t, orders.Node.Many, 1)
	items := orders.Node.Many[0].Node
	require.Len(t, items.One, 1)
	product := items.One[0].Node
	assert.Equal(t, "Product", product.Entity.Name)
	assert.Len(t, product.Columns, 12)
}

func TestChunking(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		shape  query.Shape
		chunks int
	}{
		{"ten pairs", "Product", query.Shape{"sku": nil, "name": nil, "description": nil, "price": nil, "weight": nil, "stock": nil, "image": nil, "createdAt": nil, "releasedOn": nil}, 1},
		{"eleven pairs", "Product", query.Shape{"sku": nil, "name": nil, "description": nil, "price": nil, "weight": nil, "stock": nil, "image": nil, "createdAt": nil, "releasedOn": nil, "category": nil}, 2},
		{"all product columns", "Product", nil, 2},
		{"flattened to-one", "Item", query.Shape{query.All: nil, "product": nil, "order": nil}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := newQuery(tt.entity).IncludeShape(tt.shape).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.chunks, strings.Count(st.SQL, "jsonb_build_object("))
			if tt.chunks > 1 {
				assert.True(t, strings.HasPrefix(st.SQL, "SELECT (jsonb_build_object("))
				assert.Equal(t, tt.chunks-1, strings.Count(st.SQL, ") || jsonb_build_object("))
			}
		})
	}
}

func TestIncludeShape(t *testing.T) {
	sql, _, err := newQuery("Customer").IncludeShape(query.Shape{"name": nil}).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT jsonb_build_object('0', ext0."id", '1', ext0."name") AS _ FROM "customer" AS ext0`, sql)

	_, _, err = newQuery("Customer").IncludeShape(query.Shape{"invoices": nil}).ToSQL()
	var re *schema.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "invoices", re.Name)
}

func TestParseShape(t *testing.T) {
	s := query.ParseShape("items.product", "customer", "items")
	assert.Equal(t, query.Shape{
		query.All:  nil,
		"customer": {query.All: nil},
		"items":    {query.All: nil, "product": {query.All: nil}},
	}, s)

	merged := query.Shape{"name": nil}.Merge(query.Shape{"orders": nil})
	assert.Equal(t, query.Shape{"name": nil, "orders": nil}, merged)
	assert.Nil(t, query.Shape(nil).Merge(nil))
	assert.Equal(t, query.Shape{query.All: nil, "name": nil}, query.Shape(nil).Merge(query.Shape{"name": nil}))
}

func TestNull(t *testing.T) {
	tests := []struct {
		name string
		cond ir.Node
		want string
	}{
		{"is null", ir.P("total").IsNull(), `(ext0."total" IS NULL)`},
		{"not null", ir.P("total").NotNull(), `(ext0."total" IS NOT NULL)`},
		{"left null", &ir.Compare{Left: &ir.Null{}, Right: ir.P("total"), Op: ir.OpEQ}, `(ext0."total" IS NULL)`},
		{"relation", ir.P("customer").IsNull(), `(ext0."customer_id" IS NULL)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := newQuery("Order").Where(tt.cond).Count().ToSQL()
			require.NoError(t, err)
			assert.Equal(t, `SELECT COUNT(ext0."id") FROM "orders" AS ext0 WHERE `+tt.want, sql)
			assert.Empty(t, args)
		})
	}

	_, _, err := newQuery("Order").Where(ir.P("total").GT(nil)).ToSQL()
	assertIRError(t, err)
}

func TestDateParts(t *testing.T) {
	sql, args, err := newQuery("Order").Where(ir.P("createdAt", "year").EQ(2024)).Count().ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE (EXTRACT(YEAR FROM ext0."created_at") = $1)`)
	assert.Equal(t, []any{2024}, args)

	sql, _, err = newQuery("Order").OrderByAscending(ir.P("customer", "name")).OrderByAscending(ir.P("createdAt", "dayOfWeek")).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `ORDER BY ext1."name" asc, EXTRACT(DOW FROM ext0."created_at") asc`)

	_, _, err = newQuery("Order").Where(ir.P("createdAt", "fortnight").EQ(1)).ToSQL()
	assertIRError(t, err)
	_, _, err = newQuery("Order").Where(ir.P("createdAt", "year", "month").EQ(1)).ToSQL()
	assertIRError(t, err)
}

func TestResolution(t *testing.T) {
	tests := []struct {
		name string
		path []string
		want string
	}{
		{"unknown column", []string{"discount"}, "discount"},
		{"unknown nested", []string{"customer", "phone"}, "phone"},
		{"to-many", []string{"items", "quantity"}, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newQuery("Order").Where(ir.P(tt.path...).EQ(1)).ToSQL()
			var re *schema.ResolutionError
			require.True(t, errors.As(err, &re), "got %v", err)
			assert.Equal(t, tt.want, re.Name)
		})
	}

	_, _, err := newQuery("Invoice").ToSQL()
	var re *schema.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "", re.Entity)
}

func TestCodecBinding(t *testing.T) {
	id := uuid.MustParse("9b2f6c1e-4d1a-4c3e-8a55-0f6f3d7f2a10")
	tests := []struct {
		name   string
		entity string
		cond   ir.Node
		where  string
		args   []any
	}{
		{"enum", "Customer", ir.P("tier").EQ("gold"), `(ext0."tier" = $1::customer_tier)`, []any{"gold"}},
		{"enum reversed", "Customer", &ir.Compare{Left: ir.V("gold"), Right: ir.P("tier"), Op: ir.OpNEQ}, `($1::customer_tier != ext0."tier")`, []any{"gold"}},
		{"bytea", "Product", ir.P("image").EQ([]byte{0xca, 0xfe}), `ext0."active" AND (ext0."image" = decode($1, 'hex'))`, []any{"cafe"}},
		{"uuid", "Order", ir.P("customer", "id").EQ(id), `(ext1."id" = $1)`, []any{id.String()}},
		{"foreign key", "Order", ir.P("customer").EQ(id), `(ext0."customer_id" = $1)`, []any{id.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := newQuery(tt.entity).Where(tt.cond).Count().ToSQL()
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, "WHERE "+tt.where), sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestFunctions(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		cond  ir.Node
		where string
		args  []any
	}{
		{"startsWith", ir.P("name").Call("startsWith", "Ac"), `(ext0."name" LIKE $1 || '%')`, []any{"Ac"}},
		{"chain", ir.P("name").Call("lowercase").Call("endsWith", "me"), `(lower(ext0."name") LIKE '%' || $1)`, []any{"me"}},
		{"includes", ir.P("email").Call("includes", "@"), `(ext0."email" LIKE '%' || $1 || '%')`, []any{"@"}},
		{"substringOf", ir.P("name").Call("substringOf", "Acme Corp"), `($1 LIKE '%' || ext0."name" || '%')`, []any{"Acme Corp"}},
		{"length", ir.P("name").Call("length").GT(3), `((length(ext0."name")) > $1)`, []any{3}},
		{"hash default", ir.P("email").Call("hash").EQ("ab"), `((encode(digest(ext0."email", 'sha256'), 'hex')) = $1)`, []any{"ab"}},
		{"hash algorithm", ir.P("email").Call("hash", "md5").EQ("ab"), `((encode(digest(ext0."email", $1), 'hex')) = $2)`, []any{"md5", "ab"}},
		{"mirrored after call", ir.P("email").Call("hmac", "key").Call("startOf", "x"), `($1 LIKE encode(hmac(ext0."email", $2, 'sha256'), 'hex') || '%')`, []any{"x", "key"}},
		{"includedIn", ir.P("tier").Call("includedIn", []any{"gold", "silver"}), `(ext0."tier" = ANY($1))`, []any{pq.Array([]string{"gold", "silver"})}},
		{"valueOf", ir.P("name").Call("valueOf").EQ("x"), `((ext0."name") = $1)`, []any{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := newQuery("Customer").Where(tt.cond).Count().ToSQL()
			require.NoError(t, err)
			assert.Equal(t, `SELECT COUNT(ext0."id") FROM "customer" AS ext0 WHERE `+tt.where, sql)
			assert.Equal(t, tt.args, args)
		})
	}

	sql, args, err := newQuery("Order").Where(ir.P("createdAt").Call("isAfter", at)).Count().ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `(date_trunc('milliseconds', ext0."created_at") > date_trunc('milliseconds', $1))`)
	assert.Equal(t, []any{at}, args)

	sql, _, err = newQuery("Order").Where(ir.P("createdAt").Call("isToday")).Count().ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `(CAST(ext0."created_at" AS DATE) = CURRENT_DATE)`)
}

func TestFunctionErrors(t *testing.T) {
	tests := []struct {
		name string
		cond ir.Node
	}{
		{"unknown", ir.P("name").Call("soundex")},
		{"missing argument", ir.P("name").Call("startsWith")},
		{"extra argument", ir.P("name").Call("lowercase", "x")},
		{"range exceeded", ir.P("name").Call("hmac", "k", "sha1", "extra")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newQuery("Customer").Where(tt.cond).ToSQL()
			assertIRError(t, err)
		})
	}
}

func TestRegisterFunction(t *testing.T) {
	query.RegisterFunction("trimmed", query.Function{Min: 0, Max: 0, Render: func(body string, _ []string) string {
		return "btrim(" + body + ")"
	}})
	_, ok := query.LookupFunction("trimmed")
	require.True(t, ok)
	assert.Contains(t, query.FunctionNames(), "trimmed")

	sql, _, err := newQuery("Customer").Where(ir.P("name").Call("trimmed").EQ("x")).Count().ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `((btrim(ext0."name")) = $1)`)
}

func TestOrder(t *testing.T) {
	sql, _, err := newQuery("Order").
		OrderByAscending(ir.Or(ir.P("customer", "name"), ir.P("customer", "email"), ir.P("total"))).
		ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, `ORDER BY COALESCE(ext1."name", ext1."email", ext0."total") asc`), sql)

	_, _, err = newQuery("Order").OrderByAscending(ir.And(ir.P("total"), ir.P("createdAt"))).ToSQL()
	assertIRError(t, err)
	_, _, err = newQuery("Order").OrderBy(ir.P("total"), query.Direction("dsc")).ToSQL()
	assertIRError(t, err)
	_, _, err = newQuery("Order").OrderByAscending(ir.V(1)).ToSQL()
	assertIRError(t, err)
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want query.Direction
		ok   bool
	}{
		{"asc", query.Asc, true},
		{"desc", query.Desc, true},
		{"DESC", "", false},
		{"Asc", "", false},
		{" asc", "", false},
		{"dsc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := query.ParseDirection(tt.in)
			if !tt.ok {
				assertIRError(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestPaging(t *testing.T) {
	sql, args, err := newQuery("Customer").Page(2, 10).ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "LIMIT $1 OFFSET $2"))
	assert.Equal(t, []any{10, 20}, args)

	_, args, err = newQuery("Customer").Page(0, 0).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []any{query.DefaultPageSize, 0}, args)

	_, _, err = newQuery("Customer").Limit(-1).ToSQL()
	assertIRError(t, err)

	sql, args, err = newQuery("Customer").Where(ir.P("name").EQ("Acme")).Skip(5).ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "WHERE (ext0.\"name\" = $1) OFFSET $2"), sql)
	assert.Equal(t, []any{"Acme", 5}, args)

	sql, args, err = newQuery("Customer").Limit(0).ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "LIMIT $1"), sql)
	assert.Equal(t, []any{0}, args)
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

func TestParameterOrder(t *testing.T) {
	cond := ir.Or(
		ir.And(ir.P("customer", "name").EQ("a"), ir.P("total").GTE(1)),
		ir.And(
			ir.P("customer", "email").Call("hmac", "k", "sha1").Call("startOf", "x"),
			ir.P("createdAt", "month").LT(6),
		),
	)
	q := newQuery("Order").Where(cond).OrderByAscending(ir.P("customer", "name").Call("hash", "md5")).Skip(3).Limit(7)
	sql, args, err := q.ToSQL()
	require.NoError(t, err)

	assert.Len(t, args, ir.CountValues(cond)+1+2)
	matches := placeholder.FindAllStringSubmatch(sql, -1)
	require.Len(t, matches, len(args))
	for i, m := range matches {
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		assert.Equal(t, i+1, n, "placeholders ascend in textual order")
	}
	assert.Equal(t, []any{"a", 1, "x", "k", "sha1", 6, "md5", 7, 3}, args)
}

func TestParameterRenumbering(t *testing.T) {
	// startOf binds its prefix after the hash algorithm but renders it first.
	sql, args, err := newQuery("Customer").Where(ir.P("name").Call("hash", "sha1").Call("startOf", "x")).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `$1 LIKE encode(digest(ext0."name", $2), 'hex')`)
	assert.Equal(t, []any{"x", "sha1"}, args)
}

func TestClone(t *testing.T) {
	base := newQuery("Order").Where(ir.P("total").GT(1))
	a := base.Clone().Where(ir.P("total").LT(5))
	_, args, err := base.ToSQL()
	require.NoError(t, err)
	assert.Len(t, args, 1)
	_, args, err = a.ToSQL()
	require.NoError(t, err)
	assert.Len(t, args, 2)
}

func assertIRError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var e *ir.Error
	assert.True(t, errors.As(err, &e), "got %T: %v", err, err)
}
