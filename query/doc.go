// Package query compiles expression trees into parameterized PostgreSQL.
//
// A Query is planned per Build call. Planning allocates table aliases
// (ext0, ext1, ...) from a statement-wide counter, resolves paths against
// the schema and joins each to-one relation once per scope. Every row of a
// select carries a single jsonb payload aliased _, built from the fetch
// shape:
//
//	SELECT jsonb_build_object('0', ext0."id", '1', ext0."total", ...) AS _
//	FROM "orders" AS ext0
//	LEFT JOIN "customer" AS ext1 ON ext0."customer_id" = ext1."id"
//	WHERE (ext1."name" = $1)
//	ORDER BY ext0."created_at" desc
//	LIMIT $2
//
// To-one relations in the shape are flattened into the same object. To-many
// relations are aggregated by a derived table joined on the parent id and
// appear as a single key holding a jsonb array. Payload keys are base36
// indexes; the IncludeNode tree of the Statement maps them back to columns.
//
// Literals are always bound as parameters. Parameters are numbered in the
// order they appear in the statement text.
package query
