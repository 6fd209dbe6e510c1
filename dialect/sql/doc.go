// Package sql adapts database/sql to the dialect.Driver contract.
//
// # Drivers
//
//   - Driver: executes statements on a *sql.DB.
//   - Conn: executes statements on any ExecQuerier (*sql.DB, *sql.Conn,
//     *sql.Tx). The pool package wraps one dedicated *sql.Conn per slot.
//   - DebugDriver: logs every statement, optionally with its arguments
//     inlined.
//   - SlowDriver: reports statements slower than a threshold.
//
// # Rows
//
// Query reads the whole result set into a Rows value before returning. A
// connection that drops while rows are streaming therefore fails the Query
// call itself, which is what lets a pool replay the statement.
//
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, "SELECT id FROM customer", []any{}, rows); err != nil {
//	    return err
//	}
//	ids, _ := rows.Column("id")
//
// # Named arguments
//
// Arguments of type NamedArg are referenced as @name:
//
//	drv.Exec(ctx, `UPDATE "customer" SET "name" = @name WHERE "id" = @id`,
//	    []any{sql.Named("name", "Acme"), sql.Named("id", id)}, nil)
//
// Rewrite numbers them after the positional arguments, longest-first in
// reverse-sorted order, and leaves the template untouched.
//
// # Session variables
//
// WithVar attaches session variables to a context. They are SET before the
// statement and RESET afterwards on connections that outlive it:
//
//	ctx = sql.WithVar(ctx, "statement_timeout", "5000")
package sql
