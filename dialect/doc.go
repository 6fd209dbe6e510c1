// Package dialect defines the driver contract between the vlquery client and
// the database.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Close() error
//	    Dialect() string
//	}
//
// Statements are PostgreSQL. Two implementations ship with the module:
//
//   - dialect/sql: a thin adapter over database/sql.
//   - dialect/sql/pool: a fixed set of dedicated connections with a
//     reconnect state machine that queues requests during outages.
//
// Both accept args as []any. Entries of type database/sql.NamedArg are
// referenced in the statement as @name and rewritten to positional
// placeholders before execution.
//
// # Usage
//
//	db, err := sql.Open("postgres", dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr := pool.New(pool.DB(db), pool.WithSize(8))
//	if err := mgr.Connect(ctx); err != nil {
//	    log.Print(err) // keeps retrying in the background
//	}
//	client := vlquery.NewClient(vlquery.Driver(mgr), vlquery.Schema(reg))
package dialect
