// Package vlquery is the runtime of a relational mapping layer for
// PostgreSQL. It compiles expression trees over an entity schema into
// parameterized SQL, runs them through a connection pool that survives
// connection loss, and rebuilds entity graphs from the results.
//
// # Client
//
// A Client binds a driver to a schema registry:
//
//	reg, err := schema.Load("shop.yaml")
//	mgr, db, err := pool.Open("postgres", dsn, pool.WithSize(8))
//	if err := mgr.Connect(ctx); err != nil {
//		// retried in the background; statements wait for it
//	}
//	client, err := vlquery.NewClient(vlquery.Driver(mgr), vlquery.Schema(reg))
//
// Open does the same from a config.Config.
//
// # Queries
//
// Client.Set returns an entity set. Builder methods start a Query:
//
//	orders, err := client.Set("Order").
//		Where(ir.P("customer", "name").EQ("Acme"), ir.P("total").GT(100)).
//		Include("customer", "items.product").
//		OrderByDescending(ir.P("createdAt")).
//		Limit(20).
//		All(ctx)
//
// Each row comes back as a single jsonb payload which is materialized into
// a graph.Entity. Included relations are fetched; the others are lazy and
// load through the client on Fetch. BatchLoads makes concurrent Fetch
// calls share one statement; see contrib/dataloader.
//
// # Writes
//
// Set.Create, Set.Update and Set.Delete write single rows by id. Delete
// refuses to remove a row that live rows still reference and flags
// soft-deleted entities inactive instead of removing them.
//
// # Policies
//
// Policy installs privacy rules that run before every query and write. Query
// rules may add conditions, for example to keep a tenant's rows apart;
// denied operations satisfy IsDenied.
//
// # Schema checks
//
// Client.Verify compares the entity metadata with the catalog of the
// connected database and reports missing tables and columns, type
// mismatches and required columns no entity maps.
//
// # Errors
//
// Every error kind has an IsXxx helper:
//
//	e, err := client.Set("Customer").Find(ctx, id)
//	if vlquery.IsNotFound(err) {
//		...
//	}
package vlquery
