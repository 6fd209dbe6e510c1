// Package graph rebuilds entity graphs from the jsonb row payloads produced
// by the query package.
//
// # Entities
//
// An Entity holds the decoded columns of one row, keyed by logical column
// name, and one handle per relation declared in the schema:
//
//	order.Get("total")           // decimal.Decimal
//	order.Ref("customer")        // *Reference, a to-one handle
//	order.Refs("items")          // *Collection, a to-many handle
//
// # Loading states
//
// A handle is either fetched or lazy. Relations that were part of the
// include tree are fetched while materializing:
//
//   - to-one: the related id key is present in the payload. A null id means
//     the relation is fetched and empty.
//   - to-many: the group key is present. A null or empty array means the
//     relation is fetched and empty.
//
// Every other relation stays lazy. Value returns a NotLoadedError for a
// lazy handle; Fetch loads it through the Loader the entity was
// materialized with and caches the result:
//
//	customer, err := order.Ref("customer").Fetch(ctx)
//	items, err := order.Refs("items").Fetch(ctx)
//
// # Payload format
//
// Payload keys are the base36 keys of the query.IncludeNode tree. Column
// values are decoded through the codec registered for the column type.
// Numbers are decoded as json.Number so integer and numeric columns keep
// their precision.
package graph
