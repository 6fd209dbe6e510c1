// Package schema holds the entity metadata the query compiler resolves paths
// against: physical source names, logical to physical column maps with type
// tags, to-one and to-many relation descriptors and the optional soft-delete
// flag.
//
// Metadata is produced by an external generator and is usually loaded from a
// YAML document:
//
//	entities:
//	  - name: Order
//	    source: orders
//	    softDelete: active
//	    columns:
//	      - {name: id, type: uuid}
//	      - {name: createdAt, physical: created_at, type: timestamptz}
//	      - {name: customerId, physical: customer_id, type: uuid}
//	    toOne:
//	      customer: {column: customerId, target: Customer}
//	    toMany:
//	      items: {column: orderId, target: Item}
//
// For a to-one relation the column is the foreign key on the owning entity.
// For a to-many relation it is the foreign key on the target entity.
package schema
