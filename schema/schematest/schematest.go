// Package schematest provides a small shop schema for tests.
package schematest

import "github.com/syssam/vlquery/schema"

// ShopYAML is a four-entity shop: customers own orders, orders own items,
// items reference products. Items and products are soft deleted.
const ShopYAML = `
entities:
  - name: Customer
    source: customer
    columns:
      - {name: id, type: uuid}
      - {name: name, type: text}
      - {name: email, type: varchar}
      - {name: tier, type: customer_tier}
    toMany:
      orders: {column: customerId, target: Order}

  - name: Order
    source: orders
    columns:
      - {name: id, type: uuid}
      - {name: total, type: numeric}
      - {name: createdAt, physical: created_at, type: timestamptz}
      - {name: customerId, physical: customer_id, type: uuid}
    toOne:
      customer: {column: customerId, target: Customer}
    toMany:
      items: {column: orderId, target: Item}

  - name: Item
    source: order_item
    softDelete: active
    columns:
      - {name: id, type: uuid}
      - {name: orderId, physical: order_id, type: uuid}
      - {name: productId, physical: product_id, type: uuid}
      - {name: quantity, type: int4}
      - {name: active, type: bool}
    toOne:
      order: {column: orderId, target: Order}
      product: {column: productId, target: Product}

  - name: Product
    source: product
    softDelete: active
    columns:
      - {name: id, type: uuid}
      - {name: sku, type: varchar}
      - {name: name, type: text}
      - {name: description, type: text}
      - {name: price, type: numeric}
      - {name: weight, type: float8}
      - {name: stock, type: int4}
      - {name: image, type: bytea}
      - {name: createdAt, physical: created_at, type: timestamptz}
      - {name: releasedOn, physical: released_on, type: date}
      - {name: category, type: product_category}
      - {name: active, type: bool}
    toMany:
      items: {column: productId, target: Item}
`

// Shop returns a fresh registry for ShopYAML.
func Shop() *schema.Registry {
	r, err := schema.Parse([]byte(ShopYAML))
	if err != nil {
		panic(err)
	}
	return r
}

// ReportingYAML is ShopYAML plus a read-only view summarizing customers.
const ReportingYAML = ShopYAML + `
  - name: CustomerSummary
    source: customer_summary
    view: true
    columns:
      - {name: id, type: uuid}
      - {name: customerId, physical: customer_id, type: uuid}
      - {name: orderCount, physical: order_count, type: int8}
    toOne:
      customer: {column: customerId, target: Customer}
`

// Reporting returns a fresh registry for ReportingYAML.
func Reporting() *schema.Registry {
	r, err := schema.Parse([]byte(ReportingYAML))
	if err != nil {
		panic(err)
	}
	return r
}
