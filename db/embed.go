// Package db embeds the schema and the default product catalog.
package db

import _ "embed"

// Schema holds the idempotent DDL for products, orders and order items.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the JSON product list seeded when no catalog file is given.
//
//go:embed seed/products.json
var Catalog []byte
