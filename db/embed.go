// Package db embeds the marketplace schema.
package db

import _ "embed"

// Schema creates the carts, orders and notifications tables and their
// indexes. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
