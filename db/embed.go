// Package db embeds the database schema so the server and the seeder can
// migrate without shipping SQL files alongside the binary.
package db

import _ "embed"

// Schema holds the DDL for events, ticket types, and orders. Every
// statement is idempotent (CREATE ... IF NOT EXISTS), so applying it on
// startup is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
