// Package db embeds the storefront schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for every storefront table. It is applied
// on startup by postgres.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
