// Package db embeds the SQL schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for every table the service owns. It is applied
// idempotently by repository.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
