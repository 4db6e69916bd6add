// Package migrations embeds the Postgres schema for the analysis store.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
