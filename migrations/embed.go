// Package migrations embeds the goose SQL migrations for the local SQLite store
// and the remote Postgres mirror. Migrations are additive only.
package migrations

import "embed"

// FS holds sqlite/*.sql and postgres/*.sql.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
