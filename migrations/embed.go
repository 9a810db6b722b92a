// Package migrations embeds the SQL schema for every supported dialect.
// Files follow golang-migrate naming: NNNNNN_name.up.sql / NNNNNN_name.down.sql.
package migrations

import "embed"

// Postgres holds the PostgreSQL migrations
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the SQLite migrations
//
//go:embed sqlite/*.sql
var SQLite embed.FS
