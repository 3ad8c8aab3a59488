// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the migration files in golang-migrate naming: NNNNNN_name.{up,down}.sql.
//
//go:embed *.sql
var FS embed.FS
