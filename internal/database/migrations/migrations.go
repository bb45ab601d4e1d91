// Package migrations embeds the per-dialect schema migrations applied by
// golang-migrate.
package migrations

import "embed"

// FS holds mysql/*.sql and sqlite/*.sql.
//
//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
