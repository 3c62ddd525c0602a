// Package migrations holds the SQL schema applied by pkg/migrations.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS
