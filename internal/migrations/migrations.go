// Package migrations embeds the schema SQL applied by cmd/migrate.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
