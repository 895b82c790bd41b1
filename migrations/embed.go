// Package migrations embeds the schema files applied at startup.
package migrations

import "embed"

// FS holds every numbered .sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
