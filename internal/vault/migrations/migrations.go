// Package migrations embeds the vault database schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
