// Package migrations embeds the goose migrations for the engine's sqlite
// store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
