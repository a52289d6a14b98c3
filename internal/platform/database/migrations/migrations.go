// Package migrations embeds the goose SQL migrations for the job board schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
