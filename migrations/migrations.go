// Package migrations embeds the SQL schema of the snapshot archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
