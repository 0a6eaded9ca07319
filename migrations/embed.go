// Package migrations embeds the SQL schema migrations into the binary.
//
// Pass FS to database.DB.Migrate on startup.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
