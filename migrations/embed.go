// Package migrations embeds the SQL schema migrations into the binary so the
// dead-letter store can be created without files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
