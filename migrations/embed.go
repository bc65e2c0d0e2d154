// Package migrations embeds the SQL migration files into the binary so the
// run-history database can be created without the files on disk.
//
//	db.Migrate(ctx, migrations.FS)
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
