// Package database provides SQLite connectivity for the yysbot run history.
//
// This package manages:
//   - Database connection with WAL mode so the control panel can read while sessions write
//   - Schema migrations read from an fs.FS (the binary embeds migrations.FS)
//   - Connection lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
