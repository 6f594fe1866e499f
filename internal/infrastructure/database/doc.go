// Package database provides SQLite connectivity for the broker's event store.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Additive schema migrations read from an fs.FS
//   - Health checks for the HTTP API
//
// The migrations package embeds the SQL files and registers them in
// Migrations at init, so importing it is enough for Migrate to find them.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
