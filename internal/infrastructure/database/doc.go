// Package database holds the SQLite file behind the optional state history.
//
// The bridge keeps no device state across restarts; the only tables are the
// history written by the history package and the schema_migrations ledger.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	applied, err := db.Migrate(ctx, migrations.FS)
//
// Migrations are YYYYMMDD_HHMMSS_description.up.sql files, applied oldest
// first in one transaction each. There are no down migrations.
package database
