// Package database opens the SQLite file behind the identity service and
// manages its schema.
//
// Open configures WAL mode, a busy timeout and foreign keys, restricts the
// file to its owner, and pins the pool to one connection. Repositories take
// the embedded *sql.DB; DB itself only adds lifecycle, health and
// migrations.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the migrations package. identityd migrate
// exposes Migrate, Rollback and MigrationStatus from the command line.
//
// Timestamps are stored as fixed-width UTC TEXT (see TimeLayout) so that
// expiry sweeps can compare them directly in SQL.
package database
