// Package database provides SQLite connectivity for Smart Pot Core.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, foreign keys enforced)
//   - Embedded schema migrations tracked in schema_migrations
//   - The per-request unit of work (WithTx) and the DBTX interface that
//     repositories are written against
//   - Classification of constraint failures (unique, foreign key)
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
//	err = db.WithTx(ctx, func(tx database.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "INSERT INTO pots ...")
//	    return err
//	})
package database
