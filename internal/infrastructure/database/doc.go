// Package database opens and migrates the hearth's SQLite store.
//
// The connection is opened in WAL mode with a busy timeout so the API,
// the poller, and the audit writer can read concurrently while one of
// them writes. The database file is created 0600.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are embedded in the binary and additive-only: new columns
// are NULLABLE or carry a DEFAULT, columns are never dropped or renamed,
// and every migration ships an .up.sql and a .down.sql.
package database
