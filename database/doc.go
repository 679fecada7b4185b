// Package database provides a unified interface for connecting to metadata backends.
//
// # Supported Backends
//
//   - PostgreSQL: pgx connection pool, suited to multi-node deployments
//   - SQLite: modernc.org/sqlite, suited to development and single-node deployments
//
// # Usage
//
//	db, err := database.Connect(ctx, database.Config{
//	    Type:   "sqlite",
//	    DSN:    "strongbox.db",
//	    Tables: strongbox.Tables{Buckets: "buckets", Objects: "objects"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	store := db.Store()
//
// # Subpackages
//
//   - database/postgres: PostgreSQL implementation using pgx
//   - database/sqlite: SQLite implementation using modernc.org/sqlite
package database
