// Package database provides SQLite connectivity for Bumper's persistent store.
//
// The store holds accounts, their device bindings, bots and access tokens.
// It is opened once at startup and shared by every repository.
//
// This package manages:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - A single-connection pool, which serialises writes
//   - Schema migrations embedded by the top-level migrations package
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Tests open a migrated private database with OpenMemory after importing
// the migrations package for its side effect.
package database
