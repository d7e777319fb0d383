// Package database provides SQLite connection management for SpoolDock Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy-timeout pragmas
//   - Running embedded schema migrations on startup
//   - Health checks and graceful shutdown
//
// SQLite fits SpoolDock's deployment model: a single small appliance-style
// process with at most a handful of writers (REST handlers and the usage
// recorder). The pool is capped at one connection to match SQLite's
// single-writer design.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "data/spooldock.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
