// Package db owns all persistent state: flights, alerts, restricted regions,
// and operator accounts, stored in a single SQLite database. All exported
// operations are safe under parallel callers; SQLite serializes the writes.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the connection
// pragmas. It does not touch the schema; call MigrateUp for that.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{sqlDB}, nil
}

// New opens the database and brings the schema up to date. This is the
// normal server entry point; the migrate CLI uses Open directly.
func New(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
