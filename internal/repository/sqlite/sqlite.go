// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, cross-compiles
// anywhere Go does. It also ships the JSON1 functions, which the listing
// search uses to match tags stored as JSON arrays.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB:   a connection pool (NOT a single connection!)
//   - sql.Tx:   a transaction
//   - sql.Row:  a single result row
//   - sql.Rows: multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements both
// repository.ListingRepository and repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/gamesaviour.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
//
// ONE CONNECTION:
// SQLite serializes writers anyway, and every ":memory:" connection would be
// a separate empty database. Capping the pool at one connection keeps the
// PRAGMAs (foreign_keys is per-connection!) and the in-memory schema stable.
// The flip side: never hold *sql.Rows open while issuing another query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We need them ON for
	// listings.user_id and for the ON DELETE CASCADE when a user is removed.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this is safe on every start.
// Columns added after the first release go through addColumnIfNotExists.
func (db *DB) migrate() error {
	// email is the natural key used by sign-in upserts and /users/me.
	// languages/games hold JSON arrays of strings.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL DEFAULT '',
			bio           TEXT NOT NULL DEFAULT '',
			languages     TEXT NOT NULL DEFAULT '[]',
			games         TEXT NOT NULL DEFAULT '[]',
			hourly_rate   REAL,
			is_online     INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// ON DELETE CASCADE: deleting a user deletes the listings they own.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			game            TEXT NOT NULL,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL,
			price_per_hour  REAL NOT NULL CHECK (price_per_hour >= 0),
			availability    TEXT NOT NULL,
			images          TEXT NOT NULL DEFAULT '[]',
			voice_intro_url TEXT,
			tags            TEXT NOT NULL DEFAULT '[]',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_listings_user_id ON listings(user_id);
		CREATE INDEX IF NOT EXISTS idx_listings_game ON listings(game);
		CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price_per_hour);
		CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating listings table: %w", err)
	}

	// Optimistic concurrency token, added after the first schema shipped.
	if err := db.addColumnIfNotExists("listings", "version",
		"INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("adding version to listings: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it can run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// encodeStrings stores a string list as a JSON array. nil becomes "[]".
func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeStrings is the inverse of encodeStrings and never returns nil.
func decodeStrings(raw string) ([]string, error) {
	values := []string{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}
