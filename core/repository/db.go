package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB wraps the preference database. Postgres DSNs use lib/pq; anything else
// is treated as a SQLite path (":memory:" for an in-memory database).
type DB struct {
	*sql.DB
	driver string
}

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	client_id  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (client_id, key)
)`

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// NewDB opens the database for a DSN and ensures the schema exists
func NewDB(dsn string) (*DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// An in-memory database only exists on the connection that created it.
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := db.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Migrate creates the tables the repositories need
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// rebind rewrites $n placeholders for drivers that expect "?".
func (db *DB) rebind(query string) string {
	if db.driver == "postgres" {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}
