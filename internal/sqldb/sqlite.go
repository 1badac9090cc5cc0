package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// OpenSQLite opens (and creates if needed) a SQLite database file. Foreign
// keys are enabled and a busy timeout is set so concurrent writers from the
// worker pool wait instead of failing.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Unnamed in-memory databases are per-connection.
	if strings.HasPrefix(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Driver: DriverSQLite}, nil
}
