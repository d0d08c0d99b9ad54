// Package db provides database connectivity helpers for the supported drivers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Registered database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
	DriverDuckDB = "duckdb"
)

const defaultPingTimeout = 5 * time.Second

// Supported reports whether driver is one of the registered driver names.
func Supported(driver string) bool {
	switch driver {
	case DriverMySQL, DriverSQLite, DriverDuckDB:
		return true
	default:
		return false
	}
}

// OpenSingle opens a *sql.DB that never holds more than one connection and
// verifies it with a ping bounded by timeout (0 uses 5s).
//
// The pool is capped at one open and one idle connection and connections do
// not expire, so a caller that pins the connection with DB.Conn keeps the
// same session for its whole lifetime.
func OpenSingle(ctx context.Context, driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	if !Supported(driver) {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}
