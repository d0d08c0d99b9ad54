package db

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// InMemory is the database name that selects a private in-memory database
// for the sqlite3 and duckdb drivers.
const InMemory = ":memory:"

// MySQLOptions holds the connection parameters used to build a MySQL DSN.
type MySQLOptions struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	Charset    string
	Autocommit bool
	Timeout    time.Duration // dial timeout; zero leaves the driver default
}

// BuildMySQLDSN renders a go-sql-driver/mysql DSN.
//
// Autocommit is sent as the session variable of the same name, so the server
// and the handle agree on whether statements commit on their own.
func BuildMySQLDSN(o MySQLOptions) string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = o.Timeout

	autocommit := "0"
	if o.Autocommit {
		autocommit = "1"
	}
	cfg.Params = map[string]string{
		"autocommit": autocommit,
	}
	if o.Charset != "" {
		cfg.Params["charset"] = o.Charset
	}

	return cfg.FormatDSN()
}

// BuildSQLiteDSN constructs a SQLite DSN with hardened parameters.
//
// Transactions use the driver's default deferred locking: a handle with
// autocommit off that has only read holds no write lock, so other writers are
// not blocked until it writes itself.
func BuildSQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_foreign_keys", "on")

	if path != InMemory {
		params.Set("_journal_mode", defaultJournalMode)
		params.Set("_synchronous", defaultSynchronous)
	}

	return path + "?" + params.Encode()
}

// BuildDuckDBDSN maps a database name to a duckdb-go DSN. The driver opens an
// in-memory database for the empty DSN.
func BuildDuckDBDSN(path string) string {
	if path == InMemory {
		return ""
	}
	return path
}
