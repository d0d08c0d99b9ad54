package handle

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dbhandle/internal/db"
)

// Connection defaults.
const (
	DefaultDriver         = db.DriverMySQL
	DefaultPort           = 3306
	DefaultCharset        = "utf8mb4"
	DefaultConnectTimeout = 5 * time.Second
)

// RowShape selects how fetched rows are represented. Every shape keys rows by
// field name; shapes differ in how column values are converted.
type RowShape int

const (
	// RowShapeMap decodes driver byte slices into strings.
	RowShapeMap RowShape = iota
	// RowShapeRaw keeps values exactly as the driver returns them.
	RowShapeRaw
)

func (s RowShape) String() string {
	switch s {
	case RowShapeRaw:
		return "raw"
	default:
		return "map"
	}
}

// ParseRowShape maps "map" or "raw" to a RowShape. The empty string selects
// RowShapeMap.
func ParseRowShape(s string) (RowShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "map":
		return RowShapeMap, nil
	case "raw":
		return RowShapeRaw, nil
	default:
		return RowShapeMap, fmt.Errorf("unknown row shape %q: use 'map' or 'raw'", s)
	}
}

// Config holds the parameters used to open a Handle.
type Config struct {
	Driver   string // mysql (default), sqlite3 or duckdb
	Host     string
	User     string
	Password string
	Database string // database name; file path or ":memory:" for sqlite3 and duckdb
	Port     int    // default 3306
	Charset  string // default utf8mb4

	// Autocommit defaults to true when nil.
	Autocommit *bool

	RowShape RowShape

	// ConnectTimeout bounds dialing and the initial ping only. Statements
	// are bounded by the context passed to each call.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Bool returns a pointer to v, for Config.Autocommit.
func Bool(v bool) *bool { return &v }

// AutocommitEnabled reports the effective autocommit mode.
func (c *Config) AutocommitEnabled() bool {
	return c.Autocommit == nil || *c.Autocommit
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Validate checks that the parameters required by the configured driver are set.
func (c *Config) Validate() error {
	driver := c.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	if !db.Supported(driver) {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if driver == db.DriverMySQL {
		if c.Host == "" {
			return fmt.Errorf("%w: host", ErrMissingParameter)
		}
		if c.User == "" {
			return fmt.Errorf("%w: user", ErrMissingParameter)
		}
	}
	if c.Database == "" {
		return fmt.Errorf("%w: database", ErrMissingParameter)
	}
	return nil
}

func (c *Config) dsn() string {
	switch c.Driver {
	case db.DriverSQLite:
		return db.BuildSQLiteDSN(c.Database)
	case db.DriverDuckDB:
		return db.BuildDuckDBDSN(c.Database)
	default:
		return db.BuildMySQLDSN(db.MySQLOptions{
			Host:       c.Host,
			Port:       c.Port,
			User:       c.User,
			Password:   c.Password,
			Database:   c.Database,
			Charset:    c.Charset,
			Autocommit: c.AutocommitEnabled(),
			Timeout:    c.ConnectTimeout,
		})
	}
}
