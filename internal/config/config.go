// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"dbhandle/internal/handle"
)

// DatabaseConfig holds the connection parameters for the shared handle.
type DatabaseConfig struct {
	Driver         string        // DB_DRIVER (default "mysql")
	Host           string        // DB_HOST
	Port           int           // DB_PORT (default 3306)
	User           string        // DB_USER
	Password       string        // DB_PASSWORD
	Name           string        // DB_NAME
	Charset        string        // DB_CHARSET (default "utf8mb4")
	Autocommit     bool          // DB_AUTOCOMMIT (default true)
	RowShape       string        // DB_ROW_SHAPE: map (default) or raw
	ConnectTimeout time.Duration // DB_CONNECT_TIMEOUT (default 5s)
}

// Handle converts the database settings into a handle.Config.
func (d *DatabaseConfig) Handle(logger *slog.Logger) (handle.Config, error) {
	shape, err := handle.ParseRowShape(d.RowShape)
	if err != nil {
		return handle.Config{}, err
	}
	return handle.Config{
		Driver:         d.Driver,
		Host:           d.Host,
		Port:           d.Port,
		User:           d.User,
		Password:       d.Password,
		Database:       d.Name,
		Charset:        d.Charset,
		Autocommit:     handle.Bool(d.Autocommit),
		RowShape:       shape,
		ConnectTimeout: d.ConnectTimeout,
		Logger:         logger,
	}, nil
}

// Config holds the configuration for the HTTP gateway.
type Config struct {
	Database DatabaseConfig

	ListenAddr string // HTTP listen address (default ":8080")
	JWTSecret  string // HS256 secret; bearer auth is disabled when empty
	LogLevel   string // log level: debug, info, warn, error (default "info")
	LogFormat  string // text (default) or json
	Env        string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps a level name to an slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger on stderr. format is "json" or "text".
func NewLogger(format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadDatabaseFromEnv reads the DB_* variables and applies defaults.
func LoadDatabaseFromEnv() (DatabaseConfig, error) {
	d := DatabaseConfig{
		Driver:     os.Getenv("DB_DRIVER"),
		Host:       os.Getenv("DB_HOST"),
		User:       os.Getenv("DB_USER"),
		Password:   os.Getenv("DB_PASSWORD"),
		Name:       os.Getenv("DB_NAME"),
		Charset:    os.Getenv("DB_CHARSET"),
		RowShape:   os.Getenv("DB_ROW_SHAPE"),
		Autocommit: parseBoolEnvDefault("DB_AUTOCOMMIT", true),
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return d, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		d.Port = n
	}
	if v := os.Getenv("DB_CONNECT_TIMEOUT"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return d, fmt.Errorf("invalid DB_CONNECT_TIMEOUT: %w", err)
		}
		d.ConnectTimeout = dur
	}

	if d.Driver == "" {
		d.Driver = handle.DefaultDriver
	}
	if d.Port == 0 {
		d.Port = handle.DefaultPort
	}
	if d.Charset == "" {
		d.Charset = handle.DefaultCharset
	}
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = handle.DefaultConnectTimeout
	}
	if _, err := handle.ParseRowShape(d.RowShape); err != nil {
		return d, fmt.Errorf("invalid DB_ROW_SHAPE: %w", err)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	database, err := LoadDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database:   database,
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		LogFormat:  os.Getenv("LOG_FORMAT"),
		Env:        os.Getenv("ENV"),
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.JWTSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set; the gateway accepts unauthenticated requests")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
