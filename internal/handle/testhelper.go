package handle

import (
	"context"
	"path/filepath"
	"testing"

	"dbhandle/internal/db"
)

// OpenTest opens a sqlite3 handle on a fresh file in t.TempDir() and
// registers Close as cleanup. Pass autocommit=false to exercise the
// transactional path.
func OpenTest(t *testing.T, autocommit bool) *Handle {
	t.Helper()

	h, err := Open(context.Background(), TestConfig(t, autocommit))
	if err != nil {
		t.Fatalf("open test handle: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// TestConfig returns a sqlite3 Config for a fresh file in t.TempDir().
func TestConfig(t *testing.T, autocommit bool) Config {
	t.Helper()

	return Config{
		Driver:     db.DriverSQLite,
		Database:   filepath.Join(t.TempDir(), "test.sqlite"),
		Autocommit: Bool(autocommit),
	}
}
